package models

import "time"

type AuditAction string

const (
	AuditLoginSucceeded   AuditAction = "login_succeeded"
	AuditLoginFailed      AuditAction = "login_failed"
	AuditLockout          AuditAction = "lockout"
	AuditPinSetup         AuditAction = "pin_setup"
	AuditPinChanged       AuditAction = "pin_changed"
	AuditAttemptsCleared  AuditAction = "attempts_cleared"
	AuditPrincipalCreated AuditAction = "principal_created"
	AuditPasswordChanged  AuditAction = "password_changed"
	AuditPasswordReset    AuditAction = "password_reset"
	AuditResetCodeBurned  AuditAction = "reset_code_burned"
	AuditTokenRefreshed   AuditAction = "token_refreshed"
	AuditLogout           AuditAction = "logout"
)

type AuditEvent struct {
	ID         string      `json:"id"`
	Action     AuditAction `json:"action"`
	Actor      string      `json:"actor,omitempty"`
	Identifier string      `json:"identifier,omitempty"`
	Kind       AttemptKind `json:"kind,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	ClientIP   string      `json:"client_ip,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
