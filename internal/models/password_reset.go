package models

import "time"

type PasswordReset struct {
	ID          int64     `json:"id"`
	PrincipalID int64     `json:"principal_id"`
	Code        string    `json:"-"`
	Attempts    int       `json:"attempts"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *PasswordReset) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
