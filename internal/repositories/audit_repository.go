package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"ypgattendance/internal/models"
)

type AuditRepository interface {
	Insert(ctx context.Context, ev *models.AuditEvent) error
	List(ctx context.Context, limit int) ([]*models.AuditEvent, error)
}

type auditRepository struct {
	DB *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{DB: db}
}

func (r *auditRepository) Insert(ctx context.Context, ev *models.AuditEvent) error {
	const q = `
		INSERT INTO audit_log (id, action, actor, identifier, kind, detail, client_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.DB.ExecContext(ctx, q,
		ev.ID, string(ev.Action), ev.Actor, ev.Identifier, string(ev.Kind), ev.Detail, ev.ClientIP, ev.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	const q = `
		SELECT id, action, actor, identifier, kind, detail, client_ip, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.DB.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var res []*models.AuditEvent
	for rows.Next() {
		var (
			ev     models.AuditEvent
			action string
			kind   string
		)
		if err := rows.Scan(&ev.ID, &action, &ev.Actor, &ev.Identifier, &kind, &ev.Detail, &ev.ClientIP, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Action = models.AuditAction(action)
		ev.Kind = models.AttemptKind(kind)
		res = append(res, &ev)
	}
	return res, rows.Err()
}
