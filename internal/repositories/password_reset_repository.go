package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ypgattendance/internal/models"
)

type PasswordResetRepository interface {
	// Replace drops any outstanding codes of the principal and stores a new one.
	Replace(ctx context.Context, principalID int64, code string, now, expiresAt time.Time) (*models.PasswordReset, error)
	// GetLatest returns the outstanding code of the principal, or nil.
	GetLatest(ctx context.Context, principalID int64) (*models.PasswordReset, error)
	// IncrementAttempts counts one wrong guess against the code and returns the new total.
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

type passwordResetRepository struct {
	DB *sql.DB
}

func NewPasswordResetRepository(db *sql.DB) PasswordResetRepository {
	return &passwordResetRepository{DB: db}
}

func (r *passwordResetRepository) Replace(ctx context.Context, principalID int64, code string, now, expiresAt time.Time) (*models.PasswordReset, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin password reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM password_reset_codes WHERE principal_id = $1`, principalID); err != nil {
		return nil, fmt.Errorf("delete password reset codes: %w", err)
	}
	const q = `
		INSERT INTO password_reset_codes (principal_id, code, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	pr := &models.PasswordReset{PrincipalID: principalID, Code: code, ExpiresAt: expiresAt, CreatedAt: now}
	if err := tx.QueryRowContext(ctx, q, principalID, code, expiresAt, now).Scan(&pr.ID); err != nil {
		return nil, fmt.Errorf("create password reset code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit password reset code: %w", err)
	}
	return pr, nil
}

func (r *passwordResetRepository) GetLatest(ctx context.Context, principalID int64) (*models.PasswordReset, error) {
	const q = `
		SELECT id, principal_id, code, attempts, expires_at, created_at
		FROM password_reset_codes
		WHERE principal_id = $1
		ORDER BY id DESC
		LIMIT 1
	`
	pr := &models.PasswordReset{}
	err := r.DB.QueryRowContext(ctx, q, principalID).Scan(&pr.ID, &pr.PrincipalID, &pr.Code, &pr.Attempts, &pr.ExpiresAt, &pr.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get password reset code: %w", err)
	}
	return pr, nil
}

func (r *passwordResetRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	const q = `
		UPDATE password_reset_codes
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	if err := r.DB.QueryRowContext(ctx, q, id).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment password reset attempts: %w", err)
	}
	return attempts, nil
}

func (r *passwordResetRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM password_reset_codes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete password reset code: %w", err)
	}
	return nil
}
