package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ypgattendance/internal/models"
)

// PinRepository keeps the security pin table. At most one row has is_active = TRUE; the
// partial unique index created by Migrate backs that up at the database level.
type PinRepository interface {
	GetActive(ctx context.Context) (*models.PinSecret, error)
	CreateActive(ctx context.Context, value string, now time.Time) (*models.PinSecret, error)
	// ReplaceActive locks the active row, lets guard inspect it (nil when none) and, if guard
	// returns nil, deactivates it and inserts value as the new active pin in one transaction.
	ReplaceActive(ctx context.Context, value string, now time.Time, guard func(active *models.PinSecret) error) (*models.PinSecret, error)
}

type pinRepository struct {
	DB *sql.DB
}

func NewPinRepository(db *sql.DB) PinRepository {
	return &pinRepository{DB: db}
}

const selectActivePin = `
	SELECT id, value, is_active, created_at, updated_at
	FROM security_pins
	WHERE is_active = TRUE
	ORDER BY id DESC
	LIMIT 1
`

func scanPin(row rowScanner) (*models.PinSecret, error) {
	var p models.PinSecret
	if err := row.Scan(&p.ID, &p.Value, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pinRepository) GetActive(ctx context.Context) (*models.PinSecret, error) {
	p, err := scanPin(r.DB.QueryRowContext(ctx, selectActivePin))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active pin: %w", err)
	}
	return p, nil
}

func (r *pinRepository) CreateActive(ctx context.Context, value string, now time.Time) (*models.PinSecret, error) {
	const q = `
		INSERT INTO security_pins (value, is_active, created_at, updated_at)
		VALUES ($1, TRUE, $2, $2)
		RETURNING id
	`
	p := &models.PinSecret{Value: value, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := r.DB.QueryRowContext(ctx, q, value, now).Scan(&p.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create pin: %w", err)
	}
	return p, nil
}

func (r *pinRepository) ReplaceActive(ctx context.Context, value string, now time.Time, guard func(active *models.PinSecret) error) (*models.PinSecret, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin pin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	active, err := scanPin(tx.QueryRowContext(ctx, selectActivePin+` FOR UPDATE`))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock active pin: %w", err)
	}
	if err := guard(active); err != nil {
		return nil, err
	}

	if active != nil {
		const deactivate = `UPDATE security_pins SET is_active = FALSE, updated_at = $1 WHERE id = $2`
		if _, err := tx.ExecContext(ctx, deactivate, now, active.ID); err != nil {
			return nil, fmt.Errorf("deactivate pin: %w", err)
		}
	}

	const insert = `
		INSERT INTO security_pins (value, is_active, created_at, updated_at)
		VALUES ($1, TRUE, $2, $2)
		RETURNING id
	`
	p := &models.PinSecret{Value: value, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if err := tx.QueryRowContext(ctx, insert, value, now).Scan(&p.ID); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert pin: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pin: %w", err)
	}
	return p, nil
}
