package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ypgattendance/internal/models"
)

// AttemptRepository stores the login attempt ledger. Mutate is the only write path for
// failure_count and lock fields and must serialize concurrent callers on the same key.
type AttemptRepository interface {
	Get(ctx context.Context, identifier string, kind models.AttemptKind) (*models.AttemptRecord, error)
	Create(ctx context.Context, rec *models.AttemptRecord) error
	Mutate(ctx context.Context, identifier string, kind models.AttemptKind, now time.Time, fn func(rec *models.AttemptRecord) error) (*models.AttemptRecord, error)
	Delete(ctx context.Context, filter models.AttemptFilter) (int64, error)
	List(ctx context.Context, filter models.AttemptFilter) ([]*models.AttemptRecord, error)
}

type attemptRepository struct {
	DB *sql.DB
}

func NewAttemptRepository(db *sql.DB) AttemptRepository {
	return &attemptRepository{DB: db}
}

const attemptColumns = `
	id, identifier, kind, failure_count, first_failure_at, last_failure_at,
	locked, lock_expires_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*models.AttemptRecord, error) {
	var (
		rec        models.AttemptRecord
		kind       string
		firstFail  sql.NullTime
		lastFail   sql.NullTime
		lockExpiry sql.NullTime
	)
	if err := row.Scan(
		&rec.ID, &rec.Identifier, &kind, &rec.FailureCount, &firstFail, &lastFail,
		&rec.Locked, &lockExpiry, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Kind = models.AttemptKind(kind)
	rec.FirstFailureAt = nullTimePtr(firstFail)
	rec.LastFailureAt = nullTimePtr(lastFail)
	rec.LockExpiresAt = nullTimePtr(lockExpiry)
	return &rec, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *attemptRepository) Get(ctx context.Context, identifier string, kind models.AttemptKind) (*models.AttemptRecord, error) {
	q := `SELECT ` + attemptColumns + ` FROM login_attempts WHERE identifier = $1 AND kind = $2`
	rec, err := scanAttempt(r.DB.QueryRowContext(ctx, q, identifier, string(kind)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get login attempt: %w", err)
	}
	return rec, nil
}

func (r *attemptRepository) Create(ctx context.Context, rec *models.AttemptRecord) error {
	const q = `
		INSERT INTO login_attempts (
			identifier, kind, failure_count, first_failure_at, last_failure_at,
			locked, lock_expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, q,
		rec.Identifier, string(rec.Kind), rec.FailureCount, rec.FirstFailureAt, rec.LastFailureAt,
		rec.Locked, rec.LockExpiresAt, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create login attempt: %w", err)
	}
	rec.UpdatedAt = rec.CreatedAt
	return nil
}

// Mutate runs fn against the row under SELECT ... FOR UPDATE and persists the result in the
// same transaction. A missing row is created first so an admin clear racing a failure cannot
// make the write disappear.
func (r *attemptRepository) Mutate(ctx context.Context, identifier string, kind models.AttemptKind, now time.Time, fn func(rec *models.AttemptRecord) error) (*models.AttemptRecord, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin login attempt tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const ensure = `
		INSERT INTO login_attempts (identifier, kind, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (identifier, kind) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, ensure, identifier, string(kind), now); err != nil {
		return nil, fmt.Errorf("ensure login attempt: %w", err)
	}

	q := `SELECT ` + attemptColumns + ` FROM login_attempts WHERE identifier = $1 AND kind = $2 FOR UPDATE`
	rec, err := scanAttempt(tx.QueryRowContext(ctx, q, identifier, string(kind)))
	if err != nil {
		return nil, fmt.Errorf("lock login attempt: %w", err)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = now

	const upd = `
		UPDATE login_attempts
		SET failure_count = $1,
			first_failure_at = $2,
			last_failure_at = $3,
			locked = $4,
			lock_expires_at = $5,
			updated_at = $6
		WHERE id = $7
	`
	if _, err := tx.ExecContext(ctx, upd,
		rec.FailureCount, rec.FirstFailureAt, rec.LastFailureAt,
		rec.Locked, rec.LockExpiresAt, rec.UpdatedAt, rec.ID,
	); err != nil {
		return nil, fmt.Errorf("update login attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit login attempt: %w", err)
	}
	return rec, nil
}

func attemptWhere(filter models.AttemptFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Identifier != "" {
		args = append(args, filter.Identifier)
		conds = append(conds, fmt.Sprintf("identifier = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.LockedOnly {
		conds = append(conds, "locked = TRUE")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *attemptRepository) Delete(ctx context.Context, filter models.AttemptFilter) (int64, error) {
	where, args := attemptWhere(filter)
	res, err := r.DB.ExecContext(ctx, `DELETE FROM login_attempts`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}
	return n, nil
}

func (r *attemptRepository) List(ctx context.Context, filter models.AttemptFilter) ([]*models.AttemptRecord, error) {
	where, args := attemptWhere(filter)
	q := `SELECT ` + attemptColumns + ` FROM login_attempts` + where + ` ORDER BY updated_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}
	defer rows.Close()

	var res []*models.AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan login attempt: %w", err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}
	return res, nil
}
