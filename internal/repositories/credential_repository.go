package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ypgattendance/internal/models"
)

type CredentialRepository interface {
	Create(ctx context.Context, p *models.Principal) error
	GetByUsername(ctx context.Context, username string) (*models.Principal, error)
	GetByID(ctx context.Context, id int64) (*models.Principal, error)
	List(ctx context.Context, limit, offset int) ([]*models.Principal, error)
	UpdatePassword(ctx context.Context, id int64, hash string, now time.Time) error
	Count(ctx context.Context) (int, error)

	// SetRefresh stores a fresh refresh token hash, replacing any earlier one.
	SetRefresh(ctx context.Context, id int64, tokenHash string, expiresAt, now time.Time) error
	// RotateRefresh swaps oldHash for newHash if oldHash is current, unrevoked and unexpired
	// at now. It returns nil when nothing matched.
	RotateRefresh(ctx context.Context, oldHash, newHash string, newExpiresAt, now time.Time) (*models.Principal, error)
	RevokeRefresh(ctx context.Context, id int64, now time.Time) error
}

type credentialRepository struct {
	DB *sql.DB
}

func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{DB: db}
}

const principalColumns = `id, username, password_hash, role, COALESCE(email, ''),
	COALESCE(refresh_token_hash, ''), refresh_expires_at, refresh_revoked, created_at, updated_at`

func scanPrincipal(row rowScanner) (*models.Principal, error) {
	p := &models.Principal{}
	var refreshExp sql.NullTime
	if err := row.Scan(&p.ID, &p.Username, &p.PasswordHash, &p.Role, &p.Email,
		&p.RefreshTokenHash, &refreshExp, &p.RefreshRevoked, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if refreshExp.Valid {
		t := refreshExp.Time
		p.RefreshExpiresAt = &t
	}
	return p, nil
}

func (r *credentialRepository) Create(ctx context.Context, p *models.Principal) error {
	const q = `
		INSERT INTO credentials (username, password_hash, role, email, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $5)
		RETURNING id
	`
	if err := r.DB.QueryRowContext(ctx, q, p.Username, p.PasswordHash, p.Role, p.Email, p.CreatedAt).Scan(&p.ID); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create credential: %w", err)
	}
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (r *credentialRepository) GetByUsername(ctx context.Context, username string) (*models.Principal, error) {
	q := `SELECT ` + principalColumns + ` FROM credentials WHERE LOWER(username) = LOWER($1)`
	p, err := scanPrincipal(r.DB.QueryRowContext(ctx, q, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credential by username: %w", err)
	}
	return p, nil
}

func (r *credentialRepository) GetByID(ctx context.Context, id int64) (*models.Principal, error) {
	q := `SELECT ` + principalColumns + ` FROM credentials WHERE id = $1`
	p, err := scanPrincipal(r.DB.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credential by id: %w", err)
	}
	return p, nil
}

func (r *credentialRepository) List(ctx context.Context, limit, offset int) ([]*models.Principal, error) {
	q := `SELECT ` + principalColumns + ` FROM credentials ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var res []*models.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *credentialRepository) UpdatePassword(ctx context.Context, id int64, hash string, now time.Time) error {
	const q = `UPDATE credentials SET password_hash = $1, updated_at = $2 WHERE id = $3`
	res, err := r.DB.ExecContext(ctx, q, hash, now, id)
	if err != nil {
		return fmt.Errorf("update credential password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *credentialRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return n, nil
}

func (r *credentialRepository) SetRefresh(ctx context.Context, id int64, tokenHash string, expiresAt, now time.Time) error {
	const q = `
		UPDATE credentials
		SET refresh_token_hash = $1, refresh_expires_at = $2, refresh_revoked = FALSE, updated_at = $3
		WHERE id = $4
	`
	res, err := r.DB.ExecContext(ctx, q, tokenHash, expiresAt, now, id)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *credentialRepository) RotateRefresh(ctx context.Context, oldHash, newHash string, newExpiresAt, now time.Time) (*models.Principal, error) {
	q := `
		UPDATE credentials
		SET refresh_token_hash = $1, refresh_expires_at = $2, updated_at = $3
		WHERE refresh_token_hash = $4 AND NOT refresh_revoked AND refresh_expires_at > $3
		RETURNING ` + principalColumns
	p, err := scanPrincipal(r.DB.QueryRowContext(ctx, q, newHash, newExpiresAt, now, oldHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	return p, nil
}

func (r *credentialRepository) RevokeRefresh(ctx context.Context, id int64, now time.Time) error {
	const q = `UPDATE credentials SET refresh_revoked = TRUE, updated_at = $1 WHERE id = $2`
	res, err := r.DB.ExecContext(ctx, q, now, id)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
