package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ypgattendance/internal/models"
)

// In-memory implementations used by tests and by `database.driver: memory`.
// Each store guards all of its state with one mutex, which gives the same per-key
// serialization the Postgres implementations get from row locks.

type attemptKey struct {
	identifier string
	kind       models.AttemptKind
}

type memoryAttemptRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   map[attemptKey]*models.AttemptRecord
}

func NewMemoryAttemptRepository() AttemptRepository {
	return &memoryAttemptRepository{rows: make(map[attemptKey]*models.AttemptRecord)}
}

func (r *memoryAttemptRepository) Get(_ context.Context, identifier string, kind models.AttemptKind) (*models.AttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[attemptKey{identifier, kind}].Clone(), nil
}

func (r *memoryAttemptRepository) Create(_ context.Context, rec *models.AttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := attemptKey{rec.Identifier, rec.Kind}
	if _, ok := r.rows[key]; ok {
		return ErrDuplicate
	}
	r.nextID++
	rec.ID = r.nextID
	rec.UpdatedAt = rec.CreatedAt
	r.rows[key] = rec.Clone()
	return nil
}

func (r *memoryAttemptRepository) Mutate(_ context.Context, identifier string, kind models.AttemptKind, now time.Time, fn func(rec *models.AttemptRecord) error) (*models.AttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := attemptKey{identifier, kind}
	cur, ok := r.rows[key]
	if !ok {
		r.nextID++
		cur = &models.AttemptRecord{ID: r.nextID, Identifier: identifier, Kind: kind, CreatedAt: now, UpdatedAt: now}
		r.rows[key] = cur
	}
	work := cur.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = now
	r.rows[key] = work
	return work.Clone(), nil
}

func matchAttempt(rec *models.AttemptRecord, f models.AttemptFilter) bool {
	if f.Identifier != "" && rec.Identifier != f.Identifier {
		return false
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.LockedOnly && !rec.Locked {
		return false
	}
	return true
}

func (r *memoryAttemptRepository) Delete(_ context.Context, filter models.AttemptFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, rec := range r.rows {
		if matchAttempt(rec, filter) {
			delete(r.rows, k)
			n++
		}
	}
	return n, nil
}

func (r *memoryAttemptRepository) List(_ context.Context, filter models.AttemptFilter) ([]*models.AttemptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*models.AttemptRecord
	for _, rec := range r.rows {
		if matchAttempt(rec, filter) {
			res = append(res, rec.Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].UpdatedAt.Equal(res[j].UpdatedAt) {
			return res[i].UpdatedAt.After(res[j].UpdatedAt)
		}
		return res[i].ID > res[j].ID
	})
	if filter.Limit > 0 && len(res) > filter.Limit {
		res = res[:filter.Limit]
	}
	return res, nil
}

type memoryPinRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.PinSecret
}

func NewMemoryPinRepository() PinRepository {
	return &memoryPinRepository{}
}

func (r *memoryPinRepository) activeLocked() *models.PinSecret {
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].IsActive {
			return r.rows[i]
		}
	}
	return nil
}

func copyPin(p *models.PinSecret) *models.PinSecret {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func (r *memoryPinRepository) GetActive(_ context.Context) (*models.PinSecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyPin(r.activeLocked()), nil
}

func (r *memoryPinRepository) CreateActive(_ context.Context, value string, now time.Time) (*models.PinSecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeLocked() != nil {
		return nil, ErrDuplicate
	}
	r.nextID++
	p := &models.PinSecret{ID: r.nextID, Value: value, IsActive: true, CreatedAt: now, UpdatedAt: now}
	r.rows = append(r.rows, p)
	return copyPin(p), nil
}

func (r *memoryPinRepository) ReplaceActive(_ context.Context, value string, now time.Time, guard func(active *models.PinSecret) error) (*models.PinSecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := r.activeLocked()
	if err := guard(copyPin(active)); err != nil {
		return nil, err
	}
	if active != nil {
		active.IsActive = false
		active.UpdatedAt = now
	}
	r.nextID++
	p := &models.PinSecret{ID: r.nextID, Value: value, IsActive: true, CreatedAt: now, UpdatedAt: now}
	r.rows = append(r.rows, p)
	return copyPin(p), nil
}

type memoryCredentialRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.Principal
}

func NewMemoryCredentialRepository() CredentialRepository {
	return &memoryCredentialRepository{}
}

func copyPrincipal(p *models.Principal) *models.Principal {
	if p == nil {
		return nil
	}
	c := *p
	if p.RefreshExpiresAt != nil {
		t := *p.RefreshExpiresAt
		c.RefreshExpiresAt = &t
	}
	return &c
}

func (r *memoryCredentialRepository) Create(_ context.Context, p *models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if strings.EqualFold(row.Username, p.Username) {
			return ErrDuplicate
		}
	}
	r.nextID++
	p.ID = r.nextID
	p.UpdatedAt = p.CreatedAt
	r.rows = append(r.rows, copyPrincipal(p))
	return nil
}

func (r *memoryCredentialRepository) GetByUsername(_ context.Context, username string) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if strings.EqualFold(row.Username, username) {
			return copyPrincipal(row), nil
		}
	}
	return nil, nil
}

func (r *memoryCredentialRepository) GetByID(_ context.Context, id int64) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return copyPrincipal(row), nil
		}
	}
	return nil, nil
}

func (r *memoryCredentialRepository) List(_ context.Context, limit, offset int) ([]*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*models.Principal
	for i, row := range r.rows {
		if i < offset {
			continue
		}
		if limit > 0 && len(res) >= limit {
			break
		}
		res = append(res, copyPrincipal(row))
	}
	return res, nil
}

func (r *memoryCredentialRepository) UpdatePassword(_ context.Context, id int64, hash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.PasswordHash = hash
			row.UpdatedAt = now
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryCredentialRepository) SetRefresh(_ context.Context, id int64, tokenHash string, expiresAt, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			exp := expiresAt
			row.RefreshTokenHash = tokenHash
			row.RefreshExpiresAt = &exp
			row.RefreshRevoked = false
			row.UpdatedAt = now
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryCredentialRepository) RotateRefresh(_ context.Context, oldHash, newHash string, newExpiresAt, now time.Time) (*models.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if oldHash == "" || row.RefreshTokenHash != oldHash {
			continue
		}
		if row.RefreshRevoked || row.RefreshExpiresAt == nil || !now.Before(*row.RefreshExpiresAt) {
			return nil, nil
		}
		exp := newExpiresAt
		row.RefreshTokenHash = newHash
		row.RefreshExpiresAt = &exp
		row.UpdatedAt = now
		return copyPrincipal(row), nil
	}
	return nil, nil
}

func (r *memoryCredentialRepository) RevokeRefresh(_ context.Context, id int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.RefreshRevoked = true
			row.UpdatedAt = now
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryCredentialRepository) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows), nil
}

type memoryPasswordResetRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   []*models.PasswordReset
}

func NewMemoryPasswordResetRepository() PasswordResetRepository {
	return &memoryPasswordResetRepository{}
}

func (r *memoryPasswordResetRepository) Replace(_ context.Context, principalID int64, code string, now, expiresAt time.Time) (*models.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.PrincipalID != principalID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	r.nextID++
	pr := &models.PasswordReset{ID: r.nextID, PrincipalID: principalID, Code: code, ExpiresAt: expiresAt, CreatedAt: now}
	r.rows = append(r.rows, pr)
	c := *pr
	return &c, nil
}

func (r *memoryPasswordResetRepository) GetLatest(_ context.Context, principalID int64) (*models.PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		if row := r.rows[i]; row.PrincipalID == principalID {
			c := *row
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memoryPasswordResetRepository) IncrementAttempts(_ context.Context, id int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			row.Attempts++
			return row.Attempts, nil
		}
	}
	return 0, ErrNotFound
}

func (r *memoryPasswordResetRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

type memoryAuditRepository struct {
	mu   sync.Mutex
	rows []*models.AuditEvent
}

func NewMemoryAuditRepository() AuditRepository {
	return &memoryAuditRepository{}
}

func (r *memoryAuditRepository) Insert(_ context.Context, ev *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *ev
	r.rows = append(r.rows, &c)
	return nil
}

func (r *memoryAuditRepository) List(_ context.Context, limit int) ([]*models.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*models.AuditEvent
	for i := len(r.rows) - 1; i >= 0; i-- {
		if limit > 0 && len(res) >= limit {
			break
		}
		c := *r.rows[i]
		res = append(res, &c)
	}
	return res, nil
}
