package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ypgattendance/internal/models"
)

type LoginResult struct {
	Principal *models.Principal
	Role      string
}

// LockoutNotifier is told whenever a failure trips a lock.
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, rec *models.AttemptRecord, remainingMinutes int) error
}

// AuthGateway runs every credential check behind the attempt ledger: the lockout check
// happens before verification, and the outcome is recorded after it.
type AuthGateway struct {
	ledger    *AttemptLedger
	pins      *PinGate
	verifiers map[models.AttemptKind]CredentialVerifier
	audit     *AuditService
	notifier  LockoutNotifier
	log       *zap.Logger
}

type AuthGatewayOption func(*AuthGateway)

func WithAudit(a *AuditService) AuthGatewayOption {
	return func(g *AuthGateway) { g.audit = a }
}

func WithLockoutNotifier(n LockoutNotifier) AuthGatewayOption {
	return func(g *AuthGateway) { g.notifier = n }
}

func WithLogger(l *zap.Logger) AuthGatewayOption {
	return func(g *AuthGateway) {
		if l != nil {
			g.log = l
		}
	}
}

func NewAuthGateway(ledger *AttemptLedger, pins *PinGate, passwords CredentialVerifier, opts ...AuthGatewayOption) *AuthGateway {
	g := &AuthGateway{
		ledger: ledger,
		pins:   pins,
		verifiers: map[models.AttemptKind]CredentialVerifier{
			models.KindPassword: passwords,
			models.KindPin:      NewPinVerifier(pins),
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// checkLock loads the ledger row and fails with *LockedOutError while it is locked.
func (g *AuthGateway) checkLock(ctx context.Context, identifier string, kind models.AttemptKind) (*models.AttemptRecord, error) {
	rec, err := g.ledger.GetOrCreate(ctx, identifier, kind)
	if err != nil {
		return nil, fmt.Errorf("load attempt record: %w", err)
	}
	locked, err := g.ledger.IsLockedOut(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("check lockout: %w", err)
	}
	if locked {
		remaining := g.ledger.RemainingLockMinutes(rec)
		g.log.Info("attempt rejected while locked",
			zap.String("identifier", rec.Identifier),
			zap.String("kind", string(kind)),
			zap.Int("remaining_minutes", remaining))
		return nil, &LockedOutError{RemainingMinutes: remaining}
	}
	return rec, nil
}

func (g *AuthGateway) fail(ctx context.Context, rec *models.AttemptRecord) error {
	if err := g.ledger.RecordFailure(ctx, rec); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	g.audit.Record(ctx, models.AuditEvent{Action: models.AuditLoginFailed, Identifier: rec.Identifier, Kind: rec.Kind})
	if !rec.Locked {
		return nil
	}
	remaining := g.ledger.RemainingLockMinutes(rec)
	g.log.Warn("identifier locked out",
		zap.String("identifier", rec.Identifier),
		zap.String("kind", string(rec.Kind)),
		zap.Int("remaining_minutes", remaining))
	g.audit.Record(ctx, models.AuditEvent{
		Action:     models.AuditLockout,
		Identifier: rec.Identifier,
		Kind:       rec.Kind,
		Detail:     fmt.Sprintf("locked for %d minute(s)", remaining),
	})
	if g.notifier != nil {
		if err := g.notifier.NotifyLockout(ctx, rec, remaining); err != nil {
			g.log.Warn("lockout notification failed", zap.Error(err))
		}
	}
	return nil
}

func (g *AuthGateway) succeed(ctx context.Context, rec *models.AttemptRecord) error {
	if err := g.ledger.Reset(ctx, rec); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

// authenticate runs the lock check, the verifier and the ledger update. It records no
// success event; callers decide what a success means.
func (g *AuthGateway) authenticate(ctx context.Context, identifier, secret string, kind models.AttemptKind) (*models.AttemptRecord, *models.Principal, error) {
	verifier, ok := g.verifiers[kind]
	if !ok || verifier == nil {
		return nil, nil, fmt.Errorf("no verifier for attempt kind %q", kind)
	}

	rec, err := g.checkLock(ctx, identifier, kind)
	if err != nil {
		return nil, nil, err
	}

	principal, err := verifier.Verify(ctx, identifier, secret)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			return nil, nil, fmt.Errorf("verify credentials: %w", err)
		}
		if ferr := g.fail(ctx, rec); ferr != nil {
			return nil, nil, ferr
		}
		return nil, nil, ErrInvalidCredentials
	}

	if err := g.succeed(ctx, rec); err != nil {
		return nil, nil, err
	}
	return rec, principal, nil
}

// Login authenticates identifier with secret for the given kind.
func (g *AuthGateway) Login(ctx context.Context, identifier, secret string, kind models.AttemptKind) (*LoginResult, error) {
	rec, principal, err := g.authenticate(ctx, identifier, secret, kind)
	if err != nil {
		return nil, err
	}
	g.audit.Record(ctx, models.AuditEvent{Action: models.AuditLoginSucceeded, Identifier: rec.Identifier, Kind: kind})
	return &LoginResult{Principal: principal, Role: principal.Role}, nil
}

// VerifyPassword re-checks the password of an already authenticated account, e.g. before
// a password change. It shares the password ledger with Login but is not a login.
func (g *AuthGateway) VerifyPassword(ctx context.Context, username, password string) (*models.Principal, error) {
	_, principal, err := g.authenticate(ctx, username, password, models.KindPassword)
	return principal, err
}

// VerifyPin is the throttled pin check used by the web layer. A wrong pin is (false, nil);
// lockouts and store failures are errors.
func (g *AuthGateway) VerifyPin(ctx context.Context, identifier, pin string) (bool, error) {
	_, err := g.Login(ctx, identifier, pin, models.KindPin)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return false, nil
	}
	return false, err
}

func (g *AuthGateway) SetupPin(ctx context.Context, pin string) error {
	if err := g.pins.Setup(ctx, pin); err != nil {
		return err
	}
	g.audit.Record(ctx, models.AuditEvent{Action: models.AuditPinSetup})
	return nil
}

// ChangePin applies the same protective order as Login to the current pin: a locked
// identifier is rejected up front and a wrong current pin counts as a pin failure.
func (g *AuthGateway) ChangePin(ctx context.Context, identifier, current, newPin string) error {
	rec, err := g.checkLock(ctx, identifier, models.KindPin)
	if err != nil {
		return err
	}
	err = g.pins.Change(ctx, current, newPin)
	switch {
	case err == nil:
		if err := g.succeed(ctx, rec); err != nil {
			return err
		}
		g.audit.Record(ctx, models.AuditEvent{Action: models.AuditPinChanged, Identifier: rec.Identifier, Kind: models.KindPin})
		return nil
	case errors.Is(err, ErrInvalidCurrentPin):
		if ferr := g.fail(ctx, rec); ferr != nil {
			return ferr
		}
		return ErrInvalidCurrentPin
	default:
		return err
	}
}

func (g *AuthGateway) PinStatus(ctx context.Context) (*models.PinStatus, error) {
	return g.pins.Status(ctx)
}

// ClearAttempts is the administrative reset. Empty arguments match everything.
func (g *AuthGateway) ClearAttempts(ctx context.Context, identifier string, kind models.AttemptKind) (int64, error) {
	n, err := g.ledger.Clear(ctx, identifier, kind)
	if err != nil {
		return 0, err
	}
	g.audit.Record(ctx, models.AuditEvent{
		Action:     models.AuditAttemptsCleared,
		Identifier: identifier,
		Kind:       kind,
		Detail:     fmt.Sprintf("%d record(s) cleared", n),
	})
	return n, nil
}

func (g *AuthGateway) Attempts(ctx context.Context, filter models.AttemptFilter) ([]*models.AttemptRecord, error) {
	return g.ledger.List(ctx, filter)
}

// RemainingLockMinutes exposes the ledger's rounding for callers rendering records.
func (g *AuthGateway) RemainingLockMinutes(rec *models.AttemptRecord) int {
	return g.ledger.RemainingLockMinutes(rec)
}
