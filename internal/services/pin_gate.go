package services

import (
	"context"
	"crypto/subtle"
	"errors"

	"go.uber.org/zap"

	"ypgattendance/internal/models"
	"ypgattendance/internal/repositories"
)

const pinLength = 4

// PinGate holds the single shared security pin that privileged mutations must present.
// It does not know which operations it guards; callers invoke Verify themselves.
type PinGate struct {
	repo  repositories.PinRepository
	clock Clock
	log   *zap.Logger
}

func NewPinGate(repo repositories.PinRepository, clock Clock, logger *zap.Logger) *PinGate {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PinGate{repo: repo, clock: clock, log: logger}
}

// ValidPinFormat reports whether pin is exactly four ASCII digits.
func ValidPinFormat(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

func pinEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (g *PinGate) GetActive(ctx context.Context) (*models.PinSecret, error) {
	return g.repo.GetActive(ctx)
}

func (g *PinGate) Verify(ctx context.Context, candidate string) (bool, error) {
	active, err := g.repo.GetActive(ctx)
	if err != nil {
		return false, err
	}
	if active == nil || !ValidPinFormat(candidate) {
		return false, nil
	}
	return pinEqual(active.Value, candidate), nil
}

func (g *PinGate) Setup(ctx context.Context, pin string) error {
	if !ValidPinFormat(pin) {
		return ErrInvalidFormat
	}
	active, err := g.repo.GetActive(ctx)
	if err != nil {
		return err
	}
	if active != nil {
		return ErrAlreadyConfigured
	}
	if _, err := g.repo.CreateActive(ctx, pin, g.clock.Now()); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return ErrAlreadyConfigured
		}
		return err
	}
	g.log.Info("security pin configured")
	return nil
}

// Change verifies current against the active pin and swaps in newPin atomically. On any
// error the previously active pin stays active and unchanged.
func (g *PinGate) Change(ctx context.Context, current, newPin string) error {
	if !ValidPinFormat(newPin) {
		return ErrInvalidFormat
	}
	_, err := g.repo.ReplaceActive(ctx, newPin, g.clock.Now(), func(active *models.PinSecret) error {
		if active == nil || !ValidPinFormat(current) || !pinEqual(active.Value, current) {
			return ErrInvalidCurrentPin
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			// another writer activated a pin between our lock and insert
			return ErrInvalidCurrentPin
		}
		return err
	}
	g.log.Info("security pin changed")
	return nil
}

func (g *PinGate) Status(ctx context.Context) (*models.PinStatus, error) {
	active, err := g.repo.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return &models.PinStatus{Configured: false}, nil
	}
	created, updated := active.CreatedAt, active.UpdatedAt
	return &models.PinStatus{Configured: true, CreatedAt: &created, UpdatedAt: &updated}, nil
}
