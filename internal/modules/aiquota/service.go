// README: AI quota service (per-user gate consulted before every AI extraction).
package aiquota

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Service orchestrates AI quota logic.
type Service struct {
	store *Store
}

// NewService creates a Service backed by the given Store.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Consume deducts one unit from the user's monthly allowance.
// If the user row does not exist yet it is initialised and the unit is immediately consumed.
// Returns ErrQuotaExhausted when the allowance for the current month is used up.
func (s *Service) Consume(ctx context.Context, uid string) error {
	err := s.store.Consume(ctx, uid)
	if !errors.Is(err, ErrQuotaExhausted) {
		return err
	}

	// Row may be missing: try to create it, then retry the deduction once.
	if initErr := s.store.EnsureUser(ctx, uid); initErr != nil {
		return initErr
	}
	return s.store.Consume(ctx, uid)
}

// Allow adapts Consume to the AI extractor's quota gate: exhaustion is a denial, not an error.
func (s *Service) Allow(ctx context.Context, uid string) (bool, error) {
	err := s.Consume(ctx, uid)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrQuotaExhausted):
		return false, nil
	default:
		return false, err
	}
}

// Remaining reports the units left for uid this month.
func (s *Service) Remaining(ctx context.Context, uid string) (int, error) {
	return s.store.Remaining(ctx, uid)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
