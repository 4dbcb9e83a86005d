// README: AI quota persistence (pgx, lazy monthly reset in a single UPDATE).
package aiquota

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store handles ai_quota persistence.
type Store struct {
	db        *pgxpool.Pool
	allowance int
	now       func() time.Time
}

// NewStore returns a Store backed by the given connection pool. allowance <= 0 uses DefaultAllowance.
func NewStore(db *pgxpool.Pool, allowance int) *Store {
	if allowance <= 0 {
		allowance = DefaultAllowance
	}
	return &Store{db: db, allowance: allowance, now: time.Now}
}

// Consume atomically checks the monthly allowance and deducts one unit.
// It resets the counter when last_reset_month is behind the current month.
// Returns ErrQuotaExhausted when 0 rows are updated (allowance used up or user absent).
func (s *Store) Consume(ctx context.Context, uid string) error {
	month := s.now().Format(monthLayout)

	tag, err := s.db.Exec(ctx, `
		UPDATE ai_quota SET
			remaining = CASE WHEN last_reset_month != $1 THEN $2 - 1 ELSE remaining - 1 END,
			last_reset_month = $1,
			updated_at = NOW()
		WHERE uid = $3 AND (last_reset_month < $1 OR remaining > 0)
	`, month, s.allowance, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuotaExhausted
	}
	return nil
}

// EnsureUser inserts a row for uid with the full allowance; existing rows are left alone.
func (s *Store) EnsureUser(ctx context.Context, uid string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ai_quota (uid, remaining, last_reset_month)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO NOTHING
	`, uid, s.allowance, s.now().Format(monthLayout))
	return err
}

// Remaining reports the units left this month; unknown users have the full allowance.
func (s *Store) Remaining(ctx context.Context, uid string) (int, error) {
	month := s.now().Format(monthLayout)
	var remaining int
	var last string
	err := s.db.QueryRow(ctx, `SELECT remaining, last_reset_month FROM ai_quota WHERE uid = $1`, uid).Scan(&remaining, &last)
	if err != nil {
		if isNoRows(err) {
			return s.allowance, nil
		}
		return 0, err
	}
	if last < month {
		return s.allowance, nil
	}
	return remaining, nil
}
