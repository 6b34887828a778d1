package reboot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/boxpanel/internal/infrastructure/database"
)

// Repository persists the reboot schedule in SQLite.
//
// The table holds at most one row; Save upserts it and Get returns
// ErrNoSchedule when the row is absent.
type Repository struct {
	db *database.DB
}

// NewRepository creates a schedule repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Get loads the stored schedule.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - Schedule: The stored schedule
//   - error: ErrNoSchedule if none is stored, or query failure
func (r *Repository) Get(ctx context.Context) (Schedule, error) {
	var (
		s       Schedule
		days    int
		updated string
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT enabled, hour, minute, days_mask, updated_at FROM reboot_schedule WHERE id = 1`,
	).Scan(&s.Enabled, &s.Hour, &s.Minute, &days, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNoSchedule
	}
	if err != nil {
		return Schedule{}, fmt.Errorf("querying reboot schedule: %w", err)
	}

	s.Days = DayMask(days)
	if ts, perr := time.Parse(time.RFC3339, updated); perr == nil {
		s.UpdatedAt = ts
	}

	return s, nil
}

// Save validates and upserts the schedule.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - s: Schedule to store
//
// Returns:
//   - error: ErrInvalidSchedule on bad fields, or write failure
func (r *Repository) Save(ctx context.Context, s Schedule) error {
	if !s.Valid() {
		return ErrInvalidSchedule
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reboot_schedule (id, enabled, hour, minute, days_mask, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   enabled = excluded.enabled,
		   hour = excluded.hour,
		   minute = excluded.minute,
		   days_mask = excluded.days_mask,
		   updated_at = excluded.updated_at`,
		s.Enabled, s.Hour, s.Minute, int(s.Days), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing reboot schedule: %w", err)
	}

	return nil
}
