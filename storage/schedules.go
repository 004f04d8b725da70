package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type ScheduleKind string

const (
	ScheduleOnce ScheduleKind = "scheduled"
	ScheduleCron ScheduleKind = "cron"
)

// ErrScheduleNotFound is returned when a schedule id is unknown.
var ErrScheduleNotFound = errors.New("schedule not found")

type Schedule struct {
	ID          string
	Agent       string
	Description string
	Kind        ScheduleKind
	Cron        string // set for ScheduleCron
	NextRun     time.Time
	CreatedAt   time.Time
}

func (s *Store) InsertSchedule(ctx context.Context, sc Schedule) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO schedules (id, agent, description, kind, cron, next_run, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sc.ID, sc.Agent, sc.Description, string(sc.Kind), sc.Cron, sc.NextRun.UnixMilli(), sc.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

// UpdateScheduleTime moves a cron schedule to its next run.
func (s *Store) UpdateScheduleTime(ctx context.Context, id string, next time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET next_run = ? WHERE id = ?`, next.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return requireRow(res, id)
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return requireRow(res, id)
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, agent, description, kind, cron, next_run, created_at
	FROM schedules WHERE id = ?
	`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

// ListSchedules returns the schedules of one agent, soonest first.
func (s *Store) ListSchedules(ctx context.Context, agent string) ([]Schedule, error) {
	return s.querySchedules(ctx, `
	SELECT id, agent, description, kind, cron, next_run, created_at
	FROM schedules WHERE agent = ?
	ORDER BY next_run
	`, agent)
}

// AllSchedules returns every schedule, soonest first.
func (s *Store) AllSchedules(ctx context.Context) ([]Schedule, error) {
	return s.querySchedules(ctx, `
	SELECT id, agent, description, kind, cron, next_run, created_at
	FROM schedules
	ORDER BY next_run
	`)
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row scanner) (Schedule, error) {
	var (
		sc        Schedule
		kind      string
		cron      sql.NullString
		nextRun   int64
		createdAt int64
	)
	if err := row.Scan(&sc.ID, &sc.Agent, &sc.Description, &kind, &cron, &nextRun, &createdAt); err != nil {
		return Schedule{}, err
	}
	sc.Kind = ScheduleKind(kind)
	sc.Cron = cron.String
	sc.NextRun = fromMillis(nextRun)
	sc.CreatedAt = fromMillis(createdAt)
	return sc, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}
	return nil
}
