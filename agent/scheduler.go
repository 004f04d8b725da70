package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"agentchat/config"
	"agentchat/storage"
)

// When describes a schedule_task request.
type When struct {
	Type         string    // scheduled | delayed | cron | no-schedule
	Date         time.Time // scheduled
	DelaySeconds float64   // delayed
	Cron         string    // cron
}

var (
	ErrNoSchedule   = errors.New("not a valid schedule input")
	ErrPastSchedule = errors.New("scheduled time is in the past")
	ErrInvalidCron  = errors.New("invalid cron expression")
)

// Scheduler keeps durable one-shot and cron schedules and calls fire when
// one comes due. One-shot schedules are deleted after firing; cron schedules
// move to their next tick.
type Scheduler struct {
	store *storage.Store
	fire  func(storage.Schedule)
	now   func() time.Time

	wake chan struct{}
	mu   sync.Mutex
}

func NewScheduler(store *storage.Store, fire func(storage.Schedule)) *Scheduler {
	return &Scheduler{
		store: store,
		fire:  fire,
		now:   time.Now,
		wake:  make(chan struct{}, 1),
	}
}

// Schedule stores a new schedule for agent.
func (s *Scheduler) Schedule(ctx context.Context, agent, description string, when When) (storage.Schedule, error) {
	now := s.now()
	sc := storage.Schedule{
		ID:          uuid.NewString()[:8],
		Agent:       agent,
		Description: description,
		Kind:        storage.ScheduleOnce,
		CreatedAt:   now,
	}

	switch when.Type {
	case "scheduled":
		if when.Date.IsZero() {
			return storage.Schedule{}, fmt.Errorf("%w: missing date", ErrNoSchedule)
		}
		if when.Date.Before(now) {
			return storage.Schedule{}, ErrPastSchedule
		}
		sc.NextRun = when.Date
	case "delayed":
		if when.DelaySeconds <= 0 {
			return storage.Schedule{}, fmt.Errorf("%w: delay must be positive", ErrNoSchedule)
		}
		sc.NextRun = now.Add(time.Duration(when.DelaySeconds * float64(time.Second)))
	case "cron":
		expr := strings.TrimSpace(when.Cron)
		if !gronx.IsValid(expr) {
			return storage.Schedule{}, fmt.Errorf("%w: %q", ErrInvalidCron, when.Cron)
		}
		next, err := gronx.NextTickAfter(expr, now, false)
		if err != nil {
			return storage.Schedule{}, fmt.Errorf("%w: %v", ErrInvalidCron, err)
		}
		sc.Kind = storage.ScheduleCron
		sc.Cron = expr
		sc.NextRun = next
	default:
		return storage.Schedule{}, ErrNoSchedule
	}

	if err := s.store.InsertSchedule(ctx, sc); err != nil {
		return storage.Schedule{}, err
	}
	s.poke()
	return sc, nil
}

// Cancel removes a schedule owned by agent.
func (s *Scheduler) Cancel(ctx context.Context, agent, id string) error {
	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	if sc.Agent != agent {
		return fmt.Errorf("%w: %s", storage.ErrScheduleNotFound, id)
	}
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.poke()
	return nil
}

func (s *Scheduler) List(ctx context.Context, agent string) ([]storage.Schedule, error) {
	return s.store.ListSchedules(ctx, agent)
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// idle is how long the loop sleeps when nothing is scheduled.
const idle = time.Hour

// Run fires due schedules until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		wait, err := s.tick(ctx)
		if err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Scheduler] %v", err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// tick fires every due schedule and returns how long to sleep before the
// next one.
func (s *Scheduler) tick(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.AllSchedules(ctx)
	if err != nil {
		return time.Second * 5, fmt.Errorf("failed to load schedules: %w", err)
	}

	now := s.now()
	wait := idle
	for _, sc := range all {
		if sc.NextRun.After(now) {
			if d := sc.NextRun.Sub(now); d < wait {
				wait = d
			}
			// sorted by next_run
			break
		}

		if err := s.advance(ctx, sc, now); err != nil {
			return time.Second, err
		}
		if config.Debug {
			config.DebugLog.Printf("[Scheduler] Firing %s for agent %s: %s", sc.ID, sc.Agent, sc.Description)
		}
		s.fire(sc)
	}
	return wait, nil
}

// advance removes a fired one-shot or moves a cron schedule past now.
func (s *Scheduler) advance(ctx context.Context, sc storage.Schedule, now time.Time) error {
	if sc.Kind != storage.ScheduleCron {
		if err := s.store.DeleteSchedule(ctx, sc.ID); err != nil && !errors.Is(err, storage.ErrScheduleNotFound) {
			return fmt.Errorf("failed to remove fired schedule %s: %w", sc.ID, err)
		}
		return nil
	}

	next, err := gronx.NextTickAfter(sc.Cron, now, false)
	if err != nil {
		_ = s.store.DeleteSchedule(ctx, sc.ID)
		return fmt.Errorf("dropping schedule %s with bad cron %q: %w", sc.ID, sc.Cron, err)
	}
	if err := s.store.UpdateScheduleTime(ctx, sc.ID, next); err != nil {
		return fmt.Errorf("failed to reschedule %s: %w", sc.ID, err)
	}
	return nil
}
