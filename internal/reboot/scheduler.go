package reboot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/boxpanel/internal/appliance"
	"github.com/nerrad567/boxpanel/internal/infrastructure/logging"
)

// idleCheckInterval is how often the scheduler re-reads the store while no
// firing time is pending (disabled schedule or none stored). Cheap single
// row read; keeps the loop simple when nothing is armed.
const idleCheckInterval = 1 * time.Minute

// rebootTimeout bounds the appliance reboot call itself.
const rebootTimeout = 15 * time.Second

// Dispatcher is the authenticated call gateway the scheduler fires
// reboots through.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, resource string, body any) *appliance.Result
}

// Scheduler fires scheduled appliance reboots.
//
// It sleeps until the schedule's next firing time, issues the reboot call,
// then recomputes. Notify wakes it early after a schedule edit so changes
// apply without waiting out the previous timer.
type Scheduler struct {
	repo       *Repository
	dispatcher Dispatcher
	logger     *logging.Logger

	changed chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a reboot scheduler in the stopped state.
func NewScheduler(repo *Repository, dispatcher Dispatcher, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger.With("component", "reboot"),
		changed:    make(chan struct{}, 1),
	}
}

// Start launches the scheduler loop. Safe to call once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("reboot scheduler started")
}

// Stop shuts the scheduler down and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.logger.Info("reboot scheduler stopped")
}

// Notify wakes the loop to reload the schedule. Called after every edit.
func (s *Scheduler) Notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		wait := s.nextWait(ctx)

		timer := time.NewTimer(wait.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.changed:
			timer.Stop()
			continue
		case <-timer.C:
			if wait.fire {
				s.fire(ctx)
			}
		}
	}
}

type waitPlan struct {
	delay time.Duration
	fire  bool
}

// nextWait loads the schedule and computes how long to sleep and whether
// the wakeup is a firing or just a re-check.
func (s *Scheduler) nextWait(ctx context.Context) waitPlan {
	sched, err := s.repo.Get(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoSchedule) {
			s.logger.Warn("loading reboot schedule failed", "error", err)
		}
		return waitPlan{delay: idleCheckInterval}
	}

	next, ok := sched.NextFire(time.Now())
	if !ok {
		return waitPlan{delay: idleCheckInterval}
	}

	return waitPlan{delay: time.Until(next), fire: true}
}

// fire issues the reboot call. Failures are logged only; the next firing
// time is computed regardless.
func (s *Scheduler) fire(ctx context.Context) {
	s.logger.Info("scheduled reboot firing")

	callCtx, cancel := context.WithTimeout(ctx, rebootTimeout)
	defer cancel()

	res := s.dispatcher.Dispatch(callCtx, "POST", "system/reboot/", nil)
	if !res.Success {
		s.logger.Warn("scheduled reboot rejected by appliance",
			"error_code", res.ErrorCode, "message", res.Message)
		return
	}

	s.logger.Info("appliance reboot accepted")
}
