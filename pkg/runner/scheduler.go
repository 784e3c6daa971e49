package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"github.com/lanternsoft/reverie/pkg/config"
	"github.com/lanternsoft/reverie/pkg/logger"
)

// Scheduler runs bursts on a fixed interval or a cron expression in a
// background goroutine. Bursts themselves stay single-threaded; the
// scheduler only decides when the next one starts. A streak of bursts
// whose every tick errored trips an auto-pause so a broken provider
// does not burn budget all night.
type Scheduler struct {
	exec     *Executor
	interval time.Duration
	cronExpr string
	ticks    int
	stimulus string

	maxErrorStreak int32
	errorStreak    atomic.Int32

	paused  atomic.Bool
	started atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewScheduler validates the schedule and builds a stopped scheduler.
// Exactly one of cron or interval applies; a cron expression, when
// set, wins.
func NewScheduler(exec *Executor, cfg config.SchedulerConfig) (*Scheduler, error) {
	cronExpr := strings.TrimSpace(cfg.Cron)
	if cronExpr != "" {
		if !gronx.New().IsValid(cronExpr) {
			return nil, fmt.Errorf("invalid cron expression %q", cronExpr)
		}
	}
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if cronExpr == "" && interval <= 0 {
		interval = 30 * time.Minute
	}
	maxStreak := int32(cfg.MaxErrorStreak)
	if maxStreak <= 0 {
		maxStreak = 3
	}
	return &Scheduler{
		exec:           exec,
		interval:       interval,
		cronExpr:       cronExpr,
		maxErrorStreak: maxStreak,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// SetBurst configures how many ticks each scheduled burst runs and
// the standing stimulus, if any.
func (s *Scheduler) SetBurst(ticks int, stimulus string) {
	s.ticks = ticks
	s.stimulus = stimulus
}

// Start launches the background loop. Call Stop to end it.
func (s *Scheduler) Start(ctx context.Context) {
	if s.started.Swap(true) {
		return
	}
	go s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	for {
		wait, err := s.nextWait(time.Now())
		if err != nil {
			logger.ErrorCF("scheduler", "cannot compute next run", map[string]interface{}{"error": err.Error()})
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		if s.paused.Load() {
			continue
		}

		result := s.exec.RunBurst(ctx, s.ticks, s.stimulus)
		s.noteBurst(result)
	}
}

// noteBurst tracks consecutive all-error bursts for the auto-pause.
func (s *Scheduler) noteBurst(result BurstResult) {
	allFailed := len(result.Ticks) > 0
	for _, tick := range result.Ticks {
		if len(tick.Errors) == 0 {
			allFailed = false
			break
		}
	}
	if allFailed {
		streak := s.errorStreak.Add(1)
		if streak >= s.maxErrorStreak {
			s.paused.Store(true)
			logger.ErrorCF("scheduler", "auto-paused after error streak", map[string]interface{}{"streak": streak})
		}
		return
	}
	s.errorStreak.Store(0)
}

func (s *Scheduler) nextWait(now time.Time) (time.Duration, error) {
	if s.cronExpr != "" {
		next, err := gronx.NextTickAfter(s.cronExpr, now, false)
		if err != nil {
			return 0, err
		}
		return next.Sub(now), nil
	}
	return s.interval, nil
}

// Pause skips scheduled bursts until Resume. An in-flight burst is
// not interrupted.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume re-enables scheduled bursts and clears the error streak.
func (s *Scheduler) Resume() {
	s.errorStreak.Store(0)
	s.paused.Store(false)
}

// Paused reports whether scheduled bursts are currently skipped.
func (s *Scheduler) Paused() bool { return s.paused.Load() }

// Stop ends the background loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.stopped.Swap(true) {
		return
	}
	s.once.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}
