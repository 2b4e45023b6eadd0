package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweatpact/sweatpact/internal/call"
	"github.com/sweatpact/sweatpact/internal/clock"
	"github.com/sweatpact/sweatpact/internal/store"
)

const dailyConcurrency = 8

// DailyScheduler periodically books every active user's morning and
// evening calls for the current day. Each pass is idempotent, so running
// late or twice only fills in what is missing.
type DailyScheduler struct {
	mu       sync.RWMutex
	users    *store.UserStore
	sched    *call.Scheduler
	clk      clock.Clock
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewDailyScheduler(users *store.UserStore, sched *call.Scheduler, clk clock.Clock, interval time.Duration, logger *slog.Logger) *DailyScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &DailyScheduler{
		users:    users,
		sched:    sched,
		clk:      clk,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the scheduler loop. The first pass runs immediately.
func (d *DailyScheduler) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		d.RunOnce(ctx)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.RunOnce(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (d *DailyScheduler) Stop() {
	d.mu.RLock()
	cancel := d.cancel
	done := d.done
	d.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce schedules today's calls for all active users, fanning out with
// bounded concurrency. One user's failure does not stop the rest.
func (d *DailyScheduler) RunOnce(ctx context.Context) {
	users, err := d.users.ListActive()
	if err != nil {
		d.logger.Error("daily scheduling: list users", "error", err)
		return
	}
	today := d.clk.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(dailyConcurrency)

	for i := range users {
		u := users[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			calls, err := d.sched.ScheduleDailyCalls(u.ID, today)
			if err != nil {
				d.logger.Error("daily scheduling failed", "user_id", u.ID, "error", err)
				return nil
			}
			if len(calls) > 0 {
				d.logger.Info("daily calls scheduled", "user_id", u.ID, "count", len(calls))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Warn("daily scheduling interrupted", "error", err)
	}
}
