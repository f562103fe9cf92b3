package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Retention purges records older than a maximum age on a cron schedule.
type Retention struct {
	store  Store
	maxAge time.Duration
	cron   *cron.Cron
	log    *logrus.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
}

// NewRetention creates a retention job for store.
func NewRetention(store Store, maxAge time.Duration, logger *logrus.Logger) *Retention {
	return &Retention{
		store:  store,
		maxAge: maxAge,
		cron:   cron.New(),
		log:    logger,
		now:    time.Now,
	}
}

// Start schedules the purge. An empty schedule or a non-positive maximum age
// disables it. The job stops when ctx is done.
//
// Schedules use standard cron syntax or descriptors such as "@daily".
func (r *Retention) Start(ctx context.Context, schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if schedule == "" || r.maxAge <= 0 {
		r.log.Info("History retention disabled")
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := r.cron.AddFunc(schedule, func() {
		_, _ = r.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule purge: %w", err)
	}

	r.cron.Start()
	r.running = true
	r.log.WithFields(logrus.Fields{
		"schedule": schedule,
		"max_age":  r.maxAge.String(),
	}).Info("History retention started")

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// RunOnce deletes every record older than the maximum age.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		r.log.WithError(err).Error("History purge failed")
		return 0, err
	}
	entry := r.log.WithFields(logrus.Fields{"deleted": n, "cutoff": cutoff.Format(time.RFC3339)})
	if n > 0 {
		entry.Info("History purge completed")
	} else {
		entry.Debug("History purge completed")
	}
	return n, nil
}

// Stop stops the schedule and waits for a running purge to finish.
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		<-r.cron.Stop().Done()
		r.running = false
		r.log.Info("History retention stopped")
	}
}

// NextRun returns the next scheduled purge, if any.
func (r *Retention) NextRun() (time.Time, bool) {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
