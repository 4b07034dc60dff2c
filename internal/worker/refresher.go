// Package worker runs background jobs for serve mode.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/martinsuchenak/bulbs/internal/engine"
	"github.com/martinsuchenak/bulbs/internal/log"
	"github.com/martinsuchenak/bulbs/internal/model"
)

// refreshBudget bounds one whole refresh sweep.
const refreshBudget = 30 * time.Second

// Refresher periodically re-queries every known bulb so the registry
// and inventory track reality while the server runs.
type Refresher struct {
	cron     *cron.Cron
	engine   *engine.Engine
	schedule string
}

// NewRefresher creates a refresher on a cron schedule, for example
// "@every 30s".
func NewRefresher(eng *engine.Engine, schedule string) *Refresher {
	return &Refresher{
		cron:     cron.New(),
		engine:   eng,
		schedule: schedule,
	}
}

// Start registers the refresh job and starts the scheduler.
func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.refresh); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.schedule, err)
	}
	r.cron.Start()
	log.Info("Status refresher started", "schedule", r.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (r *Refresher) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Info("Status refresher stopped")
}

func (r *Refresher) refresh() {
	targets := r.engine.Registry().Addresses()
	if len(targets) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshBudget)
	defer cancel()

	report, err := r.engine.Run(ctx, model.QueryStatus(targets...))
	if err != nil {
		log.Warn("Status refresh failed", "error", err)
		return
	}
	log.Debug("Status refresh complete",
		"outcome", report.Outcome, "succeeded", report.Succeeded(), "targets", len(targets))
}
