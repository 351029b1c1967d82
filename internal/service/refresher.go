package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/util"
)

const (
	pruneSchedule  = "@every 1h"
	refreshTimeout = time.Minute
)

// Simulator produces synthetic backend rows on a schedule.
type Simulator interface {
	Tick(ctx context.Context)
}

// Refresher keeps the OTX pulse list and threat map warm, prunes cache
// entries older than the retention window and drives the fixture simulator.
type Refresher struct {
	cron        *cron.Cron
	lookups     *LookupService
	schedule    string
	retention   time.Duration
	pruners     map[string]cache.Pruner
	simulator   Simulator
	simSchedule string
	logger      *zap.Logger
}

func NewRefresher(lookups *LookupService, schedule string, retention time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		cron:      cron.New(),
		lookups:   lookups,
		schedule:  schedule,
		retention: retention,
		pruners:   make(map[string]cache.Pruner),
		logger:    logger,
	}
}

// AddPruner registers a cache store for housekeeping. Call before Start.
func (r *Refresher) AddPruner(namespace string, p cache.Pruner) {
	if p != nil {
		r.pruners[namespace] = p
	}
}

// SetSimulator runs sim on schedule once started. Call before Start.
func (r *Refresher) SetSimulator(schedule string, sim Simulator) {
	r.simSchedule = schedule
	r.simulator = sim
}

func (r *Refresher) Start() error {
	if r.schedule != "" {
		if _, err := r.cron.AddFunc(r.schedule, r.RefreshPulses); err != nil {
			return fmt.Errorf("add pulse refresh schedule %q: %w", r.schedule, err)
		}
	}
	if r.retention > 0 && len(r.pruners) > 0 {
		if _, err := r.cron.AddFunc(pruneSchedule, r.Prune); err != nil {
			return fmt.Errorf("add prune schedule: %w", err)
		}
	}
	if r.simulator != nil && r.simSchedule != "" {
		if _, err := r.cron.AddFunc(r.simSchedule, r.Simulate); err != nil {
			return fmt.Errorf("add simulation schedule %q: %w", r.simSchedule, err)
		}
	}
	r.cron.Start()
	r.logger.Info("Refresher started",
		util.String("pulse_schedule", r.schedule),
		util.Int("pruners", len(r.pruners)),
		util.Int("entries", len(r.cron.Entries())))
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		r.logger.Warn("refresher stop timeout")
		return ctx.Err()
	}
}

// RefreshPulses reloads the default pulse list and the threat map. It does
// nothing until an OTX key is configured.
func (r *Refresher) RefreshPulses() {
	if !r.lookups.Keys().OTX {
		r.logger.Debug("skipping pulse refresh, no OTX key")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if _, _, err := r.lookups.OTXPulses(ctx, DefaultPulseLimit); err != nil {
		r.logger.Warn("pulse refresh failed", util.ErrorField(err))
	}
	if _, _, err := r.lookups.OTXThreatMap(ctx); err != nil {
		r.logger.Warn("threat map refresh failed", util.ErrorField(err))
	}
}

// Simulate runs one simulator tick.
func (r *Refresher) Simulate() {
	if r.simulator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	r.simulator.Tick(ctx)
}

// Prune removes cache entries written before now minus the retention window.
func (r *Refresher) Prune() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	cutoff := time.Now().Add(-r.retention)
	for ns, p := range r.pruners {
		n, err := p.Prune(ctx, cutoff)
		if err != nil {
			r.logger.Warn("cache prune failed", util.String("namespace", ns), util.ErrorField(err))
			continue
		}
		if n > 0 {
			r.logger.Info("cache pruned", util.String("namespace", ns), util.Int("removed", n))
		}
	}
}
