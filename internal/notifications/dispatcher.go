package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/subtrackhq/subtrack/internal/pkg/ctxlog"
)

// Renewer advances overdue subscriptions before dispatch. Implemented by
// schedule.Advancer.
type Renewer interface {
	Run(ctx context.Context) (int, error)
}

// DispatcherConfig contains dispatch cycle configuration.
type DispatcherConfig struct {
	BatchSize int
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{BatchSize: 100}
}

// CycleResult summarizes one dispatch cycle.
type CycleResult struct {
	Renewed    int       `json:"renewed"`
	Dispatched int       `json:"dispatched"`
	Results    []Outcome `json:"results"`
}

// Dispatcher runs the periodic notification cycle: advance overdue
// subscriptions, then deliver every due pending job.
type Dispatcher struct {
	config    DispatcherConfig
	repo      Repository
	deliverer *Deliverer
	renewer   Renewer

	now func() time.Time
}

// NewDispatcher creates a dispatch cycle runner.
func NewDispatcher(config DispatcherConfig, repo Repository, deliverer *Deliverer, renewer Renewer) *Dispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultDispatcherConfig().BatchSize
	}
	return &Dispatcher{
		config:    config,
		repo:      repo,
		deliverer: deliverer,
		renewer:   renewer,
		now:       time.Now,
	}
}

// RunCycle executes one full cycle. A renewal failure is logged but does not
// block dispatch; a failure to list due jobs aborts the cycle.
func (d *Dispatcher) RunCycle(ctx context.Context) (*CycleResult, error) {
	log := ctxlog.FromContext(ctx)
	result := &CycleResult{Results: []Outcome{}}

	renewed, err := d.renewer.Run(ctx)
	if err != nil {
		log.Error("renewal pass failed", "error", err)
	}
	result.Renewed = renewed
	RecordRenewals(renewed)

	ids, err := d.repo.FetchDueIDs(ctx, d.now(), d.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list due notifications: %w", err)
	}

	if len(ids) == 0 {
		log.Info("dispatch cycle complete", "renewed", result.Renewed, "dispatched", 0)
		d.recordQueueDepth(ctx)
		return result, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make([]Outcome, 0, len(ids))
	)

	for _, id := range ids {
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			outcome := d.deliverer.Deliver(ctx, jobID)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	result.Dispatched = len(outcomes)
	result.Results = outcomes

	log.Info("dispatch cycle complete",
		"renewed", result.Renewed,
		"dispatched", result.Dispatched,
	)

	d.recordQueueDepth(ctx)

	return result, nil
}

func (d *Dispatcher) recordQueueDepth(ctx context.Context) {
	stats, err := d.repo.GetQueueStats(ctx)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("failed to read queue stats", "error", err)
		return
	}
	RecordQueueStats(stats)
}
