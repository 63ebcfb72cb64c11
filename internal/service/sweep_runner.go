package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SweepKind names one of the scheduled batch operations
type SweepKind string

const (
	SweepRenewal            SweepKind = "renewal"
	SweepReconcile          SweepKind = "reconcile"
	SweepAutoSave           SweepKind = "autosave"
	SweepIncomeExpectations SweepKind = "income-expectations"
)

// AllSweeps is the order RunOnce executes sweeps in. Renewal runs before
// reconcile so fresh successors are seeded in the same pass.
var AllSweeps = []SweepKind{SweepRenewal, SweepReconcile, SweepAutoSave, SweepIncomeExpectations}

// SweepReport summarizes one sweep execution
type SweepReport struct {
	Kind      SweepKind     `json:"kind"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Results   interface{}   `json:"results"`
	Error     string        `json:"error,omitempty"`
}

type sweepFunc func(ctx context.Context) (results interface{}, processed, failed int, err error)

// SweepRunner executes the scheduled sweeps, either on demand or on an interval
type SweepRunner struct {
	sweeps   map[SweepKind]sweepFunc
	logger   zerolog.Logger
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// SweepRunnerConfig holds configuration for the sweep runner
type SweepRunnerConfig struct {
	Interval time.Duration // How often Start runs every sweep
}

// DefaultSweepRunnerConfig returns sensible defaults
func DefaultSweepRunnerConfig() SweepRunnerConfig {
	return SweepRunnerConfig{Interval: time.Hour}
}

// NewSweepRunner creates a sweep runner over the given services
func NewSweepRunner(
	budgetService *BudgetService,
	goalService *GoalService,
	incomeService *IncomeService,
	logger zerolog.Logger,
	config SweepRunnerConfig,
) *SweepRunner {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}

	return &SweepRunner{
		sweeps: map[SweepKind]sweepFunc{
			SweepRenewal: func(ctx context.Context) (interface{}, int, int, error) {
				results, err := budgetService.RunBudgetRenewalSweep(ctx)
				return results, len(results), countFailed(results, func(r RenewalResult) string { return r.Status }), err
			},
			SweepReconcile: func(ctx context.Context) (interface{}, int, int, error) {
				results, err := budgetService.RunReconcileSweep(ctx)
				return results, len(results), countFailed(results, func(r ReconcileResult) string { return r.Status }), err
			},
			SweepAutoSave: func(ctx context.Context) (interface{}, int, int, error) {
				results, err := goalService.ProcessAutoSaveDue(ctx)
				return results, len(results), countFailed(results, func(r AutoSaveResult) string { return r.Status }), err
			},
			SweepIncomeExpectations: func(ctx context.Context) (interface{}, int, int, error) {
				results, err := incomeService.RollForwardExpectations(ctx)
				return results, len(results), countFailed(results, func(r ExpectationResult) string { return r.Status }), err
			},
		},
		logger:   logger.With().Str("component", "sweep_runner").Logger(),
		interval: config.Interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func countFailed[T any](results []T, status func(T) string) int {
	n := 0
	for _, r := range results {
		if status(r) == SweepStatusFailed {
			n++
		}
	}
	return n
}

// ParseSweepKind validates a sweep name
func ParseSweepKind(name string) (SweepKind, error) {
	for _, k := range AllSweeps {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sweep %q", name)
}

// RunSweep executes a single sweep. Per-item failures are reported in the
// results; the error is set only when the sweep could not start.
func (r *SweepRunner) RunSweep(ctx context.Context, kind SweepKind) (*SweepReport, error) {
	fn, ok := r.sweeps[kind]
	if !ok {
		return nil, fmt.Errorf("unknown sweep %q", kind)
	}

	report := &SweepReport{Kind: kind, StartedAt: time.Now().UTC()}
	results, processed, failed, err := fn(ctx)
	report.Duration = time.Since(report.StartedAt)
	report.Results = results
	report.Processed = processed
	report.Failed = failed

	if err != nil {
		report.Error = err.Error()
		r.logger.Error().Err(err).Str("sweep", string(kind)).Msg("Sweep failed")
		return report, err
	}

	r.logger.Info().
		Str("sweep", string(kind)).
		Int("processed", processed).
		Int("failed", failed).
		Dur("elapsed", report.Duration).
		Msg("Completed sweep")
	return report, nil
}

// RunOnce executes every sweep in order. A sweep that cannot start does not
// prevent the remaining ones from running.
func (r *SweepRunner) RunOnce(ctx context.Context) []*SweepReport {
	reports := make([]*SweepReport, 0, len(AllSweeps))
	for _, kind := range AllSweeps {
		if ctx.Err() != nil {
			r.logger.Info().Msg("Context cancelled, stopping sweeps")
			break
		}
		report, _ := r.RunSweep(ctx, kind)
		reports = append(reports, report)
	}
	return reports
}

// Start runs every sweep immediately and then on each interval tick
func (r *SweepRunner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info().Dur("interval", r.interval).Msg("Starting sweep runner")
	go r.run(ctx)
}

// Stop gracefully stops the sweep runner
func (r *SweepRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.logger.Info().Msg("Stopping sweep runner")
	close(r.stopCh)
	<-r.doneCh
	r.logger.Info().Msg("Sweep runner stopped")
}

// Done is closed once the run loop has exited
func (r *SweepRunner) Done() <-chan struct{} {
	return r.doneCh
}

func (r *SweepRunner) run(ctx context.Context) {
	defer close(r.doneCh)
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// IsRunning returns whether the runner loop is active
func (r *SweepRunner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
