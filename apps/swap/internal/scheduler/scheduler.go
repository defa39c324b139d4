package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultRetentionSweepSpec = "@every 10m"

// Sweeper evicts retained orders older than the retention window.
type Sweeper interface {
	SweepExpired(now time.Time) int
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Runner runs periodic maintenance jobs. Jobs recover from panics and a run
// is skipped while the previous one is still going.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(baseCtx context.Context, logger *zap.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger = logger.Named("scheduler")
	adapter := cronLogger{sugar: logger.Sugar()}

	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() { job(r.baseCtx) })
	if err != nil {
		return 0, fmt.Errorf("failed to schedule job %q: %w", spec, err)
	}
	return id, nil
}

// AddRetentionSweep schedules sweeper on spec.
func (r *Runner) AddRetentionSweep(spec string, sweeper Sweeper) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultRetentionSweepSpec
	}
	return r.Add(spec, func(context.Context) {
		evicted := sweeper.SweepExpired(time.Now())
		r.logger.Debug("Retention sweep finished", zap.Int("evicted", evicted))
	})
}

// Entries returns the number of scheduled jobs.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	r.logger.Info("Scheduler started", zap.Int("jobs", r.Entries()))
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("Scheduler stopped")
}
