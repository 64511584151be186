package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/planner"
)

// Evaluator is the planner entry point the scheduler triggers.
// *planner.Planner implements it.
type Evaluator interface {
	EvaluateAndNotify(ctx context.Context, force bool) planner.Result
}

// Scheduler periodically runs an unforced evaluation on a cron schedule.
type Scheduler struct {
	eval    Evaluator
	log     *zap.Logger
	spec    string
	loc     *time.Location
	timeout time.Duration
}

// ValidateSpec checks a standard cron expression or descriptor ("@every 15m").
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// New creates a Scheduler. Each run is bounded by a one-minute timeout.
func New(eval Evaluator, log *zap.Logger, spec string, loc *time.Location) (*Scheduler, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		eval:    eval,
		log:     log,
		spec:    spec,
		loc:     loc,
		timeout: time.Minute,
	}, nil
}

// Run starts the cron loop and blocks until ctx is canceled.
// It waits for a running evaluation before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{s.log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if _, err := c.AddFunc(s.spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule evaluation: %w", err)
	}

	s.log.Info("scheduler started", zap.String("schedule", s.spec))
	c.Start()
	<-ctx.Done()

	s.log.Info("scheduler stopping")
	<-c.Stop().Done()
	return nil
}

// tick performs one scheduled evaluation.
func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.eval.EvaluateAndNotify(ctx, false)
	s.log.Debug("scheduled evaluation done",
		zap.String("action", res.Action.Kind.String()),
		zap.String("rejected", res.Rejected),
		zap.Float64("score", res.Action.Score),
	)
}

// cronLogger routes cron's own logging into zap.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
