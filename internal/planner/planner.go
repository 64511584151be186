// Package planner gates coaching decisions with wall-clock limits and hands
// approved nudges to the delivery channels.
package planner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/coach"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/metrics"
)

// EventSource is the read-only view over the smoking log.
type EventSource interface {
	// QueryEvents returns events at or after since (all events when since is nil),
	// ordered by timestamp.
	QueryEvents(ctx context.Context, since *time.Time) ([]domain.Event, error)
}

// ProfileSource returns the active profile, or nil when none exists yet.
type ProfileSource interface {
	GetActiveProfile(ctx context.Context) (*domain.UserProfile, error)
}

// Notifier delivers a nudge to the user.
type Notifier interface {
	Deliver(ctx context.Context, message string) error
}

// TipPublisher exposes the latest nudge to other processes. Best effort.
type TipPublisher interface {
	PublishLatestTip(ctx context.Context, message string, at time.Time) error
}

// Recorder receives planner metrics. *metrics.Exporter implements it.
type Recorder interface {
	ObserveEvaluation(outcome string, forced bool, score float64)
	ObserveDelivery(channel string, err error)
	ObserveReadError(source string)
	SetSentToday(n int)
}

// ReasonCanceled marks an evaluation abandoned because its context ended.
const ReasonCanceled = "canceled"

// Result describes one evaluation.
type Result struct {
	At       time.Time
	Action   coach.Action
	Rejected string               // gate reason; empty when the policy ran
	Features *coach.FeatureVector // nil when rejected before reading data
}

// Planner is the JITAI scheduler: gates → features → policy → hand-off.
type Planner struct {
	engine   *coach.Engine
	features *coach.FeatureStore
	limiter  *RateLimiter

	events   EventSource
	profiles ProfileSource
	notifier Notifier
	tips     TipPublisher
	rec      Recorder
	log      *zap.Logger

	clock           func() time.Time
	loc             *time.Location
	deliveryTimeout time.Duration

	evalMu sync.Mutex     // one evaluation at a time
	wg     sync.WaitGroup // in-flight deliveries
}

// Option customizes a Planner.
type Option func(*Planner)

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option { return func(p *Planner) { p.clock = clock } }

// WithLocation sets the zone used for hours and calendar days.
func WithLocation(loc *time.Location) Option { return func(p *Planner) { p.loc = loc } }

// WithRateLimiter injects limiter state, e.g. fresh per test.
func WithRateLimiter(l *RateLimiter) Option { return func(p *Planner) { p.limiter = l } }

// WithTipPublisher sets the latest-tip side channel.
func WithTipPublisher(t TipPublisher) Option { return func(p *Planner) { p.tips = t } }

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option { return func(p *Planner) { p.rec = r } }

// WithDeliveryTimeout bounds each hand-off.
func WithDeliveryTimeout(d time.Duration) Option { return func(p *Planner) { p.deliveryTimeout = d } }

// New creates a Planner. Without WithRateLimiter it starts with DefaultLimits.
func New(engine *coach.Engine, features *coach.FeatureStore, events EventSource, profiles ProfileSource,
	notifier Notifier, log *zap.Logger, opts ...Option) *Planner {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Planner{
		engine:          engine,
		features:        features,
		events:          events,
		profiles:        profiles,
		notifier:        notifier,
		log:             log,
		clock:           time.Now,
		loc:             time.Local,
		deliveryTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.limiter == nil {
		p.limiter = NewRateLimiter(DefaultLimits())
	}
	if p.rec == nil {
		p.rec = nopRecorder{}
	}
	return p
}

// EvaluateAndNotify runs one evaluation. Unless force is set, the daily cap,
// quiet hours and minimum interval gates must all pass before any data is read.
// A nudge consumes a slot and is handed off asynchronously; use Wait to block
// until hand-offs finish. Errors never propagate: failed reads degrade to
// empty data, failed deliveries are logged.
func (p *Planner) EvaluateAndNotify(ctx context.Context, force bool) Result {
	p.evalMu.Lock()
	defer p.evalMu.Unlock()

	now := p.clock().In(p.loc)
	res := Result{At: now}

	if ctx.Err() != nil {
		res.Rejected = ReasonCanceled
		return res
	}

	var reason string
	if force {
		p.limiter.Rollover(now)
	} else {
		reason = p.limiter.Check(now)
	}
	p.syncSentToday()
	if reason != "" {
		p.log.Debug("evaluation gated", zap.String("reason", reason), zap.Time("now", now))
		p.rec.ObserveEvaluation(reason, false, -1)
		res.Rejected = reason
		return res
	}

	events := p.readEvents(ctx, now)
	profile := p.readProfile(ctx)

	fv := p.features.Collect(events, profile, now)
	res.Features = &fv
	res.Action = p.engine.Decide(fv, force)

	if !res.Action.IsNudge() {
		p.log.Debug("no nudge",
			zap.Float64("score", res.Action.Score),
			zap.Float64("threshold", p.engine.Threshold()),
			zap.Bool("forced", force),
		)
		p.rec.ObserveEvaluation(metrics.OutcomeNone, force, res.Action.Score)
		return res
	}

	// Abandon before consuming a slot if the host gave up meanwhile.
	if ctx.Err() != nil {
		res.Action = coach.Action{Kind: coach.ActionNone, Score: res.Action.Score}
		res.Rejected = ReasonCanceled
		return res
	}

	sent := p.limiter.Record(now)
	p.rec.SetSentToday(sent)
	p.rec.ObserveEvaluation(metrics.OutcomeNudge, force, res.Action.Score)
	p.log.Info("nudge approved",
		zap.String("category", string(res.Action.Category)),
		zap.Float64("score", res.Action.Score),
		zap.Bool("forced", force),
		zap.Int("sent_today", sent),
	)

	p.dispatch(ctx, res.Action.Message, now)
	return res
}

func (p *Planner) readEvents(ctx context.Context, now time.Time) []domain.Event {
	since := now.Add(-p.features.Lookback())
	events, err := p.events.QueryEvents(ctx, &since)
	if err != nil {
		p.log.Warn("query events failed, treating log as empty", zap.Error(err))
		p.rec.ObserveReadError("events")
		return nil
	}
	return events
}

func (p *Planner) readProfile(ctx context.Context) *domain.UserProfile {
	profile, err := p.profiles.GetActiveProfile(ctx)
	if err != nil {
		p.log.Warn("get profile failed, using defaults", zap.Error(err))
		p.rec.ObserveReadError("profile")
		return nil
	}
	return profile
}

// dispatch hands the message to the notifier and the tip publisher in the
// background. The slot stays consumed whatever the outcome.
func (p *Planner) dispatch(ctx context.Context, message string, at time.Time) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.deliveryTimeout)
		defer cancel()

		err := p.notifier.Deliver(dctx, message)
		p.rec.ObserveDelivery(metrics.ChannelNotifier, err)
		if err != nil {
			p.log.Warn("nudge delivery failed", zap.Error(err))
		}

		if p.tips == nil {
			return
		}
		err = p.tips.PublishLatestTip(dctx, message, at)
		p.rec.ObserveDelivery(metrics.ChannelLatestTip, err)
		if err != nil {
			p.log.Warn("publish latest tip failed", zap.Error(err))
		}
	}()
}

// Wait blocks until all in-flight hand-offs complete.
func (p *Planner) Wait() {
	p.wg.Wait()
}

// UpdateLimits validates and applies new limits; the next evaluation uses them.
func (p *Planner) UpdateLimits(l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	p.limiter.SetLimits(l)
	p.log.Info("limits updated",
		zap.Int("max_per_day", l.MaxPerDay),
		zap.String("quiet", l.Quiet.String()),
		zap.Duration("min_interval", l.MinInterval),
	)
	return nil
}

// Status is a point-in-time view for status screens.
type Status struct {
	Now    time.Time
	Limits Limits
	State  RateState
}

// Status returns the current limits and rate state, with the day rolled over
// if it has changed since the last evaluation.
func (p *Planner) Status() Status {
	now := p.clock().In(p.loc)
	p.limiter.Rollover(now)
	limits, state := p.limiter.Snapshot()
	p.rec.SetSentToday(state.SentToday)
	return Status{Now: now, Limits: limits, State: state}
}

// syncSentToday mirrors the limiter's counter, which a rollover may have reset.
func (p *Planner) syncSentToday() {
	_, state := p.limiter.Snapshot()
	p.rec.SetSentToday(state.SentToday)
}

// Location returns the zone the planner evaluates in.
func (p *Planner) Location() *time.Location { return p.loc }

type nopRecorder struct{}

func (nopRecorder) ObserveEvaluation(string, bool, float64) {}
func (nopRecorder) ObserveDelivery(string, error)           {}
func (nopRecorder) ObserveReadError(string)                 {}
func (nopRecorder) SetSentToday(int)                        {}
