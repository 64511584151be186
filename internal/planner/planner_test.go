package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/coach"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
	calls  int
}

func (f *fakeEvents) QueryEvents(_ context.Context, since *time.Time) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Event
	for _, e := range f.events {
		if since == nil || !e.Timestamp.Before(*since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeProfiles struct {
	profile *domain.UserProfile
	err     error
}

func (f *fakeProfiles) GetActiveProfile(context.Context) (*domain.UserProfile, error) {
	return f.profile, f.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (f *fakeNotifier) Deliver(_ context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeTips struct {
	mu   sync.Mutex
	last string
	at   time.Time
	err  error
}

func (f *fakeTips) PublishLatestTip(_ context.Context, message string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.last, f.at = message, at
	return nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	outcomes  map[string]int
	sentToday int
}

func (r *fakeRecorder) ObserveEvaluation(outcome string, _ bool, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome]++
}
func (r *fakeRecorder) ObserveDelivery(string, error) {}
func (r *fakeRecorder) ObserveReadError(string)       {}
func (r *fakeRecorder) SetSentToday(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentToday = n
}

func (r *fakeRecorder) sent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sentToday
}

// clock is a settable wall clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	planner  *Planner
	clock    *clock
	events   *fakeEvents
	profiles *fakeProfiles
	notifier *fakeNotifier
	tips     *fakeTips
	limiter  *RateLimiter
	logs     *observer.ObservedLogs
}

func at(hour, minute int) time.Time {
	return time.Date(2025, time.May, 20, hour, minute, 0, 0, time.UTC)
}

func newHarness(t *testing.T, now time.Time, limits Limits) *harness {
	t.Helper()
	cat, err := coach.DefaultCatalogue()
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		clock:    &clock{now: now},
		events:   &fakeEvents{},
		profiles: &fakeProfiles{},
		notifier: &fakeNotifier{},
		tips:     &fakeTips{},
		limiter:  NewRateLimiter(limits),
		logs:     logs,
	}
	h.planner = New(
		coach.NewEngine(coach.DefaultPolicyConfig(), cat, coach.NewSeededPicker(7)),
		coach.NewFeatureStore(coach.DefaultFeatureConfig()),
		h.events, h.profiles, h.notifier, zap.New(core),
		WithClock(h.clock.Now),
		WithLocation(time.UTC),
		WithRateLimiter(h.limiter),
		WithTipPublisher(h.tips),
	)
	return h
}

// smokeJustNow makes the log look craving-proximal at the current clock.
func (h *harness) smokeJustNow() {
	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	h.events.events = append(h.events.events, domain.Event{ID: "e", Timestamp: h.clock.Now().Add(-5 * time.Minute)})
}

func (h *harness) evaluate(force bool) Result {
	res := h.planner.EvaluateAndNotify(context.Background(), force)
	h.planner.Wait()
	return res
}

func (h *harness) sentToday() int {
	_, st := h.limiter.Snapshot()
	return st.SentToday
}

// --- tests ---

func TestEvaluate_CravingProximalScenario(t *testing.T) {
	h := newHarness(t, at(14, 5), DefaultLimits())
	h.events.events = []domain.Event{{ID: "e1", Timestamp: at(13, 55)}}

	res := h.evaluate(false)

	require.True(t, res.Action.IsNudge())
	assert.Empty(t, res.Rejected)
	require.NotNil(t, res.Features)
	assert.InDelta(t, 10, res.Features.MinutesSinceLastEvent, 1e-9)
	assert.Equal(t, 1, h.notifier.count())
	assert.Equal(t, 1, h.sentToday())
	assert.Equal(t, res.Action.Message, h.tips.last)
	assert.True(t, h.tips.at.Equal(at(14, 5)))
}

func TestEvaluate_EmptyLogNoNudge(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())

	res := h.evaluate(false)

	assert.False(t, res.Action.IsNudge())
	assert.Empty(t, res.Rejected)
	assert.Zero(t, h.notifier.count())
	assert.Zero(t, h.sentToday())
}

func TestEvaluate_QuietHoursBlockNudges(t *testing.T) {
	cases := []struct {
		name  string
		quiet domain.QuietHours
		now   time.Time
	}{
		{"wrap evening", domain.QuietHours{Start: 22, End: 6}, at(23, 10)},
		{"wrap morning", domain.QuietHours{Start: 22, End: 6}, at(3, 0)},
		{"wrap end hour", domain.QuietHours{Start: 22, End: 6}, at(6, 45)},
		{"daytime window", domain.QuietHours{Start: 13, End: 15}, at(14, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limits := DefaultLimits()
			limits.Quiet = tc.quiet
			h := newHarness(t, tc.now, limits)
			h.smokeJustNow()

			res := h.evaluate(false)

			assert.Equal(t, ReasonQuietHours, res.Rejected)
			assert.False(t, res.Action.IsNudge())
			assert.Nil(t, res.Features, "gated evaluation must not read data")
			assert.Zero(t, h.events.calls)
			assert.Zero(t, h.notifier.count())
		})
	}
}

func TestEvaluate_ForceBypassesQuietHours(t *testing.T) {
	h := newHarness(t, at(23, 30), DefaultLimits())
	h.smokeJustNow()

	res := h.evaluate(true)

	assert.Empty(t, res.Rejected)
	require.NotNil(t, res.Features)
	assert.True(t, res.Action.IsNudge())
	assert.Equal(t, 1, h.notifier.count())
}

func TestEvaluate_ForceStillRunsPolicy(t *testing.T) {
	h := newHarness(t, at(23, 30), DefaultLimits())
	// long streak, nothing recent: almost no signal even when forced
	h.events.events = []domain.Event{{ID: "old", Timestamp: at(12, 0).AddDate(0, 0, -300)}}

	res := h.evaluate(true)

	assert.Empty(t, res.Rejected)
	assert.False(t, res.Action.IsNudge())
	assert.Zero(t, h.notifier.count())
}

func TestEvaluate_DailyCap(t *testing.T) {
	limits := DefaultLimits()
	limits.MinInterval = 0
	h := newHarness(t, at(9, 0), limits)

	for i := 0; i < limits.MaxPerDay; i++ {
		h.smokeJustNow()
		res := h.evaluate(false)
		require.True(t, res.Action.IsNudge(), "nudge %d", i+1)
		h.clock.Advance(time.Minute)
	}

	h.smokeJustNow()
	res := h.evaluate(false)
	assert.Equal(t, ReasonDailyCap, res.Rejected)
	assert.Equal(t, limits.MaxPerDay, h.notifier.count())

	// next calendar day resets the counter
	h.clock.Set(at(9, 0).AddDate(0, 0, 1))
	h.smokeJustNow()
	res = h.evaluate(false)
	assert.True(t, res.Action.IsNudge())
	assert.Equal(t, 1, h.sentToday())
}

func TestEvaluate_MinimumInterval(t *testing.T) {
	h := newHarness(t, at(9, 0), DefaultLimits())
	h.smokeJustNow()
	require.True(t, h.evaluate(false).Action.IsNudge())

	h.clock.Advance(time.Hour)
	h.smokeJustNow()
	assert.Equal(t, ReasonMinInterval, h.evaluate(false).Rejected)

	// exactly the minimum is not enough
	h.clock.Advance(time.Hour)
	h.smokeJustNow()
	assert.Equal(t, ReasonMinInterval, h.evaluate(false).Rejected)

	h.clock.Advance(time.Minute)
	h.smokeJustNow()
	assert.True(t, h.evaluate(false).Action.IsNudge())

	// force ignores the interval
	h.clock.Advance(time.Minute)
	assert.True(t, h.evaluate(true).Action.IsNudge())
	assert.Equal(t, 3, h.notifier.count())
}

func TestEvaluate_ReadFailuresDegrade(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())
	h.events.err = errors.New("disk on fire")
	h.profiles.err = errors.New("no profile table")

	res := h.evaluate(false)

	assert.Empty(t, res.Rejected)
	assert.False(t, res.Action.IsNudge())
	require.NotNil(t, res.Features)
	assert.Equal(t, coach.NoEventMinutes, res.Features.MinutesSinceLastEvent)
	assert.Equal(t, 1, h.logs.FilterMessage("query events failed, treating log as empty").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("get profile failed, using defaults").Len())
}

func TestEvaluate_DeliveryFailureKeepsSlot(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())
	h.notifier.err = errors.New("telegram down")
	h.smokeJustNow()

	res := h.evaluate(false)

	assert.True(t, res.Action.IsNudge())
	assert.Equal(t, 1, h.sentToday(), "a failed delivery is not refunded")
	assert.Equal(t, 1, h.logs.FilterMessage("nudge delivery failed").Len())
	// the side channel still gets the tip
	assert.Equal(t, res.Action.Message, h.tips.last)
}

func TestEvaluate_TipFailureIgnored(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())
	h.tips.err = errors.New("read-only db")
	h.smokeJustNow()

	res := h.evaluate(false)

	assert.True(t, res.Action.IsNudge())
	assert.Equal(t, 1, h.notifier.count())
	assert.Equal(t, 1, h.logs.FilterMessage("publish latest tip failed").Len())
}

func TestEvaluate_CanceledContext(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())
	h.smokeJustNow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.planner.EvaluateAndNotify(ctx, false)
	h.planner.Wait()

	assert.Equal(t, ReasonCanceled, res.Rejected)
	assert.Zero(t, h.sentToday())
	assert.Zero(t, h.notifier.count())
}

func TestEvaluate_ConcurrentCallsRespectCap(t *testing.T) {
	limits := DefaultLimits()
	limits.MinInterval = 0
	h := newHarness(t, at(9, 0), limits)
	h.smokeJustNow()
	// every reading of the clock moves it forward so the interval gate never blocks
	var mu sync.Mutex
	now := at(9, 0)
	h.planner.clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.planner.EvaluateAndNotify(context.Background(), false)
		}()
	}
	wg.Wait()
	h.planner.Wait()

	assert.Equal(t, limits.MaxPerDay, h.sentToday())
	assert.Equal(t, limits.MaxPerDay, h.notifier.count())
}

func TestUpdateLimits(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())

	err := h.planner.UpdateLimits(Limits{MaxPerDay: -1})
	assert.ErrorIs(t, err, ErrInvalidLimits)
	err = h.planner.UpdateLimits(Limits{MaxPerDay: 3, Quiet: domain.QuietHours{Start: 25, End: 6}})
	assert.ErrorIs(t, err, ErrInvalidLimits)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	require.NoError(t, h.planner.UpdateLimits(Limits{
		MaxPerDay:   5,
		Quiet:       domain.QuietHours{Start: 12, End: 16},
		MinInterval: time.Hour,
	}))
	h.smokeJustNow()
	assert.Equal(t, ReasonQuietHours, h.evaluate(false).Rejected)

	st := h.planner.Status()
	assert.Equal(t, 5, st.Limits.MaxPerDay)
	assert.Equal(t, time.Hour, st.Limits.MinInterval)
}

func TestStatus_RollsDayOver(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())
	h.smokeJustNow()
	require.True(t, h.evaluate(false).Action.IsNudge())
	assert.Equal(t, 1, h.planner.Status().State.SentToday)

	h.clock.Advance(24 * time.Hour)
	st := h.planner.Status()
	assert.Zero(t, st.State.SentToday)
	require.NotNil(t, st.State.LastSent)
	assert.True(t, st.State.LastSent.Equal(at(14, 0)))
}

func TestEvaluate_RecordsOutcomes(t *testing.T) {
	h := newHarness(t, at(23, 0), DefaultLimits())
	rec := &fakeRecorder{}
	h.planner.rec = rec
	h.smokeJustNow()

	h.evaluate(false)
	h.evaluate(true)
	h.clock.Advance(time.Minute)
	h.evaluate(true)

	assert.Equal(t, 1, rec.outcomes[metrics.OutcomeQuietHours])
	assert.Equal(t, 2, rec.outcomes[metrics.OutcomeNudge])
}

func TestEvaluate_SentTodayGaugeFollowsRollover(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())
	rec := &fakeRecorder{}
	h.planner.rec = rec
	h.smokeJustNow()

	require.True(t, h.evaluate(false).Action.IsNudge())
	assert.Equal(t, 1, rec.sent())

	// next day, inside quiet hours: gated, but the counter has reset
	h.clock.Set(at(23, 0).AddDate(0, 0, 1))
	assert.Equal(t, ReasonQuietHours, h.evaluate(false).Rejected)
	assert.Zero(t, rec.sent())

	rec.SetSentToday(5)
	h.planner.Status()
	assert.Zero(t, rec.sent())
}

func TestEvaluate_GateReasonsAreOutcomes(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPerDay = 1
	h := newHarness(t, at(14, 0), limits)
	rec := &fakeRecorder{}
	h.planner.rec = rec
	h.smokeJustNow()

	require.True(t, h.evaluate(false).Action.IsNudge())
	assert.Equal(t, ReasonDailyCap, h.evaluate(false).Rejected)

	require.NoError(t, h.planner.UpdateLimits(DefaultLimits()))
	h.clock.Advance(time.Hour)
	assert.Equal(t, ReasonMinInterval, h.evaluate(false).Rejected)

	assert.Equal(t, 1, rec.outcomes[metrics.OutcomeDailyCap])
	assert.Equal(t, 1, rec.outcomes[metrics.OutcomeMinInterval])
}

func TestEvaluate_NoNudgeLogsThreshold(t *testing.T) {
	h := newHarness(t, at(14, 0), DefaultLimits())

	h.evaluate(false)

	entries := h.logs.FilterMessage("no nudge").All()
	require.Len(t, entries, 1)
	assert.InDelta(t, coach.DefaultPolicyConfig().Threshold, entries[0].ContextMap()["threshold"], 1e-9)
}
