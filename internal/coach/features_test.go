package coach

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
)

var testNow = time.Date(2025, time.May, 20, 14, 30, 0, 0, time.UTC)

func ev(ts time.Time, tags ...string) domain.Event {
	e := domain.Event{ID: ts.Format(time.RFC3339Nano), Timestamp: ts}
	for _, name := range tags {
		e.Tags = append(e.Tags, domain.Tag{ID: name, Name: name})
	}
	return e
}

func TestCollect_EmptyLog(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	fv := fs.Collect(nil, nil, testNow)

	assert.Equal(t, NoEventMinutes, fv.MinutesSinceLastEvent)
	assert.Equal(t, 14, fv.HourOfDay)
	assert.Zero(t, fv.CurrentStreakDays)
	assert.Zero(t, fv.AvgPerDay30d)
	assert.Zero(t, fv.TimeOfDayRisk)
	assert.False(t, fv.HasActiveTags)
	assert.False(t, fv.HasQuitDate)
	assert.Zero(t, fv.DaysRelativeToQuitDate)
	assert.Zero(t, fv.DailyTarget)
}

func TestCollect_MinutesSinceLastEvent(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	events := []domain.Event{
		ev(testNow.Add(-10 * time.Minute)),
		ev(testNow.Add(-3 * time.Hour)),
	}
	fv := fs.Collect(events, nil, testNow)
	assert.InDelta(t, 10, fv.MinutesSinceLastEvent, 1e-9)
}

func TestCollect_StreakCountsWholeDaysBeforeToday(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	for _, n := range []int{0, 1, 5, 12} {
		events := []domain.Event{ev(testNow.AddDate(0, 0, -(n + 1)))}
		fv := fs.Collect(events, nil, testNow)
		assert.Equal(t, n, fv.CurrentStreakDays, "event %d days ago", n+1)
	}
}

func TestCollect_StreakZeroWhenSmokedToday(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	events := []domain.Event{
		ev(testNow.AddDate(0, 0, -7)),
		ev(time.Date(2025, time.May, 20, 0, 5, 0, 0, time.UTC)),
	}
	fv := fs.Collect(events, nil, testNow)
	assert.Zero(t, fv.CurrentStreakDays)
	assert.Equal(t, 1, fv.TodayCount)
}

func TestCollect_StreakBoundedByLookback(t *testing.T) {
	fs := NewFeatureStore(FeatureConfig{StreakLookbackDays: 10})
	events := []domain.Event{ev(testNow.AddDate(0, 0, -40))}
	fv := fs.Collect(events, nil, testNow)
	assert.Equal(t, 10, fv.CurrentStreakDays)
}

func TestCollect_StreakUsesLocalDays(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)
	now := time.Date(2025, time.May, 20, 10, 0, 0, 0, loc)
	// 23:30 UTC on May 18 is 02:30 May 19 in Moscow: yesterday locally.
	events := []domain.Event{ev(time.Date(2025, time.May, 18, 23, 30, 0, 0, time.UTC))}
	fv := NewFeatureStore(DefaultFeatureConfig()).Collect(events, nil, now)
	assert.Zero(t, fv.CurrentStreakDays)
}

func TestCollect_AvgPerDay30d(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	var events []domain.Event
	for i := 0; i < 60; i++ {
		events = append(events, ev(testNow.Add(-time.Duration(i)*12*time.Hour)))
	}
	// i = 0..59 spans 0..29.5 days, all inside the trailing 30-day window
	fv := fs.Collect(events, nil, testNow)
	assert.InDelta(t, 60.0/30.0, fv.AvgPerDay30d, 1e-9)

	old := []domain.Event{ev(testNow.AddDate(0, 0, -31))}
	fv = fs.Collect(old, nil, testNow)
	assert.Zero(t, fv.AvgPerDay30d)
}

func TestCollect_TimeOfDayRisk(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	events := []domain.Event{
		ev(time.Date(2025, time.May, 19, 14, 5, 0, 0, time.UTC)),
		ev(time.Date(2025, time.May, 18, 14, 50, 0, 0, time.UTC)),
		ev(time.Date(2025, time.May, 18, 9, 0, 0, 0, time.UTC)),
		ev(time.Date(2025, time.May, 17, 20, 0, 0, 0, time.UTC)),
		// outside the 30-day risk window
		ev(time.Date(2025, time.March, 1, 14, 0, 0, 0, time.UTC)),
	}
	fv := fs.Collect(events, nil, testNow)
	assert.InDelta(t, 0.5, fv.TimeOfDayRisk, 1e-9)
}

func TestCollect_HasActiveTags(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())

	fv := fs.Collect([]domain.Event{ev(testNow.Add(-time.Hour), "stress")}, nil, testNow)
	assert.True(t, fv.HasActiveTags)

	// most recent event untagged
	fv = fs.Collect([]domain.Event{
		ev(testNow.Add(-2*time.Hour), "stress"),
		ev(testNow.Add(-time.Hour)),
	}, nil, testNow)
	assert.False(t, fv.HasActiveTags)

	// tagged but stale
	fv = fs.Collect([]domain.Event{ev(testNow.Add(-25*time.Hour), "coffee")}, nil, testNow)
	assert.False(t, fv.HasActiveTags)
}

func TestCollect_QuitDate(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())

	future := time.Date(2025, time.May, 25, 0, 0, 0, 0, time.UTC)
	fv := fs.Collect(nil, &domain.UserProfile{QuitDate: &future}, testNow)
	assert.True(t, fv.HasQuitDate)
	assert.Equal(t, -5, fv.DaysRelativeToQuitDate)

	past := time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)
	fv = fs.Collect(nil, &domain.UserProfile{QuitDate: &past}, testNow)
	assert.Equal(t, 10, fv.DaysRelativeToQuitDate)
}

func TestCollect_ReductionTarget(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	profile := &domain.UserProfile{
		ReductionEnabled: true,
		ReductionCurve:   domain.CurveLinear,
		BaselinePerDay:   12,
		CreatedAt:        testNow.AddDate(0, 0, -10),
	}
	events := []domain.Event{
		ev(testNow.Add(-time.Hour)),
		ev(testNow.Add(-2 * time.Hour)),
		ev(testNow.AddDate(0, 0, -1)),
	}
	fv := fs.Collect(events, profile, testNow)
	assert.Equal(t, 2, fv.TodayCount)
	assert.Equal(t, 12.0, fv.DailyTarget)
}

func TestCollect_SkipsMalformedEvents(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	events := []domain.Event{
		{ID: "zero"},
		ev(testNow.Add(time.Hour)), // in the future
		ev(testNow.AddDate(0, 0, -3)),
	}
	fv := fs.Collect(events, nil, testNow)
	assert.InDelta(t, 3*24*60, fv.MinutesSinceLastEvent, 1e-9)
	assert.Equal(t, 2, fv.CurrentStreakDays)
	assert.InDelta(t, 1.0/30.0, fv.AvgPerDay30d, 1e-9)
}

func TestCollect_OrderIndependentAndIdempotent(t *testing.T) {
	fs := NewFeatureStore(DefaultFeatureConfig())
	events := []domain.Event{
		ev(testNow.Add(-5*time.Hour), "coffee"),
		ev(testNow.Add(-20 * time.Minute)),
		ev(testNow.AddDate(0, 0, -2)),
	}
	reversed := []domain.Event{events[2], events[1], events[0]}

	first := fs.Collect(events, nil, testNow)
	second := fs.Collect(events, nil, testNow)
	assert.Equal(t, first, second)
	assert.Equal(t, first, fs.Collect(reversed, nil, testNow))
}

func TestFeatureStore_Lookback(t *testing.T) {
	fs := NewFeatureStore(FeatureConfig{StreakLookbackDays: 7, AverageWindowDays: 30, RiskLookbackDays: 14})
	assert.Equal(t, 31*24*time.Hour, fs.Lookback())
}
