// Package coach derives behavioural features from the smoking log and decides
// whether a coaching nudge is warranted.
package coach

import (
	"sort"
	"time"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
)

// NoEventMinutes is reported as MinutesSinceLastEvent when the log is empty.
const NoEventMinutes = 1440.0

// FeatureVector is the per-evaluation snapshot the policy scores.
type FeatureVector struct {
	MinutesSinceLastEvent  float64
	HourOfDay              int
	CurrentStreakDays      int
	AvgPerDay30d           float64
	TimeOfDayRisk          float64 // [0,1]
	HasActiveTags          bool
	DaysRelativeToQuitDate int // negative before the quit date
	HasQuitDate            bool

	// Reduction plan
	TodayCount  int
	DailyTarget float64 // 0 when reduction mode is off
}

// FeatureConfig bounds the look-back windows used by FeatureStore.
type FeatureConfig struct {
	StreakLookbackDays int
	AverageWindowDays  int
	RiskLookbackDays   int
	TagRecency         time.Duration
}

// DefaultFeatureConfig returns the standard windows.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		StreakLookbackDays: 365,
		AverageWindowDays:  30,
		RiskLookbackDays:   30,
		TagRecency:         24 * time.Hour,
	}
}

// FeatureStore extracts FeatureVectors from an event log.
type FeatureStore struct {
	cfg FeatureConfig
}

// NewFeatureStore creates a FeatureStore; zero config fields fall back to defaults.
func NewFeatureStore(cfg FeatureConfig) *FeatureStore {
	def := DefaultFeatureConfig()
	if cfg.StreakLookbackDays <= 0 {
		cfg.StreakLookbackDays = def.StreakLookbackDays
	}
	if cfg.AverageWindowDays <= 0 {
		cfg.AverageWindowDays = def.AverageWindowDays
	}
	if cfg.RiskLookbackDays <= 0 {
		cfg.RiskLookbackDays = def.RiskLookbackDays
	}
	if cfg.TagRecency <= 0 {
		cfg.TagRecency = def.TagRecency
	}
	return &FeatureStore{cfg: cfg}
}

// Lookback is the oldest history Collect looks at, relative to now.
func (s *FeatureStore) Lookback() time.Duration {
	days := max(s.cfg.StreakLookbackDays, s.cfg.AverageWindowDays, s.cfg.RiskLookbackDays)
	return time.Duration(days+1) * 24 * time.Hour
}

// Collect computes the feature vector at now. Events may be in any order;
// malformed ones are skipped. profile may be nil.
func (s *FeatureStore) Collect(events []domain.Event, profile *domain.UserProfile, now time.Time) FeatureVector {
	valid := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if e.Valid(now) {
			valid = append(valid, e)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Timestamp.Before(valid[j].Timestamp) })

	fv := FeatureVector{
		MinutesSinceLastEvent: NoEventMinutes,
		HourOfDay:             now.Hour(),
	}

	if n := len(valid); n > 0 {
		last := valid[n-1]
		fv.MinutesSinceLastEvent = now.Sub(last.Timestamp).Minutes()
		fv.HasActiveTags = len(last.Tags) > 0 && now.Sub(last.Timestamp) <= s.cfg.TagRecency
	}

	fv.CurrentStreakDays = s.streak(valid, now)
	fv.AvgPerDay30d = float64(countSince(valid, now.AddDate(0, 0, -s.cfg.AverageWindowDays))) / float64(s.cfg.AverageWindowDays)
	fv.TimeOfDayRisk = s.timeOfDayRisk(valid, now)
	fv.TodayCount = countSince(valid, domain.StartOfDay(now).Add(-time.Nanosecond))

	if profile != nil {
		if profile.QuitDate != nil {
			fv.HasQuitDate = true
			fv.DaysRelativeToQuitDate = domain.DaysBetween(*profile.QuitDate, now)
		}
		fv.DailyTarget = profile.DailyTarget(now)
	}
	return fv
}

// streak counts whole smoke-free days before today. An event today, or an
// empty log, yields 0.
func (s *FeatureStore) streak(sorted []domain.Event, now time.Time) int {
	if len(sorted) == 0 {
		return 0
	}
	loc := now.Location()
	smoked := make(map[int]struct{}, len(sorted))
	for _, e := range sorted {
		smoked[dayKey(e.Timestamp.In(loc))] = struct{}{}
	}
	today := domain.StartOfDay(now)
	if _, ok := smoked[dayKey(today)]; ok {
		return 0
	}
	streak := 0
	for day := today.AddDate(0, 0, -1); streak < s.cfg.StreakLookbackDays; day = day.AddDate(0, 0, -1) {
		if _, ok := smoked[dayKey(day)]; ok {
			break
		}
		streak++
	}
	return streak
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// timeOfDayRisk is the share of recent events logged in the current hour.
func (s *FeatureStore) timeOfDayRisk(sorted []domain.Event, now time.Time) float64 {
	since := now.AddDate(0, 0, -s.cfg.RiskLookbackDays)
	var total, atHour int
	for _, e := range sorted {
		if !e.Timestamp.After(since) {
			continue
		}
		total++
		if e.Timestamp.In(now.Location()).Hour() == now.Hour() {
			atHour++
		}
	}
	if total == 0 {
		return 0
	}
	return clamp01(float64(atHour) / float64(total))
}

// countSince counts events strictly after since.
func countSince(sorted []domain.Event, since time.Time) int {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i].Timestamp.After(since) })
	return len(sorted) - i
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
