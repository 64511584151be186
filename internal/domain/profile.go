package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ReductionCurve selects how the daily target shrinks towards the quit date.
type ReductionCurve string

const (
	CurveLinear      ReductionCurve = "linear"
	CurveExponential ReductionCurve = "exponential"
	CurveLogarithmic ReductionCurve = "logarithmic"
)

// ParseReductionCurve accepts the curve name case-insensitively.
func ParseReductionCurve(s string) (ReductionCurve, error) {
	switch c := ReductionCurve(strings.ToLower(strings.TrimSpace(s))); c {
	case CurveLinear, CurveExponential, CurveLogarithmic:
		return c, nil
	default:
		return "", fmt.Errorf("unknown reduction curve %q", s)
	}
}

// UserProfile holds the single user's quit plan.
type UserProfile struct {
	Name             string
	QuitDate         *time.Time // UTC, nullable
	ReductionEnabled bool
	ReductionCurve   ReductionCurve
	BaselinePerDay   float64   // average cigarettes per day before the plan
	CreatedAt        time.Time // UTC, start of the reduction plan
}

// DailyTarget returns the allowed number of cigarettes for the day containing now.
// Zero means reduction mode is off (or the quit date has passed).
func (p *UserProfile) DailyTarget(now time.Time) float64 {
	if p == nil || !p.ReductionEnabled || p.BaselinePerDay <= 0 {
		return 0
	}
	if p.QuitDate == nil {
		return p.BaselinePerDay
	}
	total := DaysBetween(p.CreatedAt.In(now.Location()), p.QuitDate.In(now.Location()))
	if total <= 0 {
		return 0
	}
	elapsed := DaysBetween(p.CreatedAt.In(now.Location()), now)
	progress := float64(elapsed) / float64(total)
	return p.BaselinePerDay * p.ReductionCurve.Remaining(progress)
}

// Remaining maps plan progress in [0,1] to the remaining share of the baseline.
// All curves start at 1 and reach 0 at progress 1.
func (c ReductionCurve) Remaining(progress float64) float64 {
	switch {
	case progress <= 0:
		return 1
	case progress >= 1:
		return 0
	}
	switch c {
	case CurveExponential:
		// steep early drop, long tail
		const k = 3.0
		return (math.Exp(-k*progress) - math.Exp(-k)) / (1 - math.Exp(-k))
	case CurveLogarithmic:
		// quick early cut that flattens towards the quit date
		return 1 - math.Log(1+(math.E-1)*progress)
	default:
		return 1 - progress
	}
}

// StartOfDay returns local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the signed number of calendar days from a to b, in b's location.
func DaysBetween(a, b time.Time) int {
	loc := b.Location()
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.Date()
	// UTC dates avoid DST-shortened days skewing the division.
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
