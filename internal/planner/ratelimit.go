package planner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/metrics"
)

// Gate rejection reasons. They double as evaluation outcome labels.
const (
	ReasonDailyCap    = metrics.OutcomeDailyCap
	ReasonQuietHours  = metrics.OutcomeQuietHours
	ReasonMinInterval = metrics.OutcomeMinInterval
)

var ErrInvalidLimits = errors.New("invalid limits")

// Limits are the runtime-adjustable notification gates.
type Limits struct {
	MaxPerDay   int
	Quiet       domain.QuietHours
	MinInterval time.Duration
}

// DefaultLimits: 3 per day, quiet 22:00–06:59, 2h apart.
func DefaultLimits() Limits {
	return Limits{
		MaxPerDay:   3,
		Quiet:       domain.QuietHours{Start: 22, End: 6},
		MinInterval: 2 * time.Hour,
	}
}

// Validate rejects negative caps and intervals and out-of-range quiet hours.
func (l Limits) Validate() error {
	if l.MaxPerDay < 0 {
		return fmt.Errorf("%w: max per day must be >= 0", ErrInvalidLimits)
	}
	if l.MinInterval < 0 {
		return fmt.Errorf("%w: min interval must be >= 0", ErrInvalidLimits)
	}
	if err := l.Quiet.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLimits, err)
	}
	return nil
}

// RateState is the process-local notification bookkeeping. It is not persisted:
// a restart starts the day from zero.
type RateState struct {
	SentToday int
	LastSent  *time.Time
	Day       time.Time // local midnight of the day SentToday refers to
}

// RateLimiter owns Limits and RateState behind a mutex.
type RateLimiter struct {
	mu     sync.Mutex
	limits Limits
	state  RateState
}

// NewRateLimiter creates a limiter with fresh state.
func NewRateLimiter(limits Limits) *RateLimiter {
	return &RateLimiter{limits: limits}
}

// Check rolls the day over if needed and returns the first gate that rejects
// a nudge at now, or "" when all gates pass.
func (r *RateLimiter) Check(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverLocked(now)

	if r.state.SentToday >= r.limits.MaxPerDay {
		return ReasonDailyCap
	}
	if r.limits.Quiet.Contains(now.Hour()) {
		return ReasonQuietHours
	}
	if r.state.LastSent != nil && now.Sub(*r.state.LastSent) <= r.limits.MinInterval {
		return ReasonMinInterval
	}
	return ""
}

// Rollover resets the daily counter when now is on a later calendar day.
func (r *RateLimiter) Rollover(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverLocked(now)
}

func (r *RateLimiter) rolloverLocked(now time.Time) {
	today := domain.StartOfDay(now)
	if !r.state.Day.Equal(today) {
		r.state.SentToday = 0
		r.state.Day = today
	}
}

// Record consumes a slot for a nudge handed off at now and returns the new count.
func (r *RateLimiter) Record(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rolloverLocked(now)
	r.state.SentToday++
	at := now
	r.state.LastSent = &at
	return r.state.SentToday
}

// SetLimits swaps the limits; the next Check uses them.
func (r *RateLimiter) SetLimits(l Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = l
}

// Snapshot returns copies of the current limits and state.
func (r *RateLimiter) Snapshot() (Limits, RateState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state
	if st.LastSent != nil {
		last := *st.LastSent
		st.LastSent = &last
	}
	return r.limits, st
}
