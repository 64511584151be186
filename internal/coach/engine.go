package coach

import (
	"math/rand/v2"
	"sync"
	"time"
)

// ActionKind tells whether the policy wants to nudge.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionNudge
)

func (k ActionKind) String() string {
	if k == ActionNudge {
		return "nudge"
	}
	return "none"
}

// Action is the policy's decision for one evaluation.
type Action struct {
	Kind     ActionKind
	Message  string
	Category Category
	Score    float64
}

// IsNudge reports whether the action carries a message to deliver.
func (a Action) IsNudge() bool { return a.Kind == ActionNudge }

// Weights combine the normalized risk signals into one score.
type Weights struct {
	Recency      float64
	TimeOfDay    float64
	Streak       float64
	QuitPressure float64
	Tagged       float64
	Overshoot    float64
}

// PolicyConfig tunes the risk score and the firing rule.
type PolicyConfig struct {
	Weights Weights

	Threshold  float64 // unforced nudges fire at or above this score
	ForceFloor float64 // forced evaluations still need this much signal

	// Recency signal is 1 up to CravingWindow and decays linearly to 0 at RecencyHorizon.
	CravingWindow  time.Duration
	RecencyHorizon time.Duration

	NearQuitDays    int     // quit pressure starts this many days before the quit date
	QuitElevatedAvg float64 // 30-day average that saturates quit pressure
}

// DefaultPolicyConfig returns the shipped weights. See DESIGN.md for the rationale table.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Weights: Weights{
			Recency:      0.40,
			TimeOfDay:    0.25,
			Streak:       0.15,
			QuitPressure: 0.20,
			Tagged:       0.05,
			Overshoot:    0.10,
		},
		Threshold:       0.5,
		ForceFloor:      0.1,
		CravingWindow:   15 * time.Minute,
		RecencyHorizon:  4 * time.Hour,
		NearQuitDays:    3,
		QuitElevatedAvg: 2.0,
	}
}

// Risk bands.
const (
	SupportBand       = 0.75
	GuidanceBand      = 0.5
	EncouragementBand = 0.3
)

// BandFor maps a risk score to the message category addressing it.
func BandFor(score float64) Category {
	switch {
	case score >= SupportBand:
		return CategorySupport
	case score >= GuidanceBand:
		return CategoryGuidance
	case score >= EncouragementBand:
		return CategoryEncouragement
	default:
		return CategoryMotivation
	}
}

// Picker chooses an index in [0,n). *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

// NewSeededPicker returns a deterministic Picker for the given seed.
func NewSeededPicker(seed uint64) Picker {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Engine is the decision policy. It never sends anything itself.
type Engine struct {
	cfg       PolicyConfig
	catalogue *Catalogue

	mu     sync.Mutex // guards picker
	picker Picker
}

// NewEngine creates an Engine. A nil picker uses a randomly seeded one.
func NewEngine(cfg PolicyConfig, catalogue *Catalogue, picker Picker) *Engine {
	if picker == nil {
		picker = NewSeededPicker(rand.Uint64())
	}
	return &Engine{cfg: cfg, catalogue: catalogue, picker: picker}
}

// Threshold returns the unforced firing threshold.
func (e *Engine) Threshold() float64 { return e.cfg.Threshold }

// Score computes the composite risk in [0,1].
func (e *Engine) Score(fv FeatureVector) float64 {
	w := e.cfg.Weights
	score := w.Recency*e.recency(fv.MinutesSinceLastEvent) +
		w.TimeOfDay*clamp01(fv.TimeOfDayRisk) +
		w.Streak*(1/float64(1+max(fv.CurrentStreakDays, 0))) +
		w.QuitPressure*e.quitPressure(fv)
	if fv.HasActiveTags {
		score += w.Tagged
	}
	if fv.DailyTarget > 0 && float64(fv.TodayCount) >= fv.DailyTarget {
		score += w.Overshoot
	}
	return clamp01(score)
}

func (e *Engine) recency(minutes float64) float64 {
	full := e.cfg.CravingWindow.Minutes()
	horizon := e.cfg.RecencyHorizon.Minutes()
	switch {
	case minutes <= full:
		return 1
	case minutes >= horizon || horizon <= full:
		return 0
	default:
		return 1 - (minutes-full)/(horizon-full)
	}
}

// quitPressure is non-zero only around or after the quit date, scaled by recent volume.
func (e *Engine) quitPressure(fv FeatureVector) float64 {
	if !fv.HasQuitDate || fv.DaysRelativeToQuitDate < -e.cfg.NearQuitDays || e.cfg.QuitElevatedAvg <= 0 {
		return 0
	}
	return clamp01(fv.AvgPerDay30d / e.cfg.QuitElevatedAvg)
}

// Decide scores fv and returns a nudge when the score clears the threshold,
// or when force is set and the score clears the force floor.
func (e *Engine) Decide(fv FeatureVector, force bool) Action {
	score := e.Score(fv)
	fire := score >= e.cfg.Threshold || (force && score >= e.cfg.ForceFloor)
	if !fire {
		return Action{Kind: ActionNone, Score: score}
	}
	cat := BandFor(score)
	msg := e.pick(cat)
	if msg == "" {
		return Action{Kind: ActionNone, Score: score}
	}
	return Action{Kind: ActionNudge, Message: msg, Category: cat, Score: score}
}

func (e *Engine) pick(cat Category) string {
	if e.catalogue == nil {
		return ""
	}
	msgs := e.catalogue.For(cat)
	if len(msgs) == 0 {
		return ""
	}
	e.mu.Lock()
	i := e.picker.IntN(len(msgs))
	e.mu.Unlock()
	return msgs[i]
}
