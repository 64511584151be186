package domain

import "time"

// Event is a single logged cigarette.
type Event struct {
	ID        string
	Timestamp time.Time // UTC
	Note      string    // optional free text
	Tags      []Tag
}

// Valid reports whether the event can take part in feature extraction at now.
// Zero and future timestamps are treated as malformed.
func (e Event) Valid(now time.Time) bool {
	return !e.Timestamp.IsZero() && !e.Timestamp.After(now)
}

// Tag labels events (e.g. "stress", "coffee"). Tags exist independently of events.
type Tag struct {
	ID    string
	Name  string
	Color string // hex, e.g. "#ff8800"
}
