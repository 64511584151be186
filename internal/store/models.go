package store

import (
	"database/sql"
	"math/rand/v2"
	"strings"
	"time"
)

// tagPalette holds the colours new tags are drawn from.
var tagPalette = []string{
	"#e57373", "#f06292", "#ba68c8", "#7986cb",
	"#4fc3f7", "#4db6ac", "#aed581", "#ffb74d",
}

func randomTagColor() string {
	return tagPalette[rand.IntN(len(tagPalette))]
}

// normalizeTagName trims a leading '#' and whitespace and lower-cases the name.
func normalizeTagName(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#")))
}

func toNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullInt64(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
