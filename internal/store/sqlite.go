package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// Ping checks that the database is reachable.
func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// AddEvent logs a cigarette at the given time. Unknown tag names are created
// with a random palette colour; empty names are ignored.
func (r *SQLiteRepo) AddEvent(ctx context.Context, at time.Time, note string, tagNames []string) (*domain.Event, error) {
	if at.IsZero() {
		return nil, errors.New("zero event timestamp")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ev := &domain.Event{
		ID:        uuid.NewString(),
		Timestamp: time.Unix(at.UTC().Unix(), 0).UTC(),
		Note:      note,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, ts, note, created_at)
		VALUES (?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.Unix(), ev.Note, time.Now().UTC().Unix(),
	); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	seen := make(map[string]struct{}, len(tagNames))
	for _, raw := range tagNames {
		name := normalizeTagName(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		tag, err := ensureTag(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_tags (event_id, tag_id) VALUES (?, ?)`,
			ev.ID, tag.ID,
		); err != nil {
			return nil, fmt.Errorf("attach tag %q: %w", name, err)
		}
		ev.Tags = append(ev.Tags, tag)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ev, nil
}

// ensureTag returns the tag with the given name, creating it if needed.
func ensureTag(ctx context.Context, tx *sql.Tx, name string) (domain.Tag, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tags (id, name, color) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		uuid.NewString(), name, randomTagColor(),
	); err != nil {
		return domain.Tag{}, fmt.Errorf("ensure tag %q: %w", name, err)
	}
	var t domain.Tag
	if err := tx.QueryRowContext(ctx, `
		SELECT id, name, color FROM tags WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name, &t.Color); err != nil {
		return domain.Tag{}, fmt.Errorf("load tag %q: %w", name, err)
	}
	return t, nil
}

// DeleteLastEvent removes the most recent event and returns it.
// Returns nil, nil when the log is empty.
func (r *SQLiteRepo) DeleteLastEvent(ctx context.Context) (*domain.Event, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		ev domain.Event
		ts int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, ts, note FROM events
		ORDER BY ts DESC, rowid DESC
		LIMIT 1`,
	).Scan(&ev.ID, &ts, &ev.Note)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.Timestamp = time.Unix(ts, 0).UTC()

	// event_tags rows go with it (ON DELETE CASCADE).
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, ev.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// QueryEvents returns events at or after since (all events when since is nil),
// ordered by timestamp, with their tags attached.
func (r *SQLiteRepo) QueryEvents(ctx context.Context, since *time.Time) ([]domain.Event, error) {
	bound := toNullInt64(since)
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.ts, e.note, t.id, t.name, t.color
		FROM events e
		LEFT JOIN event_tags et ON et.event_id = e.id
		LEFT JOIN tags t ON t.id = et.tag_id
		WHERE ? IS NULL OR e.ts >= ?
		ORDER BY e.ts ASC, e.rowid ASC, t.name ASC`,
		bound, bound,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Event
	for rows.Next() {
		var (
			id, note               string
			ts                     int64
			tagID, tagName, tagCol sql.NullString
		)
		if err := rows.Scan(&id, &ts, &note, &tagID, &tagName, &tagCol); err != nil {
			return nil, err
		}
		// Rows of the same event are adjacent thanks to the ORDER BY.
		if n := len(res); n == 0 || res[n-1].ID != id {
			res = append(res, domain.Event{
				ID:        id,
				Timestamp: time.Unix(ts, 0).UTC(),
				Note:      note,
			})
		}
		if tagID.Valid {
			last := &res[len(res)-1]
			last.Tags = append(last.Tags, domain.Tag{ID: tagID.String, Name: tagName.String, Color: tagCol.String})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ListTags returns all tags, used or not, ordered by name.
func (r *SQLiteRepo) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color FROM tags ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// GetActiveProfile returns the profile, or nil, nil when none was saved yet.
func (r *SQLiteRepo) GetActiveProfile(ctx context.Context) (*domain.UserProfile, error) {
	var (
		p         domain.UserProfile
		quitNS    sql.NullInt64
		enabled   int
		curve     string
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT name, quit_date, reduction_enabled, reduction_curve,
		       baseline_per_day, created_at
		FROM profile
		WHERE id = 1`,
	).Scan(&p.Name, &quitNS, &enabled, &curve, &p.BaselinePerDay, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.QuitDate = fromNullInt64(quitNS)
	p.ReductionEnabled = enabled != 0
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	if c, err := domain.ParseReductionCurve(curve); err == nil {
		p.ReductionCurve = c
	} else {
		p.ReductionCurve = domain.CurveLinear
	}
	return &p, nil
}

// UpsertProfile inserts or replaces the single profile row.
// A zero CreatedAt is set to the current time.
func (r *SQLiteRepo) UpsertProfile(ctx context.Context, p *domain.UserProfile) error {
	if p == nil {
		return errors.New("nil profile")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	curve := p.ReductionCurve
	if curve == "" {
		curve = domain.CurveLinear
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profile (
			id, name, quit_date, reduction_enabled, reduction_curve,
			baseline_per_day, created_at
		) VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name              = excluded.name,
			quit_date         = excluded.quit_date,
			reduction_enabled = excluded.reduction_enabled,
			reduction_curve   = excluded.reduction_curve,
			baseline_per_day  = excluded.baseline_per_day,
			created_at        = excluded.created_at`,
		p.Name, toNullInt64(p.QuitDate), boolToInt(p.ReductionEnabled), string(curve),
		p.BaselinePerDay, p.CreatedAt.UTC().Unix(),
	)
	return err
}

// PublishLatestTip overwrites the latest-tip row.
func (r *SQLiteRepo) PublishLatestTip(ctx context.Context, message string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_tip (id, message, published_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			message      = excluded.message,
			published_at = excluded.published_at`,
		message, at.UTC().Unix(),
	)
	return err
}

// LatestTip returns the last published tip; the message is empty when none exists.
func (r *SQLiteRepo) LatestTip(ctx context.Context) (string, time.Time, error) {
	var (
		msg string
		ts  int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT message, published_at FROM latest_tip WHERE id = 1`).Scan(&msg, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return msg, time.Unix(ts, 0).UTC(), nil
}
