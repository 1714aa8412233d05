package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codiris/voice/pkg/mode"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS history (
    id          TEXT    PRIMARY KEY,
    text        TEXT    NOT NULL,
    transcript  TEXT    NOT NULL DEFAULT '',
    mode        TEXT    NOT NULL DEFAULT 'raw',
    created_at  TEXT    NOT NULL,
    word_count  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_history_created_at ON history (created_at DESC);

CREATE TABLE IF NOT EXISTS daily_stats (
    day         TEXT    PRIMARY KEY,
    count       INTEGER NOT NULL DEFAULT 0,
    word_count  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS subscription (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    trial_start    TEXT    NOT NULL,
    is_premium     INTEGER NOT NULL DEFAULT 0,
    premium_until  TEXT    NOT NULL DEFAULT '',
    email          TEXT    NOT NULL DEFAULT ''
);
`

// SQLiteStore is a [Store] in a local SQLite file (modernc.org/sqlite, no
// cgo).
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path, creating parent
// directories, and migrates the schema. The trial starts on first creation.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("history: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	// One writer keeps the stats upsert and pragma state consistent.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, opts: buildOptions(opts)}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscription (id, trial_start) VALUES (1, ?)`,
		formatTime(s.opts.now()))
	if err != nil {
		return fmt.Errorf("history: init subscription: %w", err)
	}
	return nil
}

// Record inserts e and adds it to its day's statistics in one transaction.
func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	if err := validate(&e, s.opts.now); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (id, text, transcript, mode, created_at, word_count) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Text, e.Transcript, string(e.Mode), formatTime(e.CreatedAt), e.Words,
	); err != nil {
		return fmt.Errorf("history: insert entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO daily_stats (day, count, word_count) VALUES (?, 1, ?)
		ON CONFLICT(day) DO UPDATE SET
		    count = count + 1,
		    word_count = word_count + excluded.word_count`,
		s.opts.day(e.CreatedAt), e.Words,
	); err != nil {
		return fmt.Errorf("history: update stats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, transcript, mode, created_at, word_count
		FROM   history
		ORDER  BY created_at DESC, rowid DESC
		LIMIT  ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			m, when string
		)
		if err := rows.Scan(&e.ID, &e.Text, &e.Transcript, &m, &when, &e.Words); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		e.Mode = mode.Mode(m)
		if e.CreatedAt, err = parseTime(when); err != nil {
			return nil, fmt.Errorf("history: entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Today(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT count, word_count FROM daily_stats WHERE day = ?`,
		s.opts.day(s.opts.now()),
	).Scan(&st.Count, &st.Words)
	if errors.Is(err, sql.ErrNoRows) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("history: today: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Totals(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0), COALESCE(SUM(word_count), 0) FROM daily_stats`,
	).Scan(&st.Count, &st.Words)
	if err != nil {
		return Stats{}, fmt.Errorf("history: totals: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history; DELETE FROM daily_stats;`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Subscription(ctx context.Context) (Subscription, error) {
	var (
		sub          Subscription
		start, until string
		premium      int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT trial_start, is_premium, premium_until, email FROM subscription WHERE id = 1`,
	).Scan(&start, &premium, &until, &sub.Email)
	if err != nil {
		return Subscription{}, fmt.Errorf("history: subscription: %w", err)
	}
	sub.Premium = premium != 0
	if sub.TrialStart, err = parseTime(start); err != nil {
		return Subscription{}, fmt.Errorf("history: trial start: %w", err)
	}
	if until != "" {
		if sub.PremiumUntil, err = parseTime(until); err != nil {
			return Subscription{}, fmt.Errorf("history: premium until: %w", err)
		}
	}
	return sub, nil
}

func (s *SQLiteStore) SetPremium(ctx context.Context, premium bool, until time.Time, email string) error {
	flag := 0
	if premium {
		flag = 1
	}
	untilStr := ""
	if !until.IsZero() {
		untilStr = formatTime(until)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscription
		SET    is_premium = ?, premium_until = ?, email = COALESCE(NULLIF(?, ''), email)
		WHERE  id = 1`, flag, untilStr, email)
	if err != nil {
		return fmt.Errorf("history: set premium: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }
