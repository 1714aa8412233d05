package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codiris/voice/pkg/mode"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS dictation_history (
    id          TEXT         PRIMARY KEY,
    text        TEXT         NOT NULL,
    transcript  TEXT         NOT NULL DEFAULT '',
    mode        TEXT         NOT NULL DEFAULT 'raw',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    word_count  INTEGER      NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_dictation_history_created_at
    ON dictation_history (created_at DESC);

CREATE TABLE IF NOT EXISTS dictation_daily_stats (
    day         TEXT     PRIMARY KEY,
    count       INTEGER  NOT NULL DEFAULT 0,
    word_count  BIGINT   NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dictation_subscription (
    id             INTEGER      PRIMARY KEY CHECK (id = 1),
    trial_start    TIMESTAMPTZ  NOT NULL,
    is_premium     BOOLEAN      NOT NULL DEFAULT false,
    premium_until  TIMESTAMPTZ,
    email          TEXT         NOT NULL DEFAULT ''
);
`

// PostgresStore is a [Store] backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn, pings the server and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	s := &PostgresStore{pool: pool, opts: buildOptions(opts)}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO dictation_subscription (id, trial_start) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`,
		s.opts.now(),
	); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: init subscription: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	if err := validate(&e, s.opts.now); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO dictation_history (id, text, transcript, mode, created_at, word_count)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.Text, e.Transcript, string(e.Mode), e.CreatedAt, e.Words,
		); err != nil {
			return fmt.Errorf("history: insert entry: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO dictation_daily_stats (day, count, word_count) VALUES ($1, 1, $2)
			ON CONFLICT (day) DO UPDATE SET
			    count = dictation_daily_stats.count + 1,
			    word_count = dictation_daily_stats.word_count + EXCLUDED.word_count`,
			s.opts.day(e.CreatedAt), e.Words,
		); err != nil {
			return fmt.Errorf("history: update stats: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, text, transcript, mode, created_at, word_count
		FROM   dictation_history
		ORDER  BY created_at DESC
		LIMIT  $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e Entry
			m string
		)
		err := row.Scan(&e.ID, &e.Text, &e.Transcript, &m, &e.CreatedAt, &e.Words)
		e.Mode = mode.Mode(m)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Today(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT count, word_count FROM dictation_daily_stats WHERE day = $1`,
		s.opts.day(s.opts.now()),
	).Scan(&st.Count, &st.Words)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("history: today: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Totals(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0)::int, COALESCE(SUM(word_count), 0)::int FROM dictation_daily_stats`,
	).Scan(&st.Count, &st.Words)
	if err != nil {
		return Stats{}, fmt.Errorf("history: totals: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM dictation_history`); err != nil {
			return fmt.Errorf("history: clear entries: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM dictation_daily_stats`); err != nil {
			return fmt.Errorf("history: clear stats: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Subscription(ctx context.Context) (Subscription, error) {
	var (
		sub   Subscription
		until *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT trial_start, is_premium, premium_until, email FROM dictation_subscription WHERE id = 1`,
	).Scan(&sub.TrialStart, &sub.Premium, &until, &sub.Email)
	if err != nil {
		return Subscription{}, fmt.Errorf("history: subscription: %w", err)
	}
	if until != nil {
		sub.PremiumUntil = *until
	}
	return sub, nil
}

func (s *PostgresStore) SetPremium(ctx context.Context, premium bool, until time.Time, email string) error {
	var untilArg *time.Time
	if !until.IsZero() {
		untilArg = &until
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE dictation_subscription
		SET    is_premium = $1, premium_until = $2, email = COALESCE(NULLIF($3::text, ''), email)
		WHERE  id = 1`, premium, untilArg, email)
	if err != nil {
		return fmt.Errorf("history: set premium: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
