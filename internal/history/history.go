// Package history records delivered dictation results, aggregates daily
// usage statistics and tracks the trial/premium subscription state.
//
// Two stores implement [Store]: [SQLiteStore] for the desktop client (a
// single file under the user's home) and [PostgresStore] for shared
// deployments.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codiris/voice/pkg/mode"
)

const (
	// TrialDays is the length of the free trial counted from first use.
	TrialDays = 14

	// WordsPerMinute is the typing speed dictation is measured against.
	WordsPerMinute = 40

	// DefaultLimit is used by Recent when limit is not positive.
	DefaultLimit = 50

	dayLayout = "2006-01-02"
)

// ErrInvalidEntry is returned when an entry has no text.
var ErrInvalidEntry = errors.New("history: entry text must not be empty")

// Entry is one delivered result.
type Entry struct {
	ID string

	// Text is what was delivered to the insertion sink.
	Text string

	// Transcript is the raw transcript before enhancement.
	Transcript string

	Mode      mode.Mode
	CreatedAt time.Time
	Words     int
}

// NewEntry builds an entry with a fresh id and the word count of text.
func NewEntry(text, transcript string, m mode.Mode, at time.Time) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Text:       text,
		Transcript: transcript,
		Mode:       m,
		CreatedAt:  at,
		Words:      CountWords(text),
	}
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// TimeSaved is the typing time words would have taken at [WordsPerMinute].
func TimeSaved(words int) time.Duration {
	return time.Duration(words) * time.Minute / WordsPerMinute
}

// Stats aggregates entries over a period.
type Stats struct {
	Count int
	Words int
}

// TimeSaved returns the typing time saved by the period's words.
func (s Stats) TimeSaved() time.Duration { return TimeSaved(s.Words) }

// Subscription is the persisted trial and premium state.
type Subscription struct {
	TrialStart   time.Time
	Premium      bool
	PremiumUntil time.Time // zero means no expiry
	Email        string
}

// Status is the subscription state evaluated at a point in time.
type Status struct {
	Premium     bool
	TrialActive bool
	DaysLeft    int
	Expired     bool
	TrialEnds   time.Time
}

// Status evaluates s at now. Premium lapses once PremiumUntil has passed.
// Days left count whole days remaining in the trial.
func (s Subscription) Status(now time.Time) Status {
	premium := s.Premium && (s.PremiumUntil.IsZero() || !now.After(s.PremiumUntil))
	end := s.TrialStart.AddDate(0, 0, TrialDays)

	left := 0
	if remaining := end.Sub(now); remaining > 0 {
		left = int(remaining / (24 * time.Hour))
	}
	return Status{
		Premium:     premium,
		TrialActive: left > 0 && !premium,
		DaysLeft:    left,
		Expired:     now.After(end) && !premium,
		TrialEnds:   end,
	}
}

// CanUse reports whether dictation is allowed: premium or an active trial.
func (st Status) CanUse() bool { return st.Premium || st.TrialActive }

// Recorder receives delivered results.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store persists history, statistics and subscription state. Implementations
// are safe for concurrent use.
type Store interface {
	Recorder

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Today returns statistics for the current local day.
	Today(ctx context.Context) (Stats, error)

	// Totals returns all-time statistics.
	Totals(ctx context.Context) (Stats, error)

	// Clear deletes all entries and statistics. Subscription state is kept.
	Clear(ctx context.Context) error

	// Subscription returns the trial and premium state. The trial starts
	// when the store is first created.
	Subscription(ctx context.Context) (Subscription, error)

	// SetPremium updates the premium flag. A non-empty email replaces the
	// stored one.
	SetPremium(ctx context.Context, premium bool, until time.Time, email string) error

	Close() error
}

// options are shared by both stores.
type options struct {
	now func() time.Time
	loc *time.Location
}

// Option configures a store.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the zone used to bucket entries into days. Default
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, loc: time.Local}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) day(t time.Time) string { return t.In(o.loc).Format(dayLayout) }

func validate(e *Entry, now func() time.Time) error {
	if strings.TrimSpace(e.Text) == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	if e.Words == 0 {
		e.Words = CountWords(e.Text)
	}
	if e.Mode == "" {
		e.Mode = mode.Raw
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
