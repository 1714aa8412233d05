// Package dictation runs one recording at a time through capture,
// transcription, enhancement and delivery.
//
// A [Controller] owns the session state machine:
//
//	idle|delivered|failed --Start--> recording --Stop--> processing --> delivered|failed
//
// Cancel returns to idle from any busy state. Every transition and event is
// produced under the controller's mutex, so an [EventFunc] sees events in
// the order the transitions happened. Handlers run with that mutex held and
// must not call back into the Controller.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codiris/voice/internal/history"
	"github.com/codiris/voice/internal/insert"
	"github.com/codiris/voice/internal/observe"
	"github.com/codiris/voice/internal/prefs"
	"github.com/codiris/voice/pkg/audio"
	"github.com/codiris/voice/pkg/mode"
	"github.com/codiris/voice/pkg/provider/stt"
	"github.com/codiris/voice/pkg/usage"
)

var (
	// ErrBusy is returned by Start while a session is recording or
	// processing.
	ErrBusy = errors.New("dictation: session in progress")

	// ErrNotRecording is returned by Stop when no session is recording.
	ErrNotRecording = errors.New("dictation: not recording")

	// ErrCancelled is returned by Stop when Cancel ended the session while
	// it was processing. The result is dropped.
	ErrCancelled = errors.New("dictation: session cancelled")

	// ErrNoTranscriber is returned by Start when no transcriber is
	// registered for the preferred transcription method.
	ErrNoTranscriber = errors.New("dictation: no transcriber for method")
)

// Enhancer rewrites a transcript in a mode. It never fails.
type Enhancer interface {
	Enhance(ctx context.Context, text string, m mode.Mode, hints usage.Hints) string
}

// EventFunc receives session events.
type EventFunc func(Event)

// Config holds the controller's collaborators. Source, Transcribers,
// Enhancer, Prefs and Sink are required.
type Config struct {
	Source audio.Source

	// Transcribers maps each transcription method to its strategy.
	Transcribers map[prefs.Method]stt.Transcriber

	Enhancer Enhancer
	Prefs    prefs.Store
	Sink     insert.Sink

	// Recorder, when set, receives every delivered result.
	Recorder history.Recorder

	// OnEvent, when set, observes events.
	OnEvent EventFunc

	// Hints, when set, describes the focused field at Stop time.
	Hints func() usage.Hints

	// Allow, when set, is consulted by Start; a non-nil error refuses the
	// session (for example an expired trial).
	Allow func(ctx context.Context) error

	Metrics *observe.Metrics
	Now     func() time.Time
}

// Controller coordinates dictation sessions. Safe for concurrent use.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	state    State
	gen      uint64
	snap     Snapshot
	session  stt.Session
	pumpDone chan struct{}
	cancel   context.CancelFunc

	// starting is set while Start opens a session without the lock.
	starting bool

	// abort is closed by Cancel while Stop is processing.
	abort chan struct{}
}

// New validates cfg and returns an idle controller.
func New(cfg Config) (*Controller, error) {
	var errs []error
	if cfg.Source == nil {
		errs = append(errs, errors.New("source is required"))
	}
	if len(cfg.Transcribers) == 0 {
		errs = append(errs, errors.New("at least one transcriber is required"))
	}
	if cfg.Enhancer == nil {
		errs = append(errs, errors.New("enhancer is required"))
	}
	if cfg.Prefs == nil {
		errs = append(errs, errors.New("preferences store is required"))
	}
	if cfg.Sink == nil {
		errs = append(errs, errors.New("sink is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("dictation: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{cfg: cfg}, nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current session data.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.State = c.state
	return s
}

// Start begins recording. The previous session's transcript and result are
// cleared. The recording is not bound to ctx beyond setup; it lasts until
// Stop or Cancel.
//
// Transcription and capture are opened without holding the controller lock,
// so State, Snapshot and Cancel stay responsive while a streaming provider
// dials. A Cancel during that window makes Start return [ErrCancelled].
func (c *Controller) Start(ctx context.Context) error {
	// ── 1. Reserve ───────────────────────────────────────────────────────
	c.mu.Lock()
	if c.state.Busy() || c.starting {
		c.mu.Unlock()
		return ErrBusy
	}
	c.starting = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	// ── 2. Open ──────────────────────────────────────────────────────────
	o, err := c.open(ctx, gen)

	// ── 3. Commit ────────────────────────────────────────────────────────
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false

	if c.gen != gen {
		if o != nil {
			o.release(c.cfg.Source)
		}
		slog.Info("dictation start cancelled during setup")
		return ErrCancelled
	}
	if o == nil {
		return err
	}
	c.snap = o.snap
	if err != nil {
		return c.failStartLocked(err)
	}

	c.session = o.sess
	c.cancel = o.cancel
	c.abort = make(chan struct{})
	c.pumpDone = make(chan struct{})
	go pump(o.chunks, o.sess, c.pumpDone)

	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	}
	c.setStateLocked(StateRecording)
	slog.Info("dictation started",
		"session_id", c.snap.SessionID,
		"method", string(o.method),
		"mode", c.snap.Mode.String())
	return nil
}

// opened is a session set up by [Controller.open] but not yet installed.
type opened struct {
	snap   Snapshot
	method prefs.Method
	sess   stt.Session
	chunks <-chan []byte
	cancel context.CancelFunc
}

// release tears down a session that will not be installed.
func (o *opened) release(src audio.Source) {
	if o.sess == nil {
		return
	}
	_ = src.Stop()
	_ = o.sess.Close()
	o.cancel()
}

// open checks the gate, resolves preferences and opens transcription and
// capture for session gen. A nil result with an error refuses the session
// without a state change; a non-nil result with an error is a failed start.
func (c *Controller) open(ctx context.Context, gen uint64) (*opened, error) {
	if c.cfg.Allow != nil {
		if err := c.cfg.Allow(ctx); err != nil {
			return nil, err
		}
	}

	p, err := c.cfg.Prefs.Load(ctx)
	if err != nil {
		slog.Warn("dictation: load preferences, using defaults", "error", err)
	}
	tr, ok := c.cfg.Transcribers[p.TranscriptionMethod]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoTranscriber, p.TranscriptionMethod)
	}

	o := &opened{
		method: p.TranscriptionMethod,
		snap: Snapshot{
			SessionID: uuid.NewString(),
			Mode:      p.CurrentMode,
			StartedAt: c.cfg.Now(),
		},
	}

	recCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	onPartial := func(text string) { c.partial(gen, text) }
	sess, err := tr.StartSession(recCtx, stt.Config{
		Format:   c.cfg.Source.Format(),
		Language: p.Language,
	}, onPartial)
	if err != nil {
		cancel()
		return o, fmt.Errorf("dictation: start transcription: %w", err)
	}

	chunks, err := c.cfg.Source.Start(recCtx)
	if err != nil {
		cancel()
		_ = sess.Close()
		return o, fmt.Errorf("dictation: start capture: %w", err)
	}

	o.sess, o.chunks, o.cancel = sess, chunks, cancel
	return o, nil
}

// Stop ends recording, waits for the transcript, enhances it in the current
// mode and delivers the result. It returns the delivered text, an error
// wrapping [stt.ErrNoSpeech] when nothing was recognised, or [ErrCancelled]
// when Cancel intervened.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return "", ErrNotRecording
	}
	gen := c.gen
	sess, done, cancel, abort := c.session, c.pumpDone, c.cancel, c.abort
	if err := c.cfg.Source.Stop(); err != nil {
		slog.Warn("dictation: stop capture", "error", err)
	}
	c.setStateLocked(StateProcessing)
	c.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "dictation.stop")
	defer span.End()

	// Wait for the last captured audio to reach the session. Closing the
	// session releases a pump blocked in SendAudio.
	select {
	case <-done:
	case <-abort:
		_ = sess.Close()
		cancel()
		return "", ErrCancelled
	case <-ctx.Done():
		_ = sess.Close()
		cancel()
		return "", c.finishNoSpeech(ctx, gen, ctx.Err())
	}

	sttStart := time.Now()
	transcript, err := sess.Stop(ctx)
	_ = sess.Close()
	cancel()
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	}

	if err != nil || strings.TrimSpace(transcript) == "" {
		if err != nil && !errors.Is(err, stt.ErrNoSpeech) {
			observe.Logger(ctx).Warn("dictation: transcription failed", "error", err)
		}
		return "", c.finishNoSpeech(ctx, gen, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return "", ErrCancelled
	}
	c.snap.Transcript = transcript
	m := c.snap.Mode
	c.mu.Unlock()

	var hints usage.Hints
	if c.cfg.Hints != nil {
		hints = c.cfg.Hints()
	}
	result := c.cfg.Enhancer.Enhance(ctx, transcript, m, hints)

	return c.deliver(ctx, gen, m, transcript, result)
}

// Cancel abandons the current session. A recording is discarded; a result
// still being processed is dropped when it arrives. A Start still opening
// its session is abandoned. No-op when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.starting {
		c.gen++
		return
	}
	switch c.state {
	case StateRecording:
		_ = c.cfg.Source.Stop()
		_ = c.session.Close()
		c.cancel()
	case StateProcessing:
		close(c.abort)
	default:
		return
	}
	c.gen++
	c.session, c.cancel, c.abort = nil, nil, nil
	c.endLocked(context.Background(), observe.OutcomeCancelled)
	c.setStateLocked(StateIdle)
	slog.Info("dictation cancelled", "session_id", c.snap.SessionID)
}

// deliver hands result to the sink and recorder unless the session was
// cancelled meanwhile.
func (c *Controller) deliver(ctx context.Context, gen uint64, m mode.Mode, transcript, result string) (string, error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		slog.Debug("dictation: dropping stale result", "session_id", c.snap.SessionID)
		return "", ErrCancelled
	}

	if err := c.cfg.Sink.InsertText(ctx, result); err != nil {
		err = fmt.Errorf("dictation: insert text: %w", err)
		c.snap.Err = err
		c.endLocked(ctx, observe.OutcomeFailed)
		c.setStateLocked(StateFailed)
		c.emitLocked(Event{Kind: EventError, Err: err})
		c.mu.Unlock()
		return "", err
	}

	c.snap.Result = result
	c.endLocked(ctx, observe.OutcomeDelivered)
	c.setStateLocked(StateDelivered)
	c.emitLocked(Event{Kind: EventDelivered, Text: result})
	id := c.snap.SessionID
	c.mu.Unlock()

	if c.cfg.Recorder != nil {
		e := history.NewEntry(result, transcript, m, c.cfg.Now())
		if err := c.cfg.Recorder.Record(ctx, e); err != nil {
			observe.Logger(ctx).Warn("dictation: record history", "session_id", id, "error", err)
		}
	}
	slog.Info("dictation delivered", "session_id", id, "mode", m.String(), "words", history.CountWords(result))
	return result, nil
}

func (c *Controller) finishNoSpeech(ctx context.Context, gen uint64, cause error) error {
	err := stt.ErrNoSpeech
	if cause != nil && !errors.Is(cause, stt.ErrNoSpeech) {
		err = fmt.Errorf("%w: %w", stt.ErrNoSpeech, cause)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return ErrCancelled
	}
	c.snap.Err = err
	c.endLocked(ctx, observe.OutcomeNoSpeech)
	c.setStateLocked(StateFailed)
	c.emitLocked(Event{Kind: EventNoSpeech, Err: err})
	return err
}

func (c *Controller) failStartLocked(err error) error {
	c.snap.Err = err
	c.setStateLocked(StateFailed)
	c.emitLocked(Event{Kind: EventError, Err: err})
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordSession(context.Background(), observe.OutcomeFailed)
	}
	return err
}

// partial records an interim transcript for session gen.
func (c *Controller) partial(gen uint64, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || !c.state.Busy() {
		return
	}
	c.snap.Partial = text
	c.emitLocked(Event{Kind: EventPartial, Text: text})
}

// endLocked records the outcome of a session that reached Start.
func (c *Controller) endLocked(ctx context.Context, outcome string) {
	if c.cfg.Metrics == nil {
		return
	}
	c.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	c.cfg.Metrics.RecordSession(ctx, outcome)
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	c.emitLocked(Event{Kind: EventState})
}

func (c *Controller) emitLocked(e Event) {
	if c.cfg.OnEvent == nil {
		return
	}
	e.SessionID = c.snap.SessionID
	e.State = c.state
	c.cfg.OnEvent(e)
}

// pump forwards captured audio to the session until the source closes its
// channel. Once the session has closed the remaining chunks are discarded.
func pump(chunks <-chan []byte, sess stt.Session, done chan<- struct{}) {
	defer close(done)
	var logged bool
	for chunk := range chunks {
		err := sess.SendAudio(chunk)
		if errors.Is(err, stt.ErrSessionClosed) {
			audio.Drain(chunks)
			return
		}
		if err != nil && !logged {
			slog.Warn("dictation: send audio", "error", err)
			logged = true
		}
	}
}
