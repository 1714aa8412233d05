// Package whisper implements on-device transcription with whisper.cpp.
//
// Whisper is a batch engine, so streaming is simulated: every session buffers
// 16 kHz mono PCM and, at a fixed interval, re-runs inference over the whole
// buffer to produce a fresh partial hypothesis. Stop runs one last inference
// over the complete recording and that text is the result. Sessions in which
// no chunk rose above the silence threshold finish with stt.ErrNoSpeech
// without running inference at all.
//
// Two engines share this behaviour: [Native] links whisper.cpp through its
// CGO bindings, and [Server] posts WAV files to a local whisper-server
// process. The whisper.cpp static library and headers must be available at
// link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"net/http"
	"time"

	"github.com/codiris/voice/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the RMS energy (16-bit sample units) below which
	// a chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultPartialInterval = 1500 * time.Millisecond

	// autoLanguage asks whisper.cpp to detect the spoken language.
	autoLanguage = "auto"
)

// recognizer transcribes a complete 16 kHz mono PCM buffer.
type recognizer func(ctx context.Context, pcm []byte, language string) (string, error)

// options are shared by both engines; fields that only one engine uses are
// ignored by the other.
type options struct {
	partialInterval time.Duration
	threshold       float64
	model           string
	httpClient      *http.Client
	tempDir         string
}

// Option is a functional option for configuring [Native] and [Server].
type Option func(*options)

// WithPartialInterval sets how often the growing buffer is re-transcribed to
// produce partials. Zero or negative disables partials entirely.
func WithPartialInterval(d time.Duration) Option {
	return func(o *options) { o.partialInterval = d }
}

// WithSilenceThreshold sets the RMS level below which audio counts as
// silence. Defaults to 300.
func WithSilenceThreshold(rms float64) Option {
	return func(o *options) {
		if rms >= 0 {
			o.threshold = rms
		}
	}
}

// WithModel sets the model identifier forwarded to whisper-server. When empty
// the server uses whichever model it was started with. Ignored by [Native].
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithHTTPClient sets the client used to reach whisper-server. Ignored by
// [Native].
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTempDir sets where [Server] writes upload files. Defaults to
// os.TempDir(). Ignored by [Native].
func WithTempDir(dir string) Option {
	return func(o *options) { o.tempDir = dir }
}

func buildOptions(defaults options, opts []Option) options {
	o := defaults
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// language maps a session config to the language whisper.cpp expects.
func language(cfg stt.Config) string {
	if cfg.DetectLanguage() {
		return autoLanguage
	}
	return cfg.Language
}
