// Package mode defines the transformation modes applied to a transcript
// before it is delivered.
//
// Keyboard modes ([Raw] through [SuperPrompt]) are what the dictation client
// cycles through. [Translate] and [AskMe] are offered by the web tier only.
// [Custom] uses a user supplied system prompt held in preferences.
package mode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codiris/voice/pkg/usage"
)

// ErrUnknownMode is returned by [Parse] when a value names no mode.
var ErrUnknownMode = errors.New("mode: unknown mode")

// Mode identifies a transformation. The value is the stable identifier used
// in preferences, config files and HTTP payloads.
type Mode string

const (
	Raw         Mode = "raw"
	Clean       Mode = "clean"
	Format      Mode = "format"
	Email       Mode = "email"
	Code        Mode = "code"
	Notes       Mode = "notes"
	SuperPrompt Mode = "superPrompt"
	Translate   Mode = "translate"
	AskMe       Mode = "askMe"
	Custom      Mode = "custom"
)

// Info is the presentation metadata of a mode.
type Info struct {
	ID          Mode   `json:"id"`
	DisplayName string `json:"displayName"`
	ShortName   string `json:"shortName"`
	Icon        string `json:"icon"`
	Description string `json:"description"`

	// WebOnly marks modes that are not part of the keyboard cycle.
	WebOnly bool `json:"webOnly,omitempty"`
}

var catalog = []Info{
	{ID: Raw, DisplayName: "Raw", ShortName: "Raw", Icon: "waveform", Description: "No processing - exact transcription of your speech"},
	{ID: Clean, DisplayName: "Clean", ShortName: "Clean", Icon: "text.badge.checkmark", Description: "Fix grammar, punctuation, and capitalization"},
	{ID: Format, DisplayName: "Format", ShortName: "Format", Icon: "text.alignleft", Description: "Professional formatting with proper structure"},
	{ID: Email, DisplayName: "Email", ShortName: "Email", Icon: "envelope", Description: "Convert speech into professional email format"},
	{ID: Code, DisplayName: "Code", ShortName: "Code", Icon: "chevron.left.forwardslash.chevron.right", Description: "Format as code comments or documentation"},
	{ID: Notes, DisplayName: "Notes", ShortName: "Notes", Icon: "list.bullet", Description: "Structure as meeting notes with bullet points"},
	{ID: SuperPrompt, DisplayName: "Super Prompt", ShortName: "Super", Icon: "sparkles", Description: "Transform speech into powerful AI prompts (context-aware)"},
	{ID: Translate, DisplayName: "Translate", ShortName: "Translate", Icon: "globe", Description: "Translate to English, or to French when already in English", WebOnly: true},
	{ID: AskMe, DisplayName: "Ask Me", ShortName: "Ask", Icon: "questionmark.bubble", Description: "Ask the assistant to write, answer or brainstorm", WebOnly: true},
	{ID: Custom, DisplayName: "Custom", ShortName: "Custom", Icon: "slider.horizontal.3", Description: "Apply your own system prompt"},
}

var byID = func() map[Mode]Info {
	m := make(map[Mode]Info, len(catalog))
	for _, info := range catalog {
		m[info.ID] = info
	}
	return m
}()

// All returns metadata for every mode in presentation order.
func All() []Info {
	out := make([]Info, len(catalog))
	copy(out, catalog)
	return out
}

// Keyboard returns the modes the dictation client cycles through.
func Keyboard() []Mode {
	return []Mode{Raw, Clean, Format, Email, Code, Notes, SuperPrompt}
}

// Lookup returns the metadata for m.
func Lookup(m Mode) (Info, bool) {
	info, ok := byID[m]
	return info, ok
}

// Info returns the metadata for m. Unknown modes yield a zero Info.
func (m Mode) Info() Info {
	return byID[m]
}

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	_, ok := byID[m]
	return ok
}

// String returns the identifier.
func (m Mode) String() string { return string(m) }

// ContextSensitive reports whether the system prompt depends on the usage
// context of the focused field.
func (m Mode) ContextSensitive() bool {
	return m == SuperPrompt
}

// Next returns the keyboard mode after m, wrapping around. Modes outside the
// keyboard cycle advance to [Raw].
func (m Mode) Next() Mode {
	kb := Keyboard()
	for i, k := range kb {
		if k == m {
			return kb[(i+1)%len(kb)]
		}
	}
	return Raw
}

// Parse resolves s to a mode. Both identifiers ("superPrompt") and display
// names ("Super Prompt") are accepted, case-insensitively.
func Parse(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	for _, info := range catalog {
		if strings.EqualFold(s, string(info.ID)) || strings.EqualFold(s, info.DisplayName) {
			return info.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Prompt returns the system prompt of m for the given usage context. The
// context only matters for [SuperPrompt]. ok is false for [Raw], which never
// reaches a model, and for [Custom], whose prompt lives in preferences.
func (m Mode) Prompt(ctx usage.Context) (prompt string, ok bool) {
	switch m {
	case Raw, Custom:
		return "", false
	case SuperPrompt:
		return superPrompt(ctx), true
	}
	p, ok := fixedPrompts[m]
	return p, ok
}
