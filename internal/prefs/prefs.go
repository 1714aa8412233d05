// Package prefs holds the user's dictation preferences and the small
// key-value port they are persisted through.
//
// Preferences are read at the start of every dictation session and passed
// explicitly to the components that need them; nothing in this module reads
// a global settings object.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/codiris/voice/pkg/mode"
)

// Method selects the transcription strategy.
type Method string

const (
	// MethodStreaming transcribes while recording and reports partials.
	MethodStreaming Method = "streaming"

	// MethodBatch records to a file and uploads it when recording stops.
	MethodBatch Method = "batch"
)

// IsValid reports whether m is a recognised method.
func (m Method) IsValid() bool {
	return m == MethodStreaming || m == MethodBatch
}

// LanguageAuto lets the transcriber detect the spoken language.
const LanguageAuto = "auto"

// Preferences is the persisted user configuration.
type Preferences struct {
	Language            string    `yaml:"language" json:"language"`
	TranscriptionMethod Method    `yaml:"transcription_method" json:"transcriptionMethod"`
	AutoDetectContext   bool      `yaml:"auto_detect_context" json:"autoDetectContext"`
	HapticFeedback      bool      `yaml:"haptic_feedback" json:"hapticFeedback"`
	AccentColor         string    `yaml:"accent_color" json:"accentColor"`
	CurrentMode         mode.Mode `yaml:"current_mode" json:"currentMode"`

	// CustomPrompt is the system prompt used by [mode.Custom].
	CustomPrompt string `yaml:"custom_prompt,omitempty" json:"customPrompt,omitempty"`
}

// Defaults returns the preferences of a fresh install.
func Defaults() Preferences {
	return Preferences{
		Language:            LanguageAuto,
		TranscriptionMethod: MethodBatch,
		AutoDetectContext:   true,
		HapticFeedback:      true,
		AccentColor:         "blue",
		CurrentMode:         mode.Raw,
	}
}

var (
	languagePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}([-_][a-zA-Z0-9]{2,8})*$`)
	hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

	namedColors = []string{"blue", "purple", "green", "orange", "red", "pink", "teal", "indigo", "yellow", "gray"}
)

// Validate checks every field and returns all problems joined.
func (p Preferences) Validate() error {
	var errs []error
	if p.Language != LanguageAuto && !languagePattern.MatchString(p.Language) {
		errs = append(errs, fmt.Errorf("language %q is not \"auto\" or a language code", p.Language))
	}
	if !p.TranscriptionMethod.IsValid() {
		errs = append(errs, fmt.Errorf("transcription_method %q is invalid; valid values: streaming, batch", p.TranscriptionMethod))
	}
	if !slices.Contains(namedColors, p.AccentColor) && !hexColorPattern.MatchString(p.AccentColor) {
		errs = append(errs, fmt.Errorf("accent_color %q is neither a named color nor #rrggbb", p.AccentColor))
	}
	if !p.CurrentMode.IsValid() {
		errs = append(errs, fmt.Errorf("current_mode %q: %w", p.CurrentMode, mode.ErrUnknownMode))
	}
	return errors.Join(errs...)
}

// Store persists preferences.
type Store interface {
	// Load returns the stored preferences, or Defaults when nothing has been
	// saved yet.
	Load(ctx context.Context) (Preferences, error)

	// Save validates and stores p.
	Save(ctx context.Context, p Preferences) error
}

// ── key-value access ─────────────────────────────────────────────────────────

// Keys lists the names accepted by [Preferences.Set] and [Preferences.Get].
func Keys() []string {
	return []string{
		"language", "transcription_method", "auto_detect_context",
		"haptic_feedback", "accent_color", "current_mode", "custom_prompt",
	}
}

// ErrUnknownKey is returned for a key not in [Keys].
var ErrUnknownKey = errors.New("prefs: unknown key")

// Get returns the textual value of key.
func (p Preferences) Get(key string) (string, error) {
	switch key {
	case "language":
		return p.Language, nil
	case "transcription_method":
		return string(p.TranscriptionMethod), nil
	case "auto_detect_context":
		return strconv.FormatBool(p.AutoDetectContext), nil
	case "haptic_feedback":
		return strconv.FormatBool(p.HapticFeedback), nil
	case "accent_color":
		return p.AccentColor, nil
	case "current_mode":
		return string(p.CurrentMode), nil
	case "custom_prompt":
		return p.CustomPrompt, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownKey, key)
}

// Set parses value into the field named key. The result is not validated;
// call Validate or let the Store do it on Save.
func (p *Preferences) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "language":
		p.Language = strings.ToLower(value)
	case "transcription_method":
		p.TranscriptionMethod = Method(strings.ToLower(value))
	case "auto_detect_context", "haptic_feedback":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("prefs: %s: %w", key, err)
		}
		if key == "auto_detect_context" {
			p.AutoDetectContext = b
		} else {
			p.HapticFeedback = b
		}
	case "accent_color":
		p.AccentColor = strings.ToLower(value)
	case "current_mode":
		m, err := mode.Parse(value)
		if err != nil {
			return fmt.Errorf("prefs: %w", err)
		}
		p.CurrentMode = m
	case "custom_prompt":
		p.CustomPrompt = value
	default:
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return nil
}
