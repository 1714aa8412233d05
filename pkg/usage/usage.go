// Package usage classifies the text field a dictation is aimed at into a
// coarse usage context (coding, messaging, writing, general).
//
// The classification drives prompt selection for context-sensitive modes such
// as Super Prompt. [Classify] is a pure, total function: every combination of
// [Hints] maps to exactly one [Context], and unknown or missing hints map to
// [General].
package usage

import "fmt"

// Context is the coarse purpose of the host application's text field.
type Context string

const (
	// IDE is a code editor or any field that expects source code or URLs.
	IDE Context = "ide"

	// Communication is a messaging, mail or social field.
	Communication Context = "communication"

	// Writing is a long-form document or notes field.
	Writing Context = "writing"

	// General is the fallback for everything else.
	General Context = "general"
)

// All returns every usage context in declaration order.
func All() []Context {
	return []Context{IDE, Communication, Writing, General}
}

// IsValid reports whether c is a recognised usage context.
func (c Context) IsValid() bool {
	switch c {
	case IDE, Communication, Writing, General:
		return true
	}
	return false
}

// Parse converts s into a [Context]. The empty string parses as [General].
func Parse(s string) (Context, error) {
	if s == "" {
		return General, nil
	}
	c := Context(s)
	if !c.IsValid() {
		return "", fmt.Errorf("usage: unknown context %q", s)
	}
	return c, nil
}

// KeyboardType is the keyboard layout the host field requested.
type KeyboardType string

const (
	KeyboardDefault      KeyboardType = "default"
	KeyboardASCIICapable KeyboardType = "asciiCapable"
	KeyboardURL          KeyboardType = "url"
	KeyboardEmailAddress KeyboardType = "emailAddress"
	KeyboardNumberPad    KeyboardType = "numberPad"
	KeyboardPhonePad     KeyboardType = "phonePad"
	KeyboardTwitter      KeyboardType = "twitter"
	KeyboardWebSearch    KeyboardType = "webSearch"
)

// ReturnKeyType is the label of the host field's return key.
type ReturnKeyType string

const (
	ReturnDefault ReturnKeyType = "default"
	ReturnGo      ReturnKeyType = "go"
	ReturnGoogle  ReturnKeyType = "google"
	ReturnSearch  ReturnKeyType = "search"
	ReturnSend    ReturnKeyType = "send"
	ReturnDone    ReturnKeyType = "done"
	ReturnNext    ReturnKeyType = "next"
)

// ContentType is the semantic content hint of the host field.
type ContentType string

const (
	ContentNone         ContentType = ""
	ContentEmailAddress ContentType = "emailAddress"
	ContentUsername     ContentType = "username"
	ContentURL          ContentType = "url"
	ContentName         ContentType = "name"
	ContentPassword     ContentType = "password"
)

// Hints carries whatever the input surface knows about the focused field.
// Every field is optional.
type Hints struct {
	Keyboard    KeyboardType  `json:"keyboard,omitempty" yaml:"keyboard,omitempty"`
	ReturnKey   ReturnKeyType `json:"returnKey,omitempty" yaml:"return_key,omitempty"`
	ContentType ContentType   `json:"contentType,omitempty" yaml:"content_type,omitempty"`

	// AppID is the host application's bundle identifier when the platform
	// exposes it. Known identifiers take precedence over the trait rules.
	AppID string `json:"appId,omitempty" yaml:"app_id,omitempty"`
}

// Classify maps hints to a usage context. Rules are evaluated in order and
// the first match wins:
//
//  1. a known host application identifier
//  2. ASCII-capable or URL keyboard → [IDE]
//  3. email keyboard or email content type → [Communication]
//  4. username or URL content type → [Communication]
//  5. search or google/go return key → [General]
//  6. send return key → [Communication]
//  7. anything else → [General]
func Classify(h Hints) Context {
	if c, ok := appContext(h.AppID); ok {
		return c
	}

	switch {
	case h.Keyboard == KeyboardASCIICapable || h.Keyboard == KeyboardURL:
		return IDE
	case h.Keyboard == KeyboardEmailAddress || h.ContentType == ContentEmailAddress:
		return Communication
	case h.ContentType == ContentUsername || h.ContentType == ContentURL:
		return Communication
	case h.ReturnKey == ReturnSearch || h.ReturnKey == ReturnGoogle || h.ReturnKey == ReturnGo:
		return General
	case h.ReturnKey == ReturnSend:
		return Communication
	}
	return General
}
