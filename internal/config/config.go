// Package config provides the configuration schema, loader, provider registry
// and hot-reload watcher shared by the codiris-web server and the codiris CLI.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CredentialBackend selects where the client keeps the OpenAI API key.
type CredentialBackend string

const (
	CredentialKeyring CredentialBackend = "keyring"
	CredentialFile    CredentialBackend = "file"
)

// IsValid reports whether b is a recognised credential backend.
func (b CredentialBackend) IsValid() bool {
	return b == CredentialKeyring || b == CredentialFile
}

// HistoryBackend selects the dictation history store.
type HistoryBackend string

const (
	HistorySQLite   HistoryBackend = "sqlite"
	HistoryPostgres HistoryBackend = "postgres"
	HistoryNone     HistoryBackend = "none"
)

// IsValid reports whether b is a recognised history backend.
func (b HistoryBackend) IsValid() bool {
	switch b {
	case HistorySQLite, HistoryPostgres, HistoryNone:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Web       WebConfig       `yaml:"web"`
	Client    ClientConfig    `yaml:"client"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the web server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation serves each role.
// Each entry selects a named provider registered in the [Registry]; an entry
// with an empty name leaves the role unconfigured.
type ProvidersConfig struct {
	// LLM backs transcript enhancement.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when LLM fails.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// Refine backs the web refine endpoint. Falls back to LLM when unset.
	Refine ProviderEntry `yaml:"refine"`

	// STT is the batch transcription strategy.
	STT ProviderEntry `yaml:"stt"`

	// Streaming is the real-time transcription strategy.
	Streaming ProviderEntry `yaml:"streaming"`

	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// Configured reports whether the entry names a provider.
func (e ProviderEntry) Configured() bool { return e.Name != "" }

// WebConfig configures the codiris-web API.
type WebConfig struct {
	// Origin is the public site URL used for checkout redirects and mail links
	// when a request carries no Origin header.
	Origin string `yaml:"origin"`

	// AdminEmail receives waitlist notifications. Empty uses the built-in
	// default address.
	AdminEmail string `yaml:"admin_email"`

	Stripe StripeConfig `yaml:"stripe"`
	Resend ResendConfig `yaml:"resend"`
}

// StripeConfig holds Stripe API credentials.
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

// ResendConfig holds Resend mail API settings.
type ResendConfig struct {
	APIKey  string `yaml:"api_key"`
	From    string `yaml:"from"`
	BaseURL string `yaml:"base_url"`
}

// ClientConfig configures the dictation client.
type ClientConfig struct {
	PrefsPath         string            `yaml:"prefs_path"`
	CredentialBackend CredentialBackend `yaml:"credential_backend"`

	// CredentialPath is used by the file credential backend.
	CredentialPath string `yaml:"credential_path"`
}

// HistoryConfig selects and locates the history store.
type HistoryConfig struct {
	Backend HistoryBackend `yaml:"backend"`

	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080", LogLevel: LogInfo},
		Client: ClientConfig{
			PrefsPath:         "~/.codiris/prefs.yaml",
			CredentialBackend: CredentialKeyring,
			CredentialPath:    "~/.codiris/credential.yaml",
		},
		History: HistoryConfig{Backend: HistorySQLite, DSN: "~/.codiris/history.db"},
	}
}

// ExpandHome replaces a leading "~/" in path with the user's home directory.
// The path is returned unchanged when the home directory is unknown.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
