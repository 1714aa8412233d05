package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Fields that can be
// applied to a running server are reported individually; everything else is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	OriginChanged bool
	NewOrigin     string

	AdminEmailChanged bool
	NewAdminEmail     string

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart (e.g. "providers", "web.stripe").
	RestartRequired []string
}

// Changed reports whether anything differs between the two configs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.OriginChanged || d.AdminEmailChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Web.Origin != new.Web.Origin {
		d.OriginChanged = true
		d.NewOrigin = new.Web.Origin
	}
	if old.Web.AdminEmail != new.Web.AdminEmail {
		d.AdminEmailChanged = true
		d.NewAdminEmail = new.Web.AdminEmail
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Web.Stripe != new.Web.Stripe {
		d.RestartRequired = append(d.RestartRequired, "web.stripe")
	}
	if old.Web.Resend != new.Web.Resend {
		d.RestartRequired = append(d.RestartRequired, "web.resend")
	}
	if old.Client != new.Client {
		d.RestartRequired = append(d.RestartRequired, "client")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	return d
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.Refine, b.Refine) &&
		entryEqual(a.STT, b.STT) &&
		entryEqual(a.Streaming, b.Streaming) &&
		entryEqual(a.TTS, b.TTS) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual)
}

// entryEqual compares entries field by field. A nil and an empty Options map
// are equal.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) == 0 && len(b.Options) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
