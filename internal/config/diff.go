package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Log level,
// conversation tuning and search defaults are applied live; everything listed
// in RestartRequired only takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ConversationChanged covers tuning, greeting and templates. Connections
	// opened after the reload use the new values.
	ConversationChanged bool

	// SearchDefaultsChanged covers the default location, platforms and
	// filters handed to new sessions.
	SearchDefaultsChanged bool

	// RestartRequired names the changed sections that cannot be hot-reloaded.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ConversationChanged && !d.SearchDefaultsChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.ConversationChanged = old.Conversation != new.Conversation

	was, now := old.Search, new.Search
	d.SearchDefaultsChanged = was.Location != now.Location ||
		!slices.Equal(was.Platforms, now.Platforms) ||
		!reflect.DeepEqual(was.Filters, now.Filters)

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !reflect.DeepEqual(old.Server.TLS, new.Server.TLS))
	restart("server.allowed_origins", !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins))
	restart("server.static_dir", old.Server.StaticDir != new.Server.StaticDir)
	restart("providers", !reflect.DeepEqual(old.Providers, new.Providers))
	restart("search.cache", was.Cache != now.Cache)
	restart("history", old.History != new.History)

	return d
}
