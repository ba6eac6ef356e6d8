// watch.go re-reads the config file on change and hands the freshly validated
// Config to a callback. Only settings that are safe to change at runtime (the
// log level) are applied by the server; everything else needs a restart.
package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch starts watching the config file resolved the same way Load does and
// invokes onChange with every valid reload. Invalid edits are logged and ignored.
// It is a no-op when no config file is in use.
func Watch(configPath string, onChange func(*Config)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			slog.Warn("ignoring invalid config reload", "file", e.Name, "error", err)
			return
		}
		slog.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
