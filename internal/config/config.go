// Package config loads the client configuration from an optional file and
// the environment, and watches the file for runtime changes.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/wayfinder-io/wayfinder/pkg/log"
)

const envPrefix = "WAYFINDER"

// Loader reads configuration into mapstructure-tagged targets. Environment
// variables override file values (WAYFINDER_WS_SERVER_URL overrides
// ws.server-url).
type Loader struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// NewLoader creates a loader for the given config file path. An empty path
// means environment-only configuration.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return &Loader{v: v, path: path}
}

// Load reads the file (when configured) and unmarshals the merged view into
// target.
func (l *Loader) Load(target any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", l.path, err)
		}
	}
	if err := l.v.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// Watch invokes onChange after every modification of the config file. No-op
// without a file. onChange runs on the watcher goroutine; it should re-Load
// and apply whatever is adjustable at runtime.
func (l *Loader) Watch(onChange func()) {
	if l.path == "" {
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Op.Has(fsnotify.Write) && !e.Op.Has(fsnotify.Create) {
			return
		}
		log.Info("Config file changed, reloading", "file", e.Name)
		onChange()
	})
	l.v.WatchConfig()
}
