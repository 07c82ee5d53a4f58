package config

import (
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Live holds the current configuration and swaps it when the config file
// changes. A change that fails to decode or validate is logged and ignored.
type Live struct {
	mu       sync.RWMutex
	v        *viper.Viper
	cfg      *Config
	onChange []func(*Config)
}

// Watch loads configuration like Load and keeps it current when a config
// file is in use.
func Watch(configPath string) (*Live, error) {
	l, err := newLive(configPath)
	if err != nil {
		return nil, err
	}
	if file := l.v.ConfigFileUsed(); file != "" {
		l.v.OnConfigChange(func(e fsnotify.Event) {
			log.Info().Str("file", e.Name).Msg("Config file changed")
			_ = l.Reload()
		})
		l.v.WatchConfig()
		log.Info().Str("file", file).Msg("Watching config file")
	}
	return l, nil
}

func newLive(configPath string) (*Live, error) {
	v, err := readViper(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Live{v: v, cfg: cfg}, nil
}

// Current returns the active configuration. Callers must not modify it.
func (l *Live) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnChange registers fn to run after each successful reload.
func (l *Live) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload re-reads the config file and swaps the active configuration.
func (l *Live) Reload() error {
	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Msg("Failed to re-read config, keeping previous")
			return err
		}
	}
	cfg, err := decode(l.v)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid config change, keeping previous")
		return err
	}

	l.mu.Lock()
	l.cfg = cfg
	hooks := slices.Clone(l.onChange)
	l.mu.Unlock()

	for _, fn := range hooks {
		fn(cfg)
	}
	log.Info().Int("market_items", len(cfg.Market.Items)).Msg("Configuration reloaded")
	return nil
}
