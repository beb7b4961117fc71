// Package config loads and watches wavedeck settings.
//
// Settings come from a YAML file in the user config directory, overridden
// by WAVEDECK_* environment variables. The engine reads settings through a
// Provider snapshot so a reload never tears a half-written config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every engine setting.
type Config struct {
	// Playback defaults.
	Volume   float64 `yaml:"volume" mapstructure:"volume" env:"VOLUME"`
	Loop     bool    `yaml:"loop" mapstructure:"loop" env:"LOOP"`
	Autoplay bool    `yaml:"autoplay" mapstructure:"autoplay" env:"AUTOPLAY"`

	// Loudness normalization.
	NormalizeVolume       bool    `yaml:"normalize_volume" mapstructure:"normalize_volume" env:"NORMALIZE_VOLUME"`
	NormalizationTargetDB float64 `yaml:"normalization_target_db" mapstructure:"normalization_target_db" env:"NORMALIZATION_TARGET_DB"`

	// Decode cache.
	CacheMaxEntries int `yaml:"cache_max_entries" mapstructure:"cache_max_entries" env:"CACHE_MAX_ENTRIES"`

	// Output device format.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate" env:"SAMPLE_RATE"`
	Channels   int `yaml:"channels" mapstructure:"channels" env:"CHANNELS"`
	BufferMs   int `yaml:"buffer_ms" mapstructure:"buffer_ms" env:"BUFFER_MS"`

	// Byte sources: local sample library root and the legacy remote
	// endpoint used as a fallback when a file is not available locally.
	SampleRoot string `yaml:"sample_root" mapstructure:"sample_root" env:"SAMPLE_ROOT"`
	RemoteURL  string `yaml:"remote_url" mapstructure:"remote_url" env:"REMOTE_URL"`

	Debug bool `yaml:"debug" mapstructure:"debug" env:"DEBUG"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Volume:                1.0,
		NormalizationTargetDB: -14,
		CacheMaxEntries:       32,
		SampleRate:            44100,
		Channels:              2,
	}
}

// DefaultPath returns the user-scope settings file location.
func DefaultPath() (string, error) {
	scope := gap.NewScope(gap.User, "wavedeck")
	path, err := scope.ConfigPath("wavedeck.yml")
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return path, nil
}

// Load reads the settings file at path (the default location when path is
// empty), applies environment overrides and returns the result. A missing
// file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("volume", cfg.Volume)
	v.SetDefault("normalization_target_db", cfg.NormalizationTargetDB)
	v.SetDefault("cache_max_entries", cfg.CacheMaxEntries)
	v.SetDefault("sample_rate", cfg.SampleRate)
	v.SetDefault("channels", cfg.Channels)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "WAVEDECK_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.Volume < 0 {
		cfg.Volume = 0
	} else if cfg.Volume > 1 {
		cfg.Volume = 1
	}
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = Default().CacheMaxEntries
	}
	return cfg, nil
}

// WriteDefault creates the settings file with default values if it does
// not exist yet.
func WriteDefault(path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	log.Debug("wrote default config", "path", path)
	return nil
}

// Provider hands out immutable settings snapshots and notifies subscribers
// on reload. Reads are lock-free.
type Provider struct {
	current atomic.Pointer[Config]

	mu   sync.Mutex
	subs []func(*Config)
}

// NewProvider wraps an initial configuration.
func NewProvider(cfg *Config) *Provider {
	p := &Provider{}
	p.current.Store(cfg)
	return p
}

// Get returns the current snapshot. Callers must not mutate it.
func (p *Provider) Get() *Config {
	return p.current.Load()
}

// Set replaces the snapshot and notifies subscribers.
func (p *Provider) Set(cfg *Config) {
	p.current.Store(cfg)
	p.mu.Lock()
	subs := append([]func(*Config){}, p.subs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(cfg)
	}
}

// Subscribe registers a callback invoked after every reload.
func (p *Provider) Subscribe(fn func(*Config)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Watch reloads the settings file whenever it changes on disk. Returns a
// stop function releasing the watcher.
func (p *Provider) Watch(path string) (func(), error) {
	if path == "" {
		dp, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = dp
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops a
	// watch set on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("settings reload failed", "path", path, "error", err)
					continue
				}
				log.Debug("settings reloaded", "path", path)
				p.Set(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("settings watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			watcher.Close()
		})
	}, nil
}
