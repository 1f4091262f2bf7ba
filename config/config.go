// Package config loads folio's YAML configuration and FOLIO_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Listen string `yaml:"listen"`
	// Format is the serialization of stored chapters: text, markdown,
	// html or json.
	Format    string          `yaml:"format"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Assistant AssistantConfig `yaml:"assistant"`
	Suggest   SuggestConfig   `yaml:"suggest"`
	Menu      MenuConfig      `yaml:"menu"`
	Autosave  AutosaveConfig  `yaml:"autosave"`
	// ConnectTimeout bounds the retries when dialing backends at startup.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // auto | json | text
}

// StoreConfig selects where chapters are persisted.
type StoreConfig struct {
	Driver        string `yaml:"driver"` // sqlite | postgres
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresURL   string `yaml:"postgres_url"`
	KeepRevisions int    `yaml:"keep_revisions"`
}

// CacheConfig selects the emergency cache.
type CacheConfig struct {
	Driver      string        `yaml:"driver"` // bolt | redis | none
	BoltPath    string        `yaml:"bolt_path"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisPrefix string        `yaml:"redis_prefix"`
	RedisTTL    time.Duration `yaml:"redis_ttl"`
}

// AssistantConfig describes the assistant process.
type AssistantConfig struct {
	// Command is the assistant executable; empty disables remote
	// suggestions and selection actions.
	Command           string   `yaml:"command"`
	Args              []string `yaml:"args"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
}

// SuggestConfig tunes the suggestion engine.
type SuggestConfig struct {
	// Dictionary is an optional YAML table merged over the built-in one.
	Dictionary      string        `yaml:"dictionary"`
	MinTokenLength  int           `yaml:"min_token_length"`
	RemoteDebounce  time.Duration `yaml:"remote_debounce"`
	RemoteMinLength int           `yaml:"remote_min_length"`
	MaxSuggestions  int           `yaml:"max_suggestions"`
	RemoteTimeout   time.Duration `yaml:"remote_timeout"`
}

// MenuConfig tunes the selection tool menu.
type MenuConfig struct {
	MinChars   int           `yaml:"min_chars"`
	MinWords   int           `yaml:"min_words"`
	Timeout    time.Duration `yaml:"timeout"`
	FocusAreas []string      `yaml:"focus_areas"`
}

// AutosaveConfig tunes the autosave engine.
type AutosaveConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	SaveTimeout   time.Duration `yaml:"save_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Format == "" {
		c.Format = "markdown"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "folio.db"
	}
	if c.Store.KeepRevisions <= 0 {
		c.Store.KeepRevisions = 20
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "bolt"
	}
	if c.Cache.BoltPath == "" {
		c.Cache.BoltPath = "folio-cache.db"
	}
	if c.Cache.RedisPrefix == "" {
		c.Cache.RedisPrefix = "folio:emergency:"
	}
	if c.Cache.RedisTTL <= 0 {
		c.Cache.RedisTTL = 7 * 24 * time.Hour
	}
	if c.Assistant.RequestsPerSecond <= 0 {
		c.Assistant.RequestsPerSecond = 4
	}
	if c.Assistant.Burst <= 0 {
		c.Assistant.Burst = 4
	}
	if c.Suggest.MinTokenLength <= 0 {
		c.Suggest.MinTokenLength = 2
	}
	if c.Suggest.RemoteDebounce <= 0 {
		c.Suggest.RemoteDebounce = 400 * time.Millisecond
	}
	if c.Suggest.RemoteMinLength <= 0 {
		c.Suggest.RemoteMinLength = 10
	}
	if c.Suggest.MaxSuggestions <= 0 {
		c.Suggest.MaxSuggestions = 5
	}
	if c.Suggest.RemoteTimeout <= 0 {
		c.Suggest.RemoteTimeout = 10 * time.Second
	}
	if c.Menu.MinChars <= 0 {
		c.Menu.MinChars = 10
	}
	if c.Menu.MinWords <= 0 {
		c.Menu.MinWords = 3
	}
	if c.Menu.Timeout <= 0 {
		c.Menu.Timeout = 60 * time.Second
	}
	if c.Autosave.Debounce <= 0 {
		c.Autosave.Debounce = 5 * time.Second
	}
	if c.Autosave.FlushInterval <= 0 {
		c.Autosave.FlushInterval = 30 * time.Second
	}
	if c.Autosave.SaveTimeout <= 0 {
		c.Autosave.SaveTimeout = 15 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
}

// Load reads the YAML file at path, when path is not empty, fills defaults
// and applies FOLIO_* environment overrides.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := c.applyEnv(getenv); err != nil {
		return nil, err
	}
	c.defaults()
	return c, c.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"FOLIO_LISTEN":            &c.Listen,
		"FOLIO_FORMAT":            &c.Format,
		"FOLIO_LOG_LEVEL":         &c.Log.Level,
		"FOLIO_LOG_FORMAT":        &c.Log.Format,
		"FOLIO_STORE_DRIVER":      &c.Store.Driver,
		"FOLIO_SQLITE_PATH":       &c.Store.SQLitePath,
		"FOLIO_POSTGRES_URL":      &c.Store.PostgresURL,
		"FOLIO_CACHE_DRIVER":      &c.Cache.Driver,
		"FOLIO_BOLT_PATH":         &c.Cache.BoltPath,
		"FOLIO_REDIS_ADDR":        &c.Cache.RedisAddr,
		"FOLIO_ASSISTANT_COMMAND": &c.Assistant.Command,
		"FOLIO_DICTIONARY":        &c.Suggest.Dictionary,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := map[string]*time.Duration{
		"FOLIO_AUTOSAVE_DEBOUNCE": &c.Autosave.Debounce,
		"FOLIO_AUTOSAVE_FLUSH":    &c.Autosave.FlushInterval,
		"FOLIO_REMOTE_DEBOUNCE":   &c.Suggest.RemoteDebounce,
	}
	for key, dst := range dur {
		v := getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
	}
	if v := getenv("FOLIO_KEEP_REVISIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: FOLIO_KEEP_REVISIONS: %w", err)
		}
		c.Store.KeepRevisions = n
	}
	return nil
}

// Validate checks driver names and their required settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Format {
	case "text", "markdown", "html", "json":
	default:
		errs = append(errs, fmt.Errorf("format %q: want text, markdown, html or json", c.Format))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "auto", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want auto, json or text", c.Log.Format))
	}
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("store.postgres_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want sqlite or postgres", c.Store.Driver))
	}
	switch c.Cache.Driver {
	case "bolt", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.driver %q: want bolt, redis or none", c.Cache.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
