// Package config loads gitcouch settings from an optional TOML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config is the full set of tunables.
type Config struct {
	Source      string `toml:"source"`
	Destination string `toml:"destination"`

	// CacheSize bounds the materialized-document cache.
	CacheSize int `toml:"cache_size" validate:"gte=1"`
	// PendingLimit bounds the work list; when exceeded it is truncated to
	// its first and last PendingKeep entries.
	PendingLimit int `toml:"pending_limit" validate:"gte=3"`
	PendingKeep  int `toml:"pending_keep" validate:"gte=1"`

	PollInterval Duration `toml:"poll_interval" validate:"gt=0"`
	MetricsAddr  string   `toml:"metrics_addr" validate:"omitempty,hostname_port"`

	Retry   RetryConfig   `toml:"retry"`
	HTTP    HTTPConfig    `toml:"http"`
	Log     LogConfig     `toml:"log"`
	Watch   WatchConfig   `toml:"watch"`
	GitHub  GitHubConfig  `toml:"github"`
	CouchDB CouchDBConfig `toml:"couchdb"`
}

// Duration is a time.Duration read from config files. It accepts Go
// duration strings ("90s", "1h") and bare numbers of seconds, so
// poll_interval = 3600 means an hour rather than 3600ns.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := ParseInterval(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// RetryConfig bounds the optimistic write loop.
type RetryConfig struct {
	MaxAttempts int      `toml:"max_attempts" validate:"gte=1"`
	BaseDelay   Duration `toml:"base_delay" validate:"gte=0"`
	MaxDelay    Duration `toml:"max_delay" validate:"gtefield=BaseDelay"`
}

type HTTPConfig struct {
	Timeout     Duration `toml:"timeout" validate:"gt=0"`
	MaxAttempts int      `toml:"max_attempts" validate:"gte=1"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
	File   string `toml:"file"`
}

type WatchConfig struct {
	Debounce Duration `toml:"debounce" validate:"gte=0"`
	// Fallback triggers a pass even without filesystem events.
	Fallback Duration `toml:"fallback" validate:"gte=0"`
}

type GitHubConfig struct {
	Token string `toml:"token"`
	// APIBase overrides https://api.github.com, e.g. for GitHub Enterprise.
	APIBase string `toml:"api_base" validate:"omitempty,url"`
}

type CouchDBConfig struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		CacheSize:    4096,
		PendingLimit: 100000,
		PendingKeep:  1000,
		PollInterval: Duration(time.Hour),
		Retry: RetryConfig{
			MaxAttempts: 8,
			BaseDelay:   Duration(50 * time.Millisecond),
			MaxDelay:    Duration(5 * time.Second),
		},
		HTTP: HTTPConfig{
			Timeout:     Duration(60 * time.Second),
			MaxAttempts: 3,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Watch: WatchConfig{
			Debounce: Duration(500 * time.Millisecond),
			Fallback: Duration(10 * time.Minute),
		},
	}
}

// Load returns Default() overlaid with the TOML file at path (if path is
// non-empty) and then the process environment, validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("load config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnv overlays environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("GITCOUCH_SOURCE", &c.Source)
	str("GITCOUCH_DESTINATION", &c.Destination)
	str("GITCOUCH_LOG_LEVEL", &c.Log.Level)
	str("GITCOUCH_METRICS_ADDR", &c.MetricsAddr)
	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("COUCHDB_USER", &c.CouchDB.User)
	if v, ok := lookup("COUCHDB_PASSWORD"); ok {
		c.CouchDB.Password = v
	}
	if v, ok := lookup("GITCOUCH_POLL_INTERVAL"); ok && strings.TrimSpace(v) != "" {
		d, err := ParseInterval(v)
		if err != nil {
			return fmt.Errorf("GITCOUCH_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = Duration(d)
	}
	return nil
}

// ParseInterval accepts a Go duration ("90s", "1h") or a bare number of
// seconds ("3600").
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var secs int64
	if _, err := fmt.Sscanf(s, "%d", &secs); err != nil || fmt.Sprint(secs) != s {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}

var validate = validator.New()

// Validate checks field constraints and the work-list bound relation.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if 2*c.PendingKeep >= c.PendingLimit {
		return fmt.Errorf("invalid config: pending_keep (%d) must be less than half of pending_limit (%d)",
			c.PendingKeep, c.PendingLimit)
	}
	return nil
}
