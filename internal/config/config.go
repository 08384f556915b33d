package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/notifier"
	"github.com/newthinker/pushrelay/internal/notifier/pushover"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig             `mapstructure:"server"`
	Pushover   notifier.Config          `mapstructure:"pushover"`
	Projects   map[string]ProjectConfig `mapstructure:"projects"`
	LinkPrefix string                   `mapstructure:"link_prefix"`
	History    HistoryConfig            `mapstructure:"history"`
	Archive    ArchiveConfig            `mapstructure:"archive"`
	Metrics    MetricsConfig            `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// ProjectConfig holds the notification settings of one project as written
// in the config file. Enum fields are kept as strings and parsed by
// Configuration.
type ProjectConfig struct {
	Name            string `mapstructure:"name"`
	UserKey         string `mapstructure:"user_key"`
	APIToken        string `mapstructure:"api_token"`
	NotifyOnlyNew   bool   `mapstructure:"notify_only_new"`
	MinimumSeverity string `mapstructure:"minimum_severity"`
	Sound           string `mapstructure:"sound"`
	Priority        string `mapstructure:"priority"`
}

// HistoryConfig holds delivery history settings.
type HistoryConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// ArchiveConfig holds delivery archive settings.
type ArchiveConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Type          string   `mapstructure:"type"` // "localfs" or "s3"
	Path          string   `mapstructure:"path"` // For localfs
	S3            S3Config `mapstructure:"s3"`   // For S3
	RetentionDays int      `mapstructure:"retention_days"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults mirrors Defaults so partial files inherit the same values.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("pushover.endpoint", d.Pushover.Endpoint)
	v.SetDefault("pushover.timeout", d.Pushover.Timeout)
	v.SetDefault("pushover.rate_per_sec", d.Pushover.RatePerSec)
	v.SetDefault("pushover.burst", d.Pushover.Burst)
	v.SetDefault("pushover.max_attempts", d.Pushover.MaxAttempts)
	v.SetDefault("pushover.retry_base", d.Pushover.RetryBase)
	v.SetDefault("pushover.retry_max_delay", d.Pushover.RetryMaxDelay)
	v.SetDefault("history.max_entries", d.History.MaxEntries)
	v.SetDefault("archive.type", d.Archive.Type)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Pushover: pushover.DefaultConfig(),
		Projects: map[string]ProjectConfig{},
		History: HistoryConfig{
			MaxEntries: 500,
		},
		Archive: ArchiveConfig{
			Type: "localfs",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors. A project with missing
// credentials is valid: it is skipped at dispatch time.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Pushover.Timeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("pushover timeout must be positive, got %s", c.Pushover.Timeout))
	}
	if c.Pushover.MaxAttempts < 1 || c.Pushover.MaxAttempts > 3 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("pushover max_attempts must be between 1 and 3, got %d", c.Pushover.MaxAttempts))
	}
	if c.Pushover.RatePerSec < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("pushover rate_per_sec cannot be negative, got %f", c.Pushover.RatePerSec))
	}

	for _, slug := range c.ProjectSlugs() {
		if strings.ContainsAny(slug, "/ ") {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("project slug %q must not contain '/' or spaces", slug))
		}
		if _, err := c.Projects[slug].Configuration(slug); err != nil {
			return err
		}
	}

	if c.Archive.RetentionDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("archive retention_days cannot be negative, got %d", c.Archive.RetentionDays))
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "localfs":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive path required when type is localfs"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive s3 bucket required when type is s3"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown archive type %q", c.Archive.Type))
		}
	}

	return nil
}

// ProjectSlugs returns the configured project slugs in sorted order.
func (c *Config) ProjectSlugs() []string {
	slugs := make([]string, 0, len(c.Projects))
	for slug := range c.Projects {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Configuration converts the file representation into the dispatch
// configuration of the project.
func (p ProjectConfig) Configuration(slug string) (core.Configuration, error) {
	severity, err := core.ParseSeverity(p.MinimumSeverity)
	if err != nil {
		return core.Configuration{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("project %s: %w", slug, err))
	}
	sound, err := core.ParseSound(p.Sound)
	if err != nil {
		return core.Configuration{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("project %s: %w", slug, err))
	}
	priority, err := core.ParsePriority(p.Priority)
	if err != nil {
		return core.Configuration{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("project %s: %w", slug, err))
	}

	return core.Configuration{
		Slug:            slug,
		Name:            p.Name,
		UserKey:         p.UserKey,
		APIToken:        p.APIToken,
		NotifyOnlyNew:   p.NotifyOnlyNew,
		MinimumSeverity: severity,
		Sound:           sound,
		Priority:        priority,
	}, nil
}
