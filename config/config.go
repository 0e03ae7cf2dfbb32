package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/treemana/quickdot/log"
)

// Name is the config file name searched in the working directory when no
// explicit path is given, any extension viper understands is accepted.
const Name = "quickdot"

type Config struct {
	Log      Log      `json:"log" yaml:"log"`
	Server   Server   `json:"server" yaml:"server"`
	Upstream Upstream `json:"upstream" yaml:"upstream"`
	Cache    Cache    `json:"cache" yaml:"cache"`
}

type Log struct {
	File       string `json:"file" yaml:"file"`
	STDOUT     bool   `json:"stdout" yaml:"stdout"`
	Verbose    bool   `json:"verbose" yaml:"verbose"` // shortcut for level debug
	Level      string `json:"level" yaml:"level"`
	JSON       bool   `json:"json" yaml:"json"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // megabytes
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // days
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // files
	Compress   bool   `json:"compress" yaml:"compress"`
}

type Server struct {
	Address string `json:"address" yaml:"address"`
	Port    int    `json:"port" yaml:"port"`

	// Metrics is the listen address of the prometheus endpoint, empty disables it
	Metrics string `json:"metrics" yaml:"metrics"`
}

type Upstream struct {
	// URLs are udp://, tcp:// or tls:// resolvers, the fastest to connect is used
	URLs    []string `json:"urls" yaml:"urls"`
	Timeout uint32   `json:"timeout" yaml:"timeout"` // milliseconds
}

// Cache durations are in seconds.
type Cache struct {
	// Size is the maximum number of cached responses
	Size int `json:"size" yaml:"size"`

	// MinTTL and MaxTTL clamp the lifetime derived from the answer TTLs
	MinTTL uint32 `json:"min_ttl" yaml:"min_ttl"`
	MaxTTL uint32 `json:"max_ttl" yaml:"max_ttl"`

	// NegativeTTL is the lifetime of NXDOMAIN and NODATA responses
	NegativeTTL uint32 `json:"negative_ttl" yaml:"negative_ttl"`

	// CleanInterval is the period of the expired entry sweep, 0 disables it
	CleanInterval uint32 `json:"clean_interval" yaml:"clean_interval"`
}

func Default() *Config {
	return &Config{
		Log: Log{
			STDOUT:     true,
			Level:      "info",
			MaxSize:    10,
			MaxAge:     2,
			MaxBackups: 100,
		},
		Server: Server{
			Address: "127.0.0.1",
			Port:    5353,
		},
		Upstream: Upstream{
			URLs:    []string{"udp://1.1.1.1:53"},
			Timeout: 3000,
		},
		Cache: Cache{
			Size:          4096,
			MinTTL:        0,
			MaxTTL:        6 * 3600,
			NegativeTTL:   300,
			CleanInterval: 60,
		},
	}
}

// Load reads the config file at path. An empty path searches for Name in the
// working directory and falls back to Default when there is none.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if len(path) > 0 {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(Name)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if len(path) > 0 || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	decoderOpt := func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
		cfg.TagName = "json"
		cfg.WeaklyTypedInput = true
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.stdout", d.Log.STDOUT)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("upstream.urls", d.Upstream.URLs)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("cache.size", d.Cache.Size)
	v.SetDefault("cache.min_ttl", d.Cache.MinTTL)
	v.SetDefault("cache.max_ttl", d.Cache.MaxTTL)
	v.SetDefault("cache.negative_ttl", d.Cache.NegativeTTL)
	v.SetDefault("cache.clean_interval", d.Cache.CleanInterval)
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port=%d", c.Server.Port)
	}
	if c.Upstream.Timeout == 0 {
		return errors.New("upstream timeout must be positive")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("invalid cache size=%d", c.Cache.Size)
	}
	if c.Cache.MaxTTL < c.Cache.MinTTL {
		return fmt.Errorf("cache max_ttl=%d below min_ttl=%d", c.Cache.MaxTTL, c.Cache.MinTTL)
	}
	return nil
}

func (u *Upstream) TimeoutDuration() time.Duration {
	return time.Duration(u.Timeout) * time.Millisecond
}

func (c *Cache) CleanEvery() time.Duration {
	return time.Duration(c.CleanInterval) * time.Second
}

// LogConfig converts the log section for log.Init.
func (l *Log) LogConfig() log.Config {
	lc := log.Config{
		STDOUT:     l.STDOUT,
		File:       l.File,
		Level:      l.Level,
		MaxAge:     l.MaxAge,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
		JsonFormat: l.JSON,
	}
	if l.Verbose {
		lc.Level = "debug"
	}
	return lc
}
