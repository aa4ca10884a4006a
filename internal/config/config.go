package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Addr           string   `mapstructure:"addr"`
	DBPath         string   `mapstructure:"db"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	Workers        int      `mapstructure:"workers"`
	Debug          bool     `mapstructure:"debug"`
	LogLevel       string   `mapstructure:"log_level"`
	LogFormat      string   `mapstructure:"log_format"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load resolves configuration from flags, TASKPULSE_* environment variables
// and an optional config file, in that order of precedence.
func Load(args []string) (Config, error) {
	fs := pflag.NewFlagSet("taskpulse", pflag.ContinueOnError)
	fs.String("addr", ":8080", "HTTP bind address")
	fs.String("db", "taskpulse.db", "SQLite DB path")
	fs.Int("workers", 4, "concurrent tasks per scheduler pass")
	fs.Bool("debug", false, "expose pprof under /debug/pprof")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "console", "log format (console, json)")
	fs.StringSlice("allowed-origins", nil, "websocket origin patterns besides the request host")
	configFile := fs.String("config", "", "optional config file (yaml, json, toml)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("TASKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("jwt_secret", "")

	for flag, key := range map[string]string{
		"addr":            "addr",
		"db":              "db",
		"workers":         "workers",
		"debug":           "debug",
		"log-level":       "log_level",
		"log-format":      "log_format",
		"allowed-origins": "allowed_origins",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return Config{}, fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required (TASKPULSE_JWT_SECRET)"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
