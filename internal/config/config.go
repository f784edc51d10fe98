// Package config loads market settings from built-in defaults, an optional
// YAML file and MARKET_* environment variables, in that order.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"

	envPrefix = "MARKET_"
)

type Config struct {
	HTTP    HTTP    `koanf:"http" yaml:"http"`
	Storage Storage `koanf:"storage" yaml:"storage"`
	Locks   Locks   `koanf:"locks" yaml:"locks"`
	Log     Log     `koanf:"log" yaml:"log"`
	Metrics Metrics `koanf:"metrics" yaml:"metrics"`
}

type HTTP struct {
	Addr            string        `koanf:"addr" yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`

	// CheckoutRateLimit is the number of checkouts one client IP may place
	// per CheckoutRateWindow. Zero disables the limit.
	CheckoutRateLimit  int           `koanf:"checkout_rate_limit" yaml:"checkout_rate_limit" validate:"gte=0"`
	CheckoutRateWindow time.Duration `koanf:"checkout_rate_window" yaml:"checkout_rate_window" validate:"gt=0"`
}

type Storage struct {
	Driver      string `koanf:"driver" yaml:"driver" validate:"oneof=file postgres"`
	Dir         string `koanf:"dir" yaml:"dir" validate:"required_if=Driver file"`
	PostgresDSN string `koanf:"postgres_dsn" yaml:"postgres_dsn" validate:"required_if=Driver postgres"`

	ConnectAttempts uint64 `koanf:"connect_attempts" yaml:"connect_attempts" validate:"gt=0"`
}

// Locks configures the cross-process lock files. An empty Dir keeps locking
// in-process only.
type Locks struct {
	Dir            string        `koanf:"dir" yaml:"dir"`
	RetryDelay     time.Duration `koanf:"retry_delay" yaml:"retry_delay" validate:"gt=0"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout" yaml:"acquire_timeout" validate:"gte=0"`
}

type Log struct {
	Level string `koanf:"level" yaml:"level" validate:"oneof=debug info warn error"`
}

type Metrics struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Token   string `koanf:"token" yaml:"token" validate:"required_if=Enabled true"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:               ":8080",
			ShutdownTimeout:    10 * time.Second,
			CheckoutRateLimit:  60,
			CheckoutRateWindow: time.Minute,
		},
		Storage: Storage{
			Driver:          DriverFile,
			Dir:             "data",
			ConnectAttempts: 5,
		},
		Locks: Locks{
			Dir:            "data",
			RetryDelay:     10 * time.Millisecond,
			AcquireTimeout: 30 * time.Second,
		},
		Log: Log{Level: "info"},
	}
}

// envToKey lists every variable Load honours. Anything else carrying the
// prefix is ignored.
var envToKey = map[string]string{
	"MARKET_HTTP_ADDR":                 "http.addr",
	"MARKET_HTTP_SHUTDOWN_TIMEOUT":     "http.shutdown_timeout",
	"MARKET_HTTP_CHECKOUT_RATE_LIMIT":  "http.checkout_rate_limit",
	"MARKET_HTTP_CHECKOUT_RATE_WINDOW": "http.checkout_rate_window",
	"MARKET_STORAGE_DRIVER":            "storage.driver",
	"MARKET_STORAGE_DIR":               "storage.dir",
	"MARKET_STORAGE_POSTGRES_DSN":      "storage.postgres_dsn",
	"MARKET_STORAGE_CONNECT_ATTEMPTS":  "storage.connect_attempts",
	"MARKET_LOCKS_DIR":                 "locks.dir",
	"MARKET_LOCKS_RETRY_DELAY":         "locks.retry_delay",
	"MARKET_LOCKS_ACQUIRE_TIMEOUT":     "locks.acquire_timeout",
	"MARKET_LOG_LEVEL":                 "log.level",
	"MARKET_METRICS_ENABLED":           "metrics.enabled",
	"MARKET_METRICS_TOKEN":             "metrics.token",
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envToKey[key], value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables")
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
