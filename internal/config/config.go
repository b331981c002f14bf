package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"smart_bottle"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverFirebase = "firebase"
	DriverMQTT     = "mqtt"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

const envPrefix = "BOTTLE"

type Config struct {
	Port      string          `mapstructure:"port"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Slider    SliderConfig    `mapstructure:"slider"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type FirebaseConfig struct {
	URL   string        `mapstructure:"url"`
	Auth  string        `mapstructure:"auth"` // database secret or ID token, sent as ?auth=
	Retry time.Duration `mapstructure:"retry"`
}

type MQTTConfig struct {
	Broker   string        `mapstructure:"broker"`
	ClientID string        `mapstructure:"client_id"`
	QoS      byte          `mapstructure:"qos"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SQLiteConfig struct {
	Path string        `mapstructure:"path"`
	Poll time.Duration `mapstructure:"poll"`
}

type PathsConfig struct {
	Telemetry string `mapstructure:"telemetry"`
	Control   string `mapstructure:"control"`
}

// SliderConfig bounds the setpoint widget.
type SliderConfig struct {
	Min     float64 `mapstructure:"min"`
	Max     float64 `mapstructure:"max"`
	Initial float64 `mapstructure:"initial"`
}

type SimulatorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Tick        time.Duration `mapstructure:"tick"`
	ControlPoll time.Duration `mapstructure:"control_poll"`
}

var (
	errUnknownDriver = errors.New("unknown store driver: must be firebase, mqtt, sqlite or memory")
	errSliderRange   = errors.New("slider.min must be < slider.max")
	errDuration      = errors.New("invalid duration")
)

// SetDefaults registers a default for every key so env overrides work
// even when the key is missing from the config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.firebase.url", "")
	v.SetDefault("store.firebase.auth", "")
	v.SetDefault("store.firebase.retry", 3*time.Second)
	v.SetDefault("store.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("store.mqtt.client_id", "")
	v.SetDefault("store.mqtt.qos", 1)
	v.SetDefault("store.mqtt.timeout", 10*time.Second)
	v.SetDefault("store.sqlite.path", "bottle.db")
	v.SetDefault("store.sqlite.poll", time.Second)

	v.SetDefault("paths.telemetry", smart_bottle.TelemetryPath)
	v.SetDefault("paths.control", smart_bottle.ControlPath)

	v.SetDefault("slider.min", 0.0)
	v.SetDefault("slider.max", 100.0)
	v.SetDefault("slider.initial", 50.0)

	v.SetDefault("simulator.enabled", false)
	v.SetDefault("simulator.tick", 800*time.Millisecond)
	v.SetDefault("simulator.control_poll", 5*time.Second)
}

// Load reads configs/config.yml (if present) plus BOTTLE_* env overrides.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if len(paths) == 0 {
		paths = []string{"configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p) // configs/config.yml
	}
	v.SetConfigName("config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that defaults can't express.
func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case DriverFirebase, DriverMQTT, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("%w (got %q)", errUnknownDriver, c.Store.Driver)
	}
	if c.Slider.Min >= c.Slider.Max {
		return errSliderRange
	}
	if c.Paths.Telemetry == "" || c.Paths.Control == "" {
		return errors.New("paths.telemetry and paths.control must be set")
	}
	if c.Simulator.Enabled {
		if c.Simulator.Tick <= 0 {
			return fmt.Errorf("%w: simulator.tick must be > 0 (got %s)", errDuration, c.Simulator.Tick)
		}
		if c.Simulator.ControlPoll <= 0 {
			return fmt.Errorf("%w: simulator.control_poll must be > 0 (got %s)", errDuration, c.Simulator.ControlPoll)
		}
	}
	for key, d := range map[string]time.Duration{
		"store.firebase.retry": c.Store.Firebase.Retry,
		"store.mqtt.timeout":   c.Store.MQTT.Timeout,
		"store.sqlite.poll":    c.Store.SQLite.Poll,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative (got %s)", errDuration, key, d)
		}
	}
	return nil
}
