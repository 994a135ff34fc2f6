// Package config loads service settings from an optional .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration shared by the api, engine and solve
// binaries.
// Tags used:
// - mapstructure: the environment key
// - default: value used when the key is missing
// - required: if "true", Load fails when the value is zero
type AppConfig struct {
	// Environment is development or production; it selects the log encoder.
	Environment string `mapstructure:"APP_ENV" default:"development"`
	LogLevel    string `mapstructure:"LOG_LEVEL" default:"info"`
	ServerPort  int    `mapstructure:"SERVER_PORT" default:"8080"`
	// ServiceName is the source of every published event.
	ServiceName string `mapstructure:"SERVICE_NAME" default:"routeopt" required:"true"`

	// DatabaseURL selects the Postgres store; empty keeps results in memory.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MigrationsDir is applied at startup when the Postgres store is used.
	MigrationsDir string `mapstructure:"DB_MIGRATIONS_DIR" default:"db/migrations"`
	// RedisURL enables the request queue, event channels and distance cache.
	RedisURL string `mapstructure:"REDIS_URL"`

	Queue   QueueConfig   `mapstructure:",squash"`
	Routing RoutingConfig `mapstructure:",squash"`
	Webhook WebhookConfig `mapstructure:",squash"`

	// SearchSeed fixes the engine's random source; 0 seeds from the clock.
	SearchSeed int64 `mapstructure:"SEARCH_SEED"`
	// SearchMaxIterations caps every solve; 0 leaves it to the time budgets.
	SearchMaxIterations int `mapstructure:"SEARCH_MAX_ITERATIONS"`
}

// QueueConfig drives the worker.
type QueueConfig struct {
	Name string `mapstructure:"QUEUE_NAME" default:"routeopt:requests" required:"true"`
	// Wait is how long one receive blocks.
	Wait time.Duration `mapstructure:"QUEUE_WAIT" default:"5s"`
	// LeaseTimeout is the age after which unacknowledged messages are
	// returned to the queue.
	LeaseTimeout time.Duration `mapstructure:"QUEUE_LEASE_TIMEOUT" default:"15m"`
	// MaxDeliveries is how many leases a message gets before it is moved to
	// the dead list.
	MaxDeliveries int `mapstructure:"QUEUE_MAX_DELIVERIES" default:"3"`
	// Once makes the engine process a single message and exit.
	Once bool `mapstructure:"WORKER_ONCE"`
}

// RoutingConfig configures the road-distance provider. An empty BaseURL
// disables ROAD_DISTANCE.
type RoutingConfig struct {
	BaseURL     string        `mapstructure:"ROUTING_BASE_URL"`
	APIKey      string        `mapstructure:"ROUTING_API_KEY"`
	Profile     string        `mapstructure:"ROUTING_PROFILE" default:"driving-car"`
	RPS         float64       `mapstructure:"ROUTING_RPS" default:"5"`
	Burst       int           `mapstructure:"ROUTING_BURST" default:"5"`
	Timeout     time.Duration `mapstructure:"ROUTING_TIMEOUT" default:"30s"`
	BlockSize   int           `mapstructure:"ROUTING_BLOCK_SIZE" default:"10"`
	Concurrency int           `mapstructure:"ROUTING_CONCURRENCY" default:"4"`
	// DistanceFiller recomputes unroutable matrix cells pair by pair.
	DistanceFiller bool          `mapstructure:"ROUTING_DISTANCE_FILLER" default:"true"`
	CacheTTL       time.Duration `mapstructure:"DISTANCE_CACHE_TTL" default:"24h"`
}

// WebhookConfig enables event delivery over HTTP when URL is set.
type WebhookConfig struct {
	URL         string `mapstructure:"WEBHOOK_URL"`
	Secret      string `mapstructure:"WEBHOOK_SECRET"`
	MaxAttempts int    `mapstructure:"WEBHOOK_MAX_ATTEMPTS" default:"5"`
}

// Addr is the listen address of the HTTP API.
func (c *AppConfig) Addr() string { return fmt.Sprintf(":%d", c.ServerPort) }

// Production reports whether the service runs in production mode.
func (c *AppConfig) Production() bool { return strings.EqualFold(c.Environment, "production") }

// Load loads configuration from a .env file in path and environment
// variables. Environment variables win.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *AppConfig) validate() error {
	if c.Routing.BlockSize < 1 || c.Routing.BlockSize > 10 {
		return fmt.Errorf("ROUTING_BLOCK_SIZE must be between 1 and 10, got %d", c.Routing.BlockSize)
	}
	if c.Routing.RPS <= 0 {
		return fmt.Errorf("ROUTING_RPS must be positive, got %v", c.Routing.RPS)
	}
	if c.Queue.MaxDeliveries < 1 {
		return fmt.Errorf("QUEUE_MAX_DELIVERIES must be at least 1, got %d", c.Queue.MaxDeliveries)
	}
	if c.Webhook.URL != "" && c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be at least 1, got %d", c.Webhook.MaxAttempts)
	}
	return nil
}

// processTags binds every tagged field to its environment key and sets its
// default.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			if err := v.BindEnv(key); err != nil {
				return fmt.Errorf("bind %s: %w", key, err)
			}
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("required") == "true" && val.Field(i).IsZero() {
			return fmt.Errorf("missing required configuration: %s", field.Tag.Get("mapstructure"))
		}
	}
	return nil
}
