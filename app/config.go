package app

import (
	"encoding/json"
	"github.com/caarlos0/env/v11"
	"github.com/lefinal/minigame-host/environment"
	"github.com/lefinal/minigame-host/errors"
	"github.com/lefinal/minigame-host/games"
	"github.com/lefinal/minigame-host/logging"
	"os"
	"time"
)

// envPrefix is the prefix for all environment variables that override the
// config file.
const envPrefix = "MINIGAME_"

// Defaults for Config.
const (
	defaultMaxDBConnections       = 16
	defaultStatusIntervalSeconds  = 10
	defaultShutdownTimeoutSeconds = 30
)

// Config is the configuration needed in order to boot an App.
type Config struct {
	// Log is the logging configuration.
	Log logging.Config `json:"log" envPrefix:"LOG_"`
	// DBConn is the optional connection string for the PostgreSQL database for
	// statistics. If not set, statistics are only logged.
	DBConn string `json:"db_conn" env:"DB_CONN"`
	// MaxDBConnections is the maximum number of database connections.
	MaxDBConnections int `json:"max_db_connections" env:"MAX_DB_CONNECTIONS"`
	// MQTTAddr is the address of the MQTT broker for commands and messages.
	MQTTAddr string `json:"mqtt_addr" env:"MQTT_ADDR"`
	// MQTTClientID is the optional MQTT client id.
	MQTTClientID string `json:"mqtt_client_id" env:"MQTT_CLIENT_ID"`
	// Environment configures provisioning of match environments.
	Environment EnvironmentConfig `json:"environment" envPrefix:"ENVIRONMENT_"`
	// Games configures countdowns and statistics timeouts.
	Games games.Config `json:"games" envPrefix:"GAMES_"`
	// TemplatesDir holds the template YAML files. If not set, the template
	// directory of the environment is used.
	TemplatesDir string `json:"templates_dir" env:"TEMPLATES_DIR"`
	// TickIntervalMS is the interval between two loop ticks in milliseconds.
	TickIntervalMS int `json:"tick_interval_ms" env:"TICK_INTERVAL_MS"`
	// OutboxSize is the capacity of the queue for outgoing messages.
	OutboxSize int `json:"outbox_size" env:"OUTBOX_SIZE"`
	// StatusIntervalSeconds is the interval for reporting match status.
	StatusIntervalSeconds int `json:"status_interval_seconds" env:"STATUS_INTERVAL_SECONDS"`
	// ShutdownTimeoutSeconds is the timeout for stopping all matches on
	// shutdown.
	ShutdownTimeoutSeconds int `json:"shutdown_timeout_seconds" env:"SHUTDOWN_TIMEOUT_SECONDS"`
}

// EnvironmentConfig is the configuration for environment.Provisioner.
type EnvironmentConfig struct {
	// TemplateDir holds one subdirectory per template.
	TemplateDir string `json:"template_dir" env:"TEMPLATE_DIR"`
	// InstanceDir is where instance directories are created.
	InstanceDir string `json:"instance_dir" env:"INSTANCE_DIR"`
	// InstancePrefix is the optional prefix for instance directories.
	InstancePrefix string `json:"instance_prefix" env:"INSTANCE_PREFIX"`
	// CopyWarnSeconds is the optional threshold for logging slow copies.
	CopyWarnSeconds int `json:"copy_warn_seconds" env:"COPY_WARN_SECONDS"`
	// LoadWarnSeconds is the optional threshold for logging slow loads.
	LoadWarnSeconds int `json:"load_warn_seconds" env:"LOAD_WARN_SECONDS"`
}

// provisionerConfig converts to environment.Config.
func (c EnvironmentConfig) provisionerConfig() environment.Config {
	return environment.Config{
		TemplateDir:       c.TemplateDir,
		InstanceDir:       c.InstanceDir,
		InstancePrefix:    c.InstancePrefix,
		CopyWarnThreshold: time.Duration(c.CopyWarnSeconds) * time.Second,
		LoadWarnThreshold: time.Duration(c.LoadWarnSeconds) * time.Second,
	}
}

// LoadConfig reads the Config from the given JSON file and applies overrides
// from environment variables prefixed with MINIGAME_. If the filename is empty,
// only environment variables are used. Defaults are applied afterwards.
func LoadConfig(filename string) (Config, error) {
	var config Config
	if filename != "" {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return Config{}, errors.Error{
				Code:    errors.ErrFatal,
				Kind:    errors.KindInvalidConfig,
				Err:     err,
				Message: "read config file",
				Details: errors.Details{"filename": filename},
			}
		}
		err = json.Unmarshal(raw, &config)
		if err != nil {
			return Config{}, errors.Error{
				Code:    errors.ErrFatal,
				Kind:    errors.KindDecodeJSON,
				Err:     err,
				Message: "decode config file",
				Details: errors.Details{"filename": filename},
			}
		}
	}
	err := env.ParseWithOptions(&config, env.Options{Prefix: envPrefix})
	if err != nil {
		return Config{}, errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindInvalidConfig,
			Err:     err,
			Message: "parse environment variables",
		}
	}
	return withDefaults(config), nil
}

// withDefaults sets defaults for all unset optional fields.
func withDefaults(config Config) Config {
	if config.MaxDBConnections <= 0 {
		config.MaxDBConnections = defaultMaxDBConnections
	}
	if config.TemplatesDir == "" {
		config.TemplatesDir = config.Environment.TemplateDir
	}
	if config.StatusIntervalSeconds <= 0 {
		config.StatusIntervalSeconds = defaultStatusIntervalSeconds
	}
	if config.ShutdownTimeoutSeconds <= 0 {
		config.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	return config
}

// ValidateConfig assures that all required fields are set.
func ValidateConfig(config Config) error {
	invalid := func(field string, reason string) error {
		return errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindInvalidConfig,
			Message: reason,
			Details: errors.Details{"field": field},
		}
	}
	if config.MQTTAddr == "" {
		return invalid("mqtt_addr", "missing mqtt address")
	}
	if config.Environment.TemplateDir == "" {
		return invalid("environment.template_dir", "missing template dir")
	}
	if config.Environment.InstanceDir == "" {
		return invalid("environment.instance_dir", "missing instance dir")
	}
	if config.Environment.TemplateDir == config.Environment.InstanceDir {
		return invalid("environment.instance_dir", "instance dir must differ from template dir")
	}
	if config.TickIntervalMS < 0 {
		return invalid("tick_interval_ms", "tick interval must not be negative")
	}
	return nil
}
