package app

import (
	"github.com/lefinal/minigame-host/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return withDefaults(Config{
		MQTTAddr: "mqtt://localhost:1883",
		Environment: EnvironmentConfig{
			TemplateDir: "/templates",
			InstanceDir: "/instances",
		},
	})
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{name: "ok", modify: func(_ *Config) {}},
		{name: "missing mqtt", modify: func(c *Config) { c.MQTTAddr = "" }, field: "mqtt_addr"},
		{name: "missing template dir", modify: func(c *Config) { c.Environment.TemplateDir = "" }, field: "environment.template_dir"},
		{name: "missing instance dir", modify: func(c *Config) { c.Environment.InstanceDir = "" }, field: "environment.instance_dir"},
		{
			name:   "same dirs",
			modify: func(c *Config) { c.Environment.InstanceDir = c.Environment.TemplateDir },
			field:  "environment.instance_dir",
		},
		{name: "negative tick interval", modify: func(c *Config) { c.TickIntervalMS = -1 }, field: "tick_interval_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(&c)
			err := ValidateConfig(c)
			if tt.field == "" {
				assert.NoError(t, err, "should be valid")
				return
			}
			require.Error(t, err, "should be invalid")
			assert.True(t, errors.HasKind(err, errors.KindInvalidConfig), "should return invalid config")
			e, _ := errors.Cast(err)
			assert.Equal(t, tt.field, e.Details["field"], "should name field")
		})
	}
}

// loadConfigSuite tests LoadConfig.
type loadConfigSuite struct {
	suite.Suite
	filename string
}

func (suite *loadConfigSuite) SetupTest() {
	suite.filename = filepath.Join(suite.T().TempDir(), "config.json")
	raw := `{
  "log": {"stdout_log_level": "info", "max_size": 10},
  "mqtt_addr": "mqtt://broker:1883",
  "environment": {"template_dir": "/srv/templates", "instance_dir": "/srv/instances", "copy_warn_seconds": 5},
  "games": {"waiting_seconds": 45, "quickstart_seconds": 3},
  "tick_interval_ms": 50
}`
	suite.Require().NoError(os.WriteFile(suite.filename, []byte(raw), 0o644))
}

func (suite *loadConfigSuite) TestFromFile() {
	config, err := LoadConfig(suite.filename)
	suite.Require().NoError(err, "should not fail")
	suite.Equal(zapcore.InfoLevel, config.Log.StdoutLogLevel, "should set log level")
	suite.Equal(10, config.Log.MaxSize, "should set max size")
	suite.Equal("mqtt://broker:1883", config.MQTTAddr, "should set mqtt addr")
	suite.Equal("/srv/templates", config.Environment.TemplateDir, "should set template dir")
	suite.Equal(5*time.Second, config.Environment.provisionerConfig().CopyWarnThreshold, "should convert threshold")
	suite.Equal(45, config.Games.WaitingSeconds, "should set waiting seconds")
	suite.Equal(3, config.Games.QuickstartSeconds, "should set quickstart seconds")
	suite.Equal(50, config.TickIntervalMS, "should set tick interval")
	// Defaults.
	suite.Equal("/srv/templates", config.TemplatesDir, "should default templates dir")
	suite.Equal(defaultMaxDBConnections, config.MaxDBConnections, "should default max db connections")
	suite.Equal(defaultStatusIntervalSeconds, config.StatusIntervalSeconds, "should default status interval")
	suite.Equal(defaultShutdownTimeoutSeconds, config.ShutdownTimeoutSeconds, "should default shutdown timeout")
	suite.NoError(ValidateConfig(config), "should be valid")
}

func (suite *loadConfigSuite) TestEnvOverrides() {
	suite.T().Setenv("MINIGAME_MQTT_ADDR", "mqtt://other:1883")
	suite.T().Setenv("MINIGAME_GAMES_WAITING_SECONDS", "20")
	suite.T().Setenv("MINIGAME_ENVIRONMENT_INSTANCE_DIR", "/tmp/instances")
	suite.T().Setenv("MINIGAME_LOG_STDOUT_LOG_LEVEL", "debug")
	suite.T().Setenv("MINIGAME_DB_CONN", "postgres://localhost/minigame")
	config, err := LoadConfig(suite.filename)
	suite.Require().NoError(err, "should not fail")
	suite.Equal("mqtt://other:1883", config.MQTTAddr, "should override mqtt addr")
	suite.Equal(20, config.Games.WaitingSeconds, "should override waiting seconds")
	suite.Equal(3, config.Games.QuickstartSeconds, "should keep file value")
	suite.Equal("/tmp/instances", config.Environment.InstanceDir, "should override instance dir")
	suite.Equal(zapcore.DebugLevel, config.Log.StdoutLogLevel, "should override log level")
	suite.Equal("postgres://localhost/minigame", config.DBConn, "should set db conn")
}

func (suite *loadConfigSuite) TestOnlyEnv() {
	suite.T().Setenv("MINIGAME_MQTT_ADDR", "mqtt://other:1883")
	config, err := LoadConfig("")
	suite.Require().NoError(err, "should not fail")
	suite.Equal("mqtt://other:1883", config.MQTTAddr, "should set mqtt addr")
}

func (suite *loadConfigSuite) TestMissingFile() {
	_, err := LoadConfig(filepath.Join(suite.T().TempDir(), "missing.json"))
	suite.True(errors.HasKind(err, errors.KindInvalidConfig), "should fail with invalid config")
}

func (suite *loadConfigSuite) TestInvalidJSON() {
	suite.Require().NoError(os.WriteFile(suite.filename, []byte("{"), 0o644))
	_, err := LoadConfig(suite.filename)
	suite.True(errors.HasKind(err, errors.KindDecodeJSON), "should fail with decode error")
}

func TestLoadConfig(t *testing.T) {
	suite.Run(t, new(loadConfigSuite))
}
