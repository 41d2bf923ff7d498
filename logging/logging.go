package logging

import (
	"github.com/gobuffalo/nulls"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"io"
	"os"
)

// Config is the configuration for creating a logger via NewLogger.
type Config struct {
	// StdoutLogLevel is the minimum level for logging to stdout.
	StdoutLogLevel zapcore.Level `json:"stdout_log_level" env:"STDOUT_LOG_LEVEL"`
	// HighPriorityOutput is an optional file path for warnings and errors.
	HighPriorityOutput nulls.String `json:"high_priority_output"`
	// DebugOutput is an optional file path for all log entries including debug
	// ones.
	DebugOutput nulls.String `json:"debug_output"`
	// MaxSize is the maximum size in megabytes of a log file before it gets
	// rotated.
	MaxSize int `json:"max_size" env:"LOG_MAX_SIZE"`
	// KeepDays is the number of days to keep rotated log files.
	KeepDays int `json:"keep_days" env:"LOG_KEEP_DAYS"`
	// PublishLogLevel is the minimum level for log entries that are published.
	PublishLogLevel zapcore.Level `json:"publish_log_level" env:"PUBLISH_LOG_LEVEL"`
	// SystemDebugStats describes whether system stats like memory usage and
	// the current stack are logged periodically.
	SystemDebugStats bool `json:"system_debug_stats" env:"SYSTEM_DEBUG_STATS"`
}

// NewLogger creates the main zap.Logger for the given Config. Entries are
// written to stdout with colored levels, errors additionally to stderr and, if
// configured, to rotated log files.
func NewLogger(config Config) *zap.Logger {
	return newLogger(config, os.Stdout, os.Stderr)
}

func newLogger(config Config, stdout io.Writer, stderr io.Writer) *zap.Logger {
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(zapcore.AddSync(stdout)),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= config.StdoutLogLevel && level < zap.ErrorLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encConfig),
		zapcore.Lock(zapcore.AddSync(stderr)),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger.
	if config.HighPriorityOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.HighPriorityOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if config.DebugOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.DebugOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	// Combine.
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}
