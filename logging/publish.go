package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"time"
)

// OmitPublishKey is the field key that excludes log entries from publishing.
// Use OmitPublish for loggers whose entries would otherwise be published in a
// loop.
const OmitPublishKey = "omit_publish"

// DefaultPublishBufferSize is the capacity of the channel for published
// entries.
const DefaultPublishBufferSize = 256

// OmitPublish returns the field that excludes log entries from publishing.
func OmitPublish() zap.Field {
	return zap.Bool(OmitPublishKey, true)
}

// LogEntry is a log entry that is forwarded for publishing.
type LogEntry struct {
	Time       time.Time
	Message    string
	Level      zapcore.Level
	LoggerName string
	Fields     map[string]interface{}
}

// publishCore is a zapcore.Core that forwards entries to a channel. If the
// channel is full, entries are dropped.
type publishCore struct {
	zapcore.LevelEnabler
	fields  []zapcore.Field
	omit    bool
	entries chan<- LogEntry
}

// newPublishCore creates a zapcore.Core that forwards all enabled entries to
// the returned channel.
func newPublishCore(level zapcore.LevelEnabler, size int) (zapcore.Core, <-chan LogEntry) {
	entries := make(chan LogEntry, size)
	return &publishCore{
		LevelEnabler: level,
		fields:       make([]zapcore.Field, 0),
		entries:      entries,
	}, entries
}

// hasOmitField checks whether the fields include the one from OmitPublish.
func hasOmitField(fields []zapcore.Field) bool {
	for _, field := range fields {
		if field.Key == OmitPublishKey {
			return true
		}
	}
	return false
}

func (c *publishCore) With(fields []zapcore.Field) zapcore.Core {
	return &publishCore{
		LevelEnabler: c.LevelEnabler,
		fields:       append(append(make([]zapcore.Field, 0, len(c.fields)+len(fields)), c.fields...), fields...),
		omit:         c.omit || hasOmitField(fields),
		entries:      c.entries,
	}
}

func (c *publishCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.omit || !c.Enabled(entry.Level) {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *publishCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if hasOmitField(fields) {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}
	select {
	case c.entries <- LogEntry{
		Time:       entry.Time,
		Message:    entry.Message,
		Level:      entry.Level,
		LoggerName: entry.LoggerName,
		Fields:     enc.Fields,
	}:
	default:
	}
	return nil
}

func (c *publishCore) Sync() error {
	return nil
}

// NewPublishingLogger creates the main zap.Logger like NewLogger. Entries of at
// least Config.PublishLogLevel are additionally forwarded to the returned
// channel for publishing.
func NewPublishingLogger(config Config) (*zap.Logger, <-chan LogEntry) {
	publish, entries := newPublishCore(config.PublishLogLevel, DefaultPublishBufferSize)
	logger := NewLogger(config).WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, publish)
	}))
	return logger, entries
}
