package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)

	// Error logs at ErrorLevel. A nil err is allowed.
	Error(err error, msg string, keysAndValues ...any)

	// WithName appends a name segment, e.g. "mux" -> "bridge.mux".
	WithName(name string) Logger

	// WithValues returns a child logger that always carries the given pairs.
	WithValues(keysAndValues ...any) Logger

	// Logr exposes the same sink as a logr.Logger for context-carried logging.
	Logr() logr.Logger

	// Sync flushes buffered entries.
	Sync() error
}

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	z *zap.Logger
}

// NewLogger builds a zap-backed Logger from opts. Nil opts means defaults.
func NewLogger(opts *Options) Logger {
	if opts == nil {
		opts = NewOptions()
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:     "message",
		LevelKey:       "level",
		TimeKey:        "timestamp",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeDuration: millisDurationEncoder,
	}
	if opts.Format == FormatConsole && opts.EnableColor {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	outputPaths := opts.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	cfg := zap.Config{
		DisableCaller:    opts.DisableCaller,
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         opts.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	z, err := cfg.Build(zap.AddCallerSkip(opts.CallerSkip), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		panic(fmt.Sprintf("failed to build zap logger: %v", err))
	}
	if opts.Name != "" {
		z = z.Named(opts.Name)
	}

	return &zapLogger{z: z}
}

// NewFromZap wraps an existing zap logger. Tests use it with zaptest/observer.
func NewFromZap(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

func millisDurationEncoder(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendFloat64(float64(d) / float64(time.Millisecond))
}

func (l *zapLogger) Debug(msg string, keysAndValues ...any) {
	l.z.Debug(msg, toFields(keysAndValues...)...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...any) {
	l.z.Info(msg, toFields(keysAndValues...)...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...any) {
	l.z.Warn(msg, toFields(keysAndValues...)...)
}

func (l *zapLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := toFields(keysAndValues...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.z.Error(msg, fields...)
}

func (l *zapLogger) WithName(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

func (l *zapLogger) WithValues(keysAndValues ...any) Logger {
	return &zapLogger{z: l.z.With(toFields(keysAndValues...)...)}
}

func (l *zapLogger) Logr() logr.Logger {
	return zapr.NewLogger(l.z)
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

var (
	mu  sync.RWMutex
	std = NewNopLogger()
)

// Init replaces the process logger. Later calls win, so tests may reinstall one.
func Init(opts *Options) {
	l := NewLogger(opts)
	mu.Lock()
	std = l
	mu.Unlock()
}

// SetLogger installs l as the process logger.
func SetLogger(l Logger) {
	mu.Lock()
	std = l
	mu.Unlock()
}

// Std returns the process logger.
func Std() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}

func Debug(msg string, keysAndValues ...any)            { Std().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)             { Std().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)             { Std().Warn(msg, keysAndValues...) }
func Error(err error, msg string, keysAndValues ...any) { Std().Error(err, msg, keysAndValues...) }
func WithName(name string) Logger                       { return Std().WithName(name) }
func WithValues(keysAndValues ...any) Logger            { return Std().WithValues(keysAndValues...) }
func Logr() logr.Logger                                 { return Std().Logr() }
func Sync() error                                       { return Std().Sync() }
