// Package logger provides structured, level-gated logging for the screening
// engine.
//
// Each entry is written as a single line with fixed-width columns:
//
//	2006-01-02 15:04:05.000 | MODULE       | ACTION               | LEVEL | message
//
// Levels (lowest to highest): debug, info, warn, error.
// Entries below the configured minimum level are silently dropped.
//
// The column layout is fixed by convention across this codebase; the sink is
// a zap core so call sites can attach structured fields (stage, request id,
// tier) via With without changing the on-disk line shape.
//
// Usage:
//
//	log := logger.New("ORCHESTRATOR", cfg.LogLevel)
//	log.Info("stage_complete", "validation finished in 2ms")
//	log.Errorf("stage_timeout", "stage %s exceeded %dms", stage, timeoutMs)
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Level represents a log severity.
type Level int

// Log severity constants, ordered lowest to highest.
const (
	LevelDebug Level = iota // fine-grained diagnostic output
	LevelInfo               // normal operational messages
	LevelWarn               // unexpected but recoverable conditions
	LevelError              // failures requiring attention
)

// Logger writes structured log lines for a single module.
type Logger struct {
	module string
	atom   zap.AtomicLevel
	zl     *zap.Logger
	fields []zap.Field
}

// New creates a Logger for the given module, gated at the given level
// string, writing to stderr. Unrecognized level strings default to "info".
func New(module, levelStr string) *Logger {
	return NewWithWriter(module, levelStr, os.Stderr)
}

// NewWithWriter creates a Logger writing to an arbitrary sink, primarily for
// tests.
func NewWithWriter(module, levelStr string, w io.Writer) *Logger {
	atom := zap.NewAtomicLevelAt(toZapLevel(parseLevel(levelStr)))
	core := zapcore.NewCore(newLineEncoder(zapcore.EncoderConfig{}), zapcore.AddSync(w), atom)
	upper := strings.ToUpper(module)
	return &Logger{
		module: upper,
		atom:   atom,
		zl:     zap.New(core).Named(upper),
	}
}

// With returns a child Logger that attaches the given structured fields
// (e.g. request id, tier) to every subsequent entry.
func (l *Logger) With(keyValues ...any) *Logger {
	fields := make([]zap.Field, 0, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, _ := keyValues[i].(string)
		fields = append(fields, zap.Any(key, keyValues[i+1]))
	}
	return &Logger{
		module: l.module,
		atom:   l.atom,
		zl:     l.zl,
		fields: append(append([]zap.Field{}, l.fields...), fields...),
	}
}

// SetLevel changes the minimum log level at runtime.
func (l *Logger) SetLevel(levelStr string) {
	l.atom.SetLevel(toZapLevel(parseLevel(levelStr)))
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(action, msg string) { l.write(zapcore.DebugLevel, action, msg) }

// Info logs at INFO level.
func (l *Logger) Info(action, msg string) { l.write(zapcore.InfoLevel, action, msg) }

// Warn logs at WARN level.
func (l *Logger) Warn(action, msg string) { l.write(zapcore.WarnLevel, action, msg) }

// Error logs at ERROR level.
func (l *Logger) Error(action, msg string) { l.write(zapcore.ErrorLevel, action, msg) }

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(action, format string, args ...any) {
	l.Debug(action, fmt.Sprintf(format, args...))
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(action, format string, args ...any) {
	l.Info(action, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted message at WARN level.
func (l *Logger) Warnf(action, format string, args ...any) {
	l.Warn(action, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(action, format string, args ...any) {
	l.Error(action, fmt.Sprintf(format, args...))
}

// Fatal logs at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatal(action, msg string) {
	l.Error(action, msg)
	os.Exit(1)
}

// Fatalf logs a formatted message at ERROR level and then calls os.Exit(1).
func (l *Logger) Fatalf(action, format string, args ...any) {
	l.Fatal(action, fmt.Sprintf(format, args...))
}

func (l *Logger) write(level zapcore.Level, action, msg string) {
	fields := append([]zap.Field{zap.String("action", action)}, l.fields...)
	if ce := l.zl.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// parseLevel converts a string to a Level, defaulting to LevelInfo.
func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func levelLabel(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.WarnLevel:
		return "WARN "
	case zapcore.ErrorLevel, zapcore.FatalLevel:
		return "ERROR"
	default:
		return "INFO "
	}
}

// lineEncoder renders entries in the fixed-column format documented at the
// top of this file. It embeds a JSON encoder purely to inherit a correct
// ObjectEncoder implementation for fields attached via With(); EncodeEntry is
// fully overridden.
type lineEncoder struct {
	zapcore.Encoder
}

func newLineEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	cfg.MessageKey = "msg"
	return &lineEncoder{Encoder: zapcore.NewJSONEncoder(cfg)}
}

func (e *lineEncoder) Clone() zapcore.Encoder {
	return &lineEncoder{Encoder: e.Encoder.Clone()}
}

func (e *lineEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	action := "-"
	rest := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if f.Key == "action" && action == "-" {
			action = f.String
			continue
		}
		rest = append(rest, f)
	}

	buf := buffer.NewPool().Get()
	ts := ent.Time.Format("2006-01-02 15:04:05.000")
	buf.AppendString(ts)
	buf.AppendString(" | ")
	buf.AppendString(padRight(ent.LoggerName, 12))
	buf.AppendString(" | ")
	buf.AppendString(padRight(action, 22))
	buf.AppendString(" | ")
	buf.AppendString(levelLabel(ent.Level))
	buf.AppendString(" | ")
	buf.AppendString(ent.Message)

	if len(rest) > 0 {
		inner, err := e.Encoder.Clone().EncodeEntry(zapcore.Entry{}, rest)
		if err == nil {
			buf.AppendString(" ")
			buf.Write(inner.Bytes())
			inner.Free()
		}
	}
	buf.AppendString("\n")
	return buf, nil
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
