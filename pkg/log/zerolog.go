package log

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	skerrors "github.com/YuminosukeSato/skflow/pkg/errors"
)

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	zl zerolog.Logger
}

// NewZerologLogger returns a JSON logger writing to w at the given minimum level.
func NewZerologLogger(w io.Writer, level Level) *ZerologLogger {
	zl := zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
	return &ZerologLogger{zl: zl}
}

// SetupZerolog installs a zerolog logger as the process wide logger and
// routes library warnings (errors.Warn) through it.
func SetupZerolog(w io.Writer, loglevel string) (*ZerologLogger, error) {
	level, err := ParseLevel(loglevel)
	if err != nil {
		return nil, err
	}
	logger := NewZerologLogger(w, level)
	SetLogger(logger)
	skerrors.SetZerologWarnFunc(logger.warning)
	return logger, nil
}

func (l *ZerologLogger) Debug(msg string, fields ...any) { l.write(l.zl.Debug(), msg, fields) }
func (l *ZerologLogger) Info(msg string, fields ...any)  { l.write(l.zl.Info(), msg, fields) }
func (l *ZerologLogger) Warn(msg string, fields ...any)  { l.write(l.zl.Warn(), msg, fields) }
func (l *ZerologLogger) Error(msg string, fields ...any) { l.write(l.zl.Error(), msg, fields) }

// With implements Logger.With.
func (l *ZerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			ctx = ctx.AnErr(key, v)
		case zerolog.LogObjectMarshaler:
			ctx = ctx.Object(key, v)
		default:
			ctx = ctx.Interface(key, v)
		}
	}
	return &ZerologLogger{zl: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (l *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return toZerologLevel(level) >= l.zl.GetLevel()
}

func (l *ZerologLogger) write(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	if len(fields)%2 == 1 {
		if err, ok := fields[0].(error); ok {
			addError(ev, ErrAttrKey, err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			addError(ev, key, v)
		case zerolog.LogObjectMarshaler:
			ev.Object(key, v)
		case string:
			ev.Str(key, v)
		case int:
			ev.Int(key, v)
		case float64:
			ev.Float64(key, v)
		case bool:
			ev.Bool(key, v)
		default:
			ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

// warning is installed as the errors package warn function.
func (l *ZerologLogger) warning(w error) {
	ev := l.zl.Warn()
	if ev == nil {
		return
	}
	if m, ok := w.(zerolog.LogObjectMarshaler); ok {
		ev.EmbedObject(m)
	}
	ev.Msg(w.Error())
}

func addError(ev *zerolog.Event, key string, err error) {
	ev.AnErr(key, err)
	var m zerolog.LogObjectMarshaler
	if skerrors.As(err, &m) {
		ev.Object(key+"_detail", m)
	}
	if st := extractStacktrace(err); st != "" {
		ev.Str(StacktraceAttrKey, st)
	}
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
