package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger writes JSON lines to w at or above level. Writes are
// serialized so ranks may share w. A nil writer selects a console writer on
// stderr.
func NewZerologLogger(w io.Writer, level string) (*ZerologLogger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	} else {
		w = zerolog.SyncWriter(w)
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Str("app", "meshcore").Logger()
	return &ZerologLogger{logger: logger}, nil
}

// ParseLevel maps a configuration level name onto zerolog's levels. The empty
// string means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("telemetry: parse log level %q: %w", level, err)
	}
	return lvl, nil
}

// With returns a child logger carrying the given fields on every event.
func (l *ZerologLogger) With(kv ...any) *ZerologLogger {
	return &ZerologLogger{logger: l.logger.With().Fields(fields(kv)).Logger()}
}

func (l *ZerologLogger) Debug(msg string, kv ...any) { emit(l.logger.Debug(), msg, kv) }
func (l *ZerologLogger) Info(msg string, kv ...any)  { emit(l.logger.Info(), msg, kv) }
func (l *ZerologLogger) Warn(msg string, kv ...any)  { emit(l.logger.Warn(), msg, kv) }
func (l *ZerologLogger) Error(msg string, kv ...any) { emit(l.logger.Error(), msg, kv) }

func emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	ev.Fields(fields(kv)).Msg(msg)
}

// fields turns alternating key/value arguments into a map. A trailing key
// without a value is recorded under "extra".
func fields(kv []any) map[string]any {
	out := make(map[string]any, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 >= len(kv) {
			out["extra"] = key
			break
		}
		if err, isErr := kv[i+1].(error); isErr {
			out[key] = err.Error()
			continue
		}
		out[key] = kv[i+1]
	}
	return out
}
