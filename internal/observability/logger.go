package observability

import (
	"context"
	"log/slog"
	"os"
)

const serviceName = "galileo-chat"

// logField keys context values that FromContext copies onto log records.
type logField int

const (
	fieldRequestID logField = iota
	fieldUserID
	fieldRoomID
)

var fieldNames = [...]string{
	fieldRequestID: "request_id",
	fieldUserID:    "user_id",
	fieldRoomID:    "room_id",
}

var logger *slog.Logger

// InitLogger installs the process logger. format is "json" or "text"; debug
// level also records source positions.
func InitLogger(level, format string) {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger = slog.New(handler).With("service", serviceName)
	slog.SetDefault(logger)
}

// FromContext returns the process logger tagged with whichever of request,
// user and room the context carries.
func FromContext(ctx context.Context) *slog.Logger {
	base := logger
	if base == nil {
		base = slog.Default()
	}

	var attrs []any
	for field, name := range fieldNames {
		if v, ok := ctx.Value(logField(field)).(string); ok && v != "" {
			attrs = append(attrs, slog.String(name, v))
		}
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, fieldRequestID, requestID)
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, fieldUserID, userID)
}

func WithRoomID(ctx context.Context, roomID string) context.Context {
	return context.WithValue(ctx, fieldRoomID, roomID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
