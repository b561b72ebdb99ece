package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/stagecraft-systems/motion-core/internal/infrastructure/config"
)

// Logger is a thin wrapper over slog.Logger so the rest of the codebase
// depends on one type we control. Every entry carries service and version
// attributes.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the yaml logging section: level, format
// (json or text), and destination (stdout or stderr).
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, destination(cfg.Output))
}

// NewWithWriter is New with an explicit output writer. Tests use it to
// capture entries in a buffer.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "motioncore"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// Default returns a JSON stdout logger at info level, for the startup
// window before the config file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// With returns a child logger that attaches the given key-value pairs to
// every entry:
//
//	poll := log.With("device", "stage-left")
//	poll.Debug("cycle complete")  // includes device=stage-left
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps config strings onto slog levels. Unknown values fall
// back to info rather than failing startup.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
