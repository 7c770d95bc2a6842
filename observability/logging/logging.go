package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options control where and how verbosely the service logs.
type Options struct {
	Service string
	Env     string
	Level   string
	// File, when set, receives a rotated copy of every log line.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps a configured level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func replaceAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		return slog.Attr{Key: "timestamp", Value: attr.Value}
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		return slog.Attr{Key: "message", Value: attr.Value}
	}
	return attr
}

// Writer returns the sink described by opts: stdout, optionally teed into a
// size-rotated file.
func Writer(opts Options) io.Writer {
	path := strings.TrimSpace(opts.File)
	if path == "" {
		return os.Stdout
	}
	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotated)
}

// New builds a JSON logger writing to w. Every line carries the service name
// and environment when provided.
func New(w io.Writer, opts Options) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: replaceAttr,
	})
	return slog.New(handler.WithAttrs(baseAttrs(opts)))
}

func baseAttrs(opts Options) []slog.Attr {
	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(opts.Service))}
	if env := strings.TrimSpace(opts.Env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	return attrs
}

// Setup configures the default slog logger and the standard library logger to
// emit structured JSON and returns the logger for the service.
func Setup(opts Options) *slog.Logger {
	logger := New(Writer(opts), opts)
	slog.SetDefault(logger)

	// Bridge the standard library logger so log.Printf callers share the sink.
	stdBridge := slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger
}
