// Package logging provides the structured zerolog logger used for diagnostics.
// User-facing CLI output goes through internal/output instead.
//
//	log := logging.FromContext(ctx)
//	log.Warn().Str("project", p.Name).Err(err).Msg("repository lookup failed")
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var defaultLogger = New(os.Stderr, "info")

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return &defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l zerolog.Logger) {
	defaultLogger = l
}

// New builds a logger writing to w at the named level. Terminals get the
// human-readable console writer; everything else gets JSON lines.
func New(w io.Writer, level string) zerolog.Logger {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) && os.Getenv("LOG_FORMAT") != "json" {
		w = zerolog.ConsoleWriter{
			Out:        f,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type contextKey struct{}

// WithLogger attaches a logger to ctx.
func WithLogger(ctx context.Context, l *zerolog.Logger) context.Context {
	if l == nil {
		l = Default()
	}
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger attached to ctx, or the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*zerolog.Logger); ok && l != nil {
			return l
		}
	}
	return Default()
}
