// Package logger provides opinionated logging capabilities for the keepsake system
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/term"
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	writers []io.Writer
}

// New creates a *slog.Logger. By default it writes slog text records at Info
// level to os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	switch len(c.writers) {
	case 0:
		w = os.Stdout
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	switch {
	case c.pretty:
		h := charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(c.level),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			ReportCaller:    c.source,
		})
		return slog.New(h)
	case c.json:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		}))
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// IsTerminal reports whether f is attached to a terminal. Commands use it to
// pick pretty output for interactive sessions.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
