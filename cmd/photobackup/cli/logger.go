// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger on stderr. When stderr
// is a terminal it uses slog.TextHandler for human-readable output;
// otherwise slog.JSONHandler, matching the server's log format.
func NewCommandLogger(level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// LogParams is an embeddable struct adding --verbose to a command.
type LogParams struct {
	Verbose bool `json:"-" flag:"verbose,v" desc:"log each file operation"`
}

// Logger returns a command logger at Info when --verbose is set and
// Warn otherwise.
func (p *LogParams) Logger() *slog.Logger {
	if p.Verbose {
		return NewCommandLogger(slog.LevelInfo)
	}
	return NewCommandLogger(slog.LevelWarn)
}
