//go:build go1.21

// Package slog adapts a *slog.Logger to guardcache.Logger.
package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/guardcache"
)

var _ guardcache.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New adds component=guardcache to every record.
func New(l *stdslog.Logger) Logger {
	return Logger{L: l.With("component", "guardcache")}
}

func (s Logger) Debug(msg string, f guardcache.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f guardcache.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f guardcache.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f guardcache.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f guardcache.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, attrs(f)...)
}

func attrs(f guardcache.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
