// Package zap adapts a *zap.Logger to guardcache.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/guardcache"
)

var _ guardcache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "guardcache" and skips the adapter frame so caller
// annotations point at the cache code.
func New(l *zap.Logger) Logger {
	return Logger{L: l.Named("guardcache").WithOptions(zap.AddCallerSkip(1))}
}

func (z Logger) Debug(msg string, f guardcache.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Logger) Info(msg string, f guardcache.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Logger) Warn(msg string, f guardcache.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Logger) Error(msg string, f guardcache.Fields) { z.L.Error(msg, zf(f)...) }

// zf emits fields in key order; errors go through zap.NamedError.
func zf(f guardcache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
