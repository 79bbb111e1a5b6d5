// Package logrus adapts a *logrus.Entry to guardcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/guardcache"
)

var _ guardcache.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New tags every entry with component=guardcache.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "guardcache")}
}

func (l Logger) Debug(msg string, f guardcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f guardcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f guardcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f guardcache.Fields) { l.with(f).Error(msg) }

// with maps an "err" field onto logrus.ErrorKey so formatters render it as
// the entry's error.
func (l Logger) with(f guardcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			out[logrus.ErrorKey] = err
			continue
		}
		out[k] = v
	}
	return l.E.WithFields(out)
}
