package sloghooks

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/guardcache"
	"github.com/unkn0wn-root/guardcache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	NegativeHitEvery uint64
	SelfHealEvery    uint64
	ContendedEvery   uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	negativeCtr  atomic.Uint64
	selfHealCtr  atomic.Uint64
	contendedCtr atomic.Uint64
}

var _ guardcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return util.Redact(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) NegativeHit(key string) {
	if h.l == nil || !sample(h.opts.NegativeHitEvery, &h.negativeCtr) {
		return
	}
	h.l.Debug("guardcache.negative_hit", "key", h.redact(key))
}

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("guardcache.self_heal",
		"key", h.redact(key),
		"reason", reason)
}

func (h *Hooks) LockContended(key string, attempt int) {
	if h.l == nil || !sample(h.opts.ContendedEvery, &h.contendedCtr) {
		return
	}
	h.l.Debug("guardcache.lock_contended",
		"key", h.redact(key),
		"attempt", attempt)
}

func (h *Hooks) LockWaitExceeded(key string, attempts int, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Warn("guardcache.lock_wait_exceeded",
		"key", h.redact(key),
		"attempts", attempts,
		"waited", waited)
}

func (h *Hooks) RebuildScheduled(key string) {
	if h.l == nil {
		return
	}
	h.l.Debug("guardcache.rebuild_scheduled", "key", h.redact(key))
}

func (h *Hooks) RebuildDropped(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("guardcache.rebuild_dropped", "key", h.redact(key))
}

func (h *Hooks) RebuildFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("guardcache.rebuild_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) UnlockFailed(lockKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("guardcache.unlock_failed",
		"key", h.redact(lockKey),
		"err", err)
}
