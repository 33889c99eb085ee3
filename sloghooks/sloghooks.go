package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tagcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	BloomSkipEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	bloomSkipCtr atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tagcache.self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) LockWaitExhausted(key string) {
	if h.l == nil {
		return
	}
	h.l.Info("tagcache.lock_wait_exhausted",
		"key", h.redact(key))
}

func (h *Hooks) RefreshFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.refresh_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) LevelSetFailed(level, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.level_set_failed",
		"level", level,
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) AdapterSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tagcache.adapter_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) BloomSkip(key string) {
	if h.l == nil || !sample(h.opts.BloomSkipEvery, &h.bloomSkipCtr) {
		return
	}
	h.l.Debug("tagcache.bloom_skip",
		"key", h.redact(key))
}
