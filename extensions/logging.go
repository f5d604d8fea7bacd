// Package extensions collects optional Hook implementations that are
// not part of the core runtime but are useful enough to ship alongside
// it.
package extensions

import (
	"log/slog"

	topo "github.com/calltopo/topo"
)

// LoggingHook logs scope entry/exit and cache activity via slog.
type LoggingHook struct {
	topo.BaseHook
	log *slog.Logger
}

// NewLoggingHook wraps logger, or slog.Default() if logger is nil.
func NewLoggingHook(logger *slog.Logger) *LoggingHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHook{log: logger}
}

func (h *LoggingHook) OnEnter(s topo.Scope) {
	h.log.Debug("scope enter", "call_id", s.ID.String(), "callsite", s.Callsite.String())
}

func (h *LoggingHook) OnExit(s topo.Scope) {
	h.log.Debug("scope exit", "call_id", s.ID.String())
}

func (h *LoggingHook) OnCacheHit(s topo.Scope) {
	h.log.Debug("cache hit", "call_id", s.ID.String())
}

func (h *LoggingHook) OnCacheMiss(s topo.Scope) {
	h.log.Debug("cache miss", "call_id", s.ID.String())
}

func (h *LoggingHook) OnGC(s topo.Scope, removed int) {
	h.log.Info("gc pass", "call_id", s.ID.String(), "removed", removed)
}
