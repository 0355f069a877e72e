package proxy

import (
	"context"
	"log/slog"
	"sync"
)

// captureHandler is a slog.Handler that buffers every record it receives
// instead of writing it anywhere. The proxy helper installs one so its log
// lines can ride back to the host inside a Response rather than being lost
// to the helper's own redirected stderr.
type captureHandler struct {
	level slog.Level

	mu   sync.Mutex
	recs []LogRecord
}

func newCaptureHandler(level slog.Level) *captureHandler {
	return &captureHandler{level: level}
}

func (h *captureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, LogRecord{Level: int(r.Level), Msg: r.Message})
	return nil
}

func (h *captureHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(_ string) slog.Handler      { return h }

// drain returns and clears everything captured since the last drain.
func (h *captureHandler) drain() []LogRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.recs
	h.recs = nil
	return out
}
