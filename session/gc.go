package session

import (
	"context"
	"time"

	"github.com/giantswarm/webkit/internal/util"
	"github.com/giantswarm/webkit/security"
)

// Start launches the garbage collector in a goroutine: one sweep right away,
// then one every CleanFrequency. Calling Start on a running collector is a
// no-op. Stop ends it.
func (h *Handler) Start(ctx context.Context) {
	h.gcMu.Lock()
	defer h.gcMu.Unlock()
	if h.gcCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.gcCancel = cancel
	h.gcDone = done

	go func() {
		defer close(done)
		_ = h.Run(ctx)
	}()
}

// Stop cancels the collector started by Start and waits for it to return.
func (h *Handler) Stop() {
	h.gcMu.Lock()
	cancel, done := h.gcCancel, h.gcDone
	h.gcCancel, h.gcDone = nil, nil
	h.gcMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run sweeps once and then every CleanFrequency until ctx is done. With a
// negative CleanFrequency it returns after the first sweep. Sweep failures
// are logged, never returned.
func (h *Handler) Run(ctx context.Context) error {
	h.sweep(ctx)
	if h.config.CleanFrequency < 0 {
		return nil
	}

	ticker := time.NewTicker(h.config.CleanFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *Handler) sweep(ctx context.Context) {
	if _, err := h.CleanSessions(ctx); err != nil && ctx.Err() == nil {
		h.logger.Warn("Session garbage collection failed", "error", err)
	}
}

func eventCollected(count int) security.Event {
	return security.Event{
		Type:    security.EventSessionsCollected,
		Details: map[string]any{"count": count},
	}
}

func tokenPrefixForLog(token string) string {
	return util.SafeTruncate(token, tokenLogPrefix)
}
