package presenter

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsync-core/internal/domain"
	"callsync-core/pkg/errors"
	"callsync-core/pkg/logger"
	"callsync-core/pkg/metrics"
)

// Chain tries each presenter in preference order until one succeeds. Exactly
// one mechanism ends up presenting a given call; a failed mechanism falls
// back to the next, logged but non-fatal. Only if every fallback fails is
// the call treated as failed-to-display.
type Chain struct {
	presenters []Presenter

	mu      sync.Mutex
	claimed map[uuid.UUID]Presenter // which presenter displayed each call
}

// NewChain creates a Chain. Order is preference order: native call UI first,
// then in-app full-screen, then best-effort notification.
func NewChain(presenters ...Presenter) *Chain {
	return &Chain{
		presenters: presenters,
		claimed:    make(map[uuid.UUID]Presenter),
	}
}

// Name implements Presenter
func (c *Chain) Name() string {
	return "chain"
}

// Present implements Presenter by walking the fallback chain
func (c *Chain) Present(ctx context.Context, session *domain.CallSession) error {
	for _, p := range c.presenters {
		err := p.Present(ctx, session)
		if err == nil {
			metrics.CallPresentationTotal.WithLabelValues(p.Name(), "success").Inc()
			c.mu.Lock()
			c.claimed[session.CallID] = p
			c.mu.Unlock()
			logger.Info("Incoming call presented",
				zap.String("call_id", session.CallID.String()),
				zap.String("presenter", p.Name()))
			return nil
		}

		metrics.CallPresentationTotal.WithLabelValues(p.Name(), "failure").Inc()
		logger.Warn("Presentation mechanism failed, falling back",
			zap.String("call_id", session.CallID.String()),
			zap.String("presenter", p.Name()),
			zap.Error(err))
	}

	return errors.PresentationFailedError(session.CallID.String())
}

// Dismiss implements Presenter, releasing whichever mechanism presented the
// call. Dismissing a call nothing presented is a no-op.
func (c *Chain) Dismiss(ctx context.Context, callID uuid.UUID) error {
	c.mu.Lock()
	p, exists := c.claimed[callID]
	delete(c.claimed, callID)
	c.mu.Unlock()

	if !exists {
		return nil
	}
	return p.Dismiss(ctx, callID)
}
