package dbpool

import (
	"context"
	"fmt"
)

// isValid runs the liveness probe on h, bounded by ValidateTimeout.
// A handle that passes gets its lastValidatedAt refreshed. Runs on a worker.
func (p *Pool) isValid(h *Handle) bool {
	err := p.probe(h)
	if err != nil {
		p.stats.validationFailures.Add(1)
		p.logger.Info("database connection failed validation", "handle", h.id, "error", err)
		return false
	}

	p.mu.Lock()
	h.lastValidatedAt = p.now()
	p.mu.Unlock()
	return true
}

func (p *Pool) probe(h *Handle) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ValidateTimeout)
	defer cancel()

	var result any
	if err := h.conn.QueryRowContext(ctx, p.cfg.ValidationQuery).Scan(&result); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
