package registry

import (
	"context"
	"time"
)

// Reap demotes nodes whose last heartbeat is older than the liveness window
// and returns their ids.
func (s *Service) Reap(ctx context.Context) ([]int64, error) {
	cutoff := s.now().Add(-s.window)
	ids, err := s.nodes.DemoteStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	for _, id := range ids {
		delete(s.lastSeen, id)
	}
	s.mu.Unlock()
	s.logger.Info().Ints64("node_ids", ids).Msg("registry: demoted stale nodes")
	return ids, nil
}

// RunReaper calls Reap every interval until ctx is cancelled.
func (s *Service) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.window / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Dur("window", s.window).Msg("registry: reaper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("registry: reaper stopped")
			return
		case <-ticker.C:
			if _, err := s.Reap(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("registry: reap failed")
			}
		}
	}
}
