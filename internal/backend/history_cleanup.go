package backend

import (
	"time"

	"github.com/maniack/logpurge/internal/monitoring"
)

// startHistoryCleanup launches a periodic cleanup of the purge history based on TTL.
func (s *Server) startHistoryCleanup(ttl, interval time.Duration) {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}

	s.log.WithField("ttl", ttl.String()).WithField("interval", interval.String()).Info("history: starting cleanup worker")
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			s.pruneHistory(ttl)
			select {
			case <-s.done:
				s.log.Debug("history: cleanup worker stopped")
				return
			case <-t.C:
			}
		}
	}()
}

func (s *Server) pruneHistory(ttl time.Duration) int64 {
	before := time.Now().Add(-ttl)
	deleted, err := s.store.PruneRuns(before)
	if err != nil {
		s.log.WithError(err).Warn("history: cleanup failed")
		return 0
	}
	if deleted > 0 {
		monitoring.HistoryPrunedTotal.Add(float64(deleted))
		s.log.WithField("deleted", deleted).Infof("history: pruned purge runs older than %s", before.Format(time.RFC3339))
	}
	return deleted
}
