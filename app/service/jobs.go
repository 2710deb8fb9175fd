package service

import (
	"context"
	"time"
)

// RunPurgeEventsBatch deletes one batch of dedup records older than the
// retention horizon and reports how many rows went away. Callers loop until
// zero.
func (s *GalleryService) RunPurgeEventsBatch(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.downloadsCfg.EventRetention)

	purged, err := s.webhookRepo.PurgeOlderThan(ctx, cutoff, s.purgeBatchSize())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.WithField("purged", purged).Info("Purged processed webhook events")
	}
	return purged, nil
}
