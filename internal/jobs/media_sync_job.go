package job

import (
	"context"
	"log/slog"

	"github.com/threadlineapp/threadline/internal/service"
)

type MediaSyncJob struct {
	ms service.MediaService
}

func NewMediaSyncJob(ms service.MediaService) *MediaSyncJob {
	return &MediaSyncJob{
		ms: ms,
	}
}

// SyncMediaStatus pulls the platform's processing state for every post still
// waiting on media, so the publisher's readiness check works off fresh rows.
func (c *MediaSyncJob) SyncMediaStatus() {
	ctx := context.Background()

	if err := c.ms.SyncMediaStatus(ctx); err != nil {
		slog.Info(err.Error())
	}
}
