package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/threadlineapp/threadline/internal/queue"
	"github.com/threadlineapp/threadline/internal/repository"
)

// Must match the publisher's claim TTL: anchors claimed longer ago than this
// count as abandoned and get swept back onto the queue.
const requeueClaimTTL = 15 * time.Minute

type RequeueJob struct {
	pr     repository.PostRepository
	client *asynq.Client
}

func NewRequeueJob(pr repository.PostRepository, client *asynq.Client) *RequeueJob {
	return &RequeueJob{
		pr:     pr,
		client: client,
	}
}

// RequeueDuePosts re-enqueues publish tasks for posts whose scheduled time
// has passed but which no worker is handling. This is the safety net for
// tasks lost between the database commit and the queue, and for workers that
// died mid-run. Duplicate tasks are harmless: the publish claim and the
// published status make re-runs no-ops.
func (c *RequeueJob) RequeueDuePosts() {
	ctx := context.Background()

	now := time.Now()
	due, err := c.pr.ListDue(ctx, now, now.Add(-requeueClaimTTL))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, post := range due {
		payload := queue.PublishThreadPayload{PostID: post.ID}
		if err := queue.EnqueuePublish(c.client, payload, 0); err != nil {
			slog.Info(err.Error())
		}
	}
}
