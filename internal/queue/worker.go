package queue

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"
)

func (j *Queue) HandlePublishThreadTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishThreadPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	due, err := j.stillDue(ctx, payload.PostID)
	if err != nil {
		return err
	}
	if !due {
		log.Printf("Post %d is no longer on the calendar, dropping task", payload.PostID)
		return nil
	}

	return j.pub.PublishPost(ctx, payload.PostID)
}

// stillDue reports whether the thread behind the task still has anything on
// the calendar. Unscheduling returns every item to draft, so a task that
// fires after that must not publish anything.
func (j *Queue) stillDue(ctx context.Context, postID int64) (bool, error) {
	post, err := j.pr.GetByID(ctx, postID)
	if err != nil {
		return false, err
	}
	if post == nil {
		return false, nil
	}

	if post.ThreadID == "" {
		return post.Publishable(), nil
	}

	thread, err := j.pr.ListThread(ctx, post.ThreadID)
	if err != nil {
		return false, err
	}
	for _, item := range thread {
		if item.Publishable() {
			return true, nil
		}
	}
	return false, nil
}
