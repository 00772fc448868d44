package queue

import (
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/internal/service"
)

type Queue struct {
	pr  repository.PostRepository
	pub service.PublisherService
}

func NewQueue(
	pr repository.PostRepository,
	pub service.PublisherService) *Queue {
	return &Queue{
		pr:  pr,
		pub: pub,
	}
}

const TaskTypePublishThread = "publish:thread"

type PublishThreadPayload struct {
	PostID int64 `json:"post_id"`
}
