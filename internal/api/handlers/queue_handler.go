package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/queue"
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/internal/service"
	"github.com/threadlineapp/threadline/internal/transfer"
)

type QueueHandler struct {
	s           service.ScheduleService
	AsynqClient *asynq.Client
}

func NewQueueHandler(service service.ScheduleService, asynqClient *asynq.Client) *QueueHandler {
	return &QueueHandler{s: service, AsynqClient: asynqClient}
}

// QueuePosts drops the given drafts onto the user's next free slots and
// enqueues one publish task per slot. A slot conflict means another request
// won the race; the client retries and gets the next slot.
func (h *QueueHandler) QueuePosts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.QueueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	anchors, err := h.s.Queue(c.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, repository.ErrSlotConflict) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A slot was taken by another request, please retry",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	scheduled := make([]fiber.Map, 0, len(anchors))
	for _, anchor := range anchors {
		h.enqueuePublish(anchor)
		scheduled = append(scheduled, fiber.Map{
			"post_id":        anchor.ID,
			"scheduled_time": anchor.ScheduledTime,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":   "Posts queued successfully",
		"scheduled": scheduled,
	})
}

func (h *QueueHandler) SchedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	anchor, err := h.s.ScheduleAt(c.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, repository.ErrSlotConflict) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "That slot is already taken",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.enqueuePublish(anchor)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":        "Post scheduled successfully",
		"post_id":        anchor.ID,
		"scheduled_time": anchor.ScheduledTime,
	})
}

func (h *QueueHandler) UnschedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.UnscheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	if err := h.s.Unschedule(c.Context(), userID, req.PostID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to unschedule post",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *QueueHandler) PreviewSlots(c *fiber.Ctx) error {
	userID := GetUserID(c)
	timezone := c.Query("timezone")
	count := c.QueryInt("count", 0)

	previews, err := h.s.Preview(c.Context(), userID, timezone, count)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(previews)
}

// enqueuePublish hands the anchor to the task queue. Enqueue failures are
// only logged: the rows are already committed as queued, so the requeue
// sweep picks them up.
func (h *QueueHandler) enqueuePublish(post *models.Post) {
	if post.ScheduledTime == nil {
		return
	}

	delay := time.Until(*post.ScheduledTime)
	if delay < 0 {
		delay = 0
	}

	err := queue.EnqueuePublish(h.AsynqClient, queue.PublishThreadPayload{PostID: post.ID}, delay)
	if err != nil {
		slog.Error(err.Error())
	}
}
