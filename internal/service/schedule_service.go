package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/internal/schedule"
	"github.com/threadlineapp/threadline/internal/transfer"
)

const scheduledTimeLayout = "2006-01-02T15:04"

const (
	defaultPreviewCount = 7
	maxPreviewCount     = 30
)

// ScheduleService places drafts on the calendar: Queue hands them to the
// slot allocator, ScheduleAt pins one to an explicit local time. Both return
// the affected anchor rows with their scheduled instants filled in so the
// caller can enqueue the publish tasks.
type ScheduleService interface {
	Queue(ctx context.Context, userID int64, req *transfer.QueueRequest) ([]*models.Post, error)
	ScheduleAt(ctx context.Context, userID int64, req *transfer.ScheduleRequest) (*models.Post, error)
	Unschedule(ctx context.Context, userID, postID int64) error
	Preview(ctx context.Context, userID int64, timezone string, count int) ([]*transfer.SlotPreview, error)
}

type scheduleService struct {
	db *sql.DB
	pr repository.PostRepository
	sr repository.SettingsRepository
}

func NewScheduleService(db *sql.DB, pr repository.PostRepository, sr repository.SettingsRepository) ScheduleService {
	return &scheduleService{
		db: db,
		pr: pr,
		sr: sr,
	}
}

// Queue assigns the next free queue slots to the given posts, whole threads
// moving as one unit. The occupied set is read and the slots written inside
// a single transaction; a concurrent allocation that grabs the same slot
// first surfaces as repository.ErrSlotConflict and the caller should retry
// against fresh state.
func (s *scheduleService) Queue(ctx context.Context, userID int64, req *transfer.QueueRequest) ([]*models.Post, error) {
	if req == nil || len(req.PostIDs) == 0 {
		err := errors.New("no posts to queue")
		slog.Info(err.Error())
		return nil, err
	}

	loc, err := s.location(req.Timezone)
	if err != nil {
		return nil, err
	}

	settings, err := s.settingsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(req.PostIDs))
	anchors := make([]*models.Post, 0, len(req.PostIDs))
	for _, postID := range req.PostIDs {
		anchor, err := s.queueableAnchor(ctx, userID, postID)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[anchor.ID]; ok {
			continue
		}
		seen[anchor.ID] = struct{}{}
		anchors = append(anchors, anchor)
	}

	// Begin database transaction
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	instants, err := s.pr.OccupiedInstants(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	slots := schedule.NextSlots(time.Now(), loc, settings.PostsPerDay, len(anchors), schedule.NewOccupied(instants))

	for i, anchor := range anchors {
		slot := slots[i]
		if anchor.ThreadID != "" {
			err = s.pr.UpdateScheduleByThread(ctx, tx, anchor.ThreadID, models.PostStatusQueued, slot)
		} else {
			err = s.pr.UpdateSchedule(ctx, tx, anchor.ID, models.PostStatusQueued, slot)
		}
		if err != nil {
			return nil, err
		}
		anchor.Status = models.PostStatusQueued
		anchor.ScheduledTime = &slot
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return anchors, nil
}

// ScheduleAt pins a post (or its whole thread) to an explicit time,
// interpreted in the request's timezone. The time must be in the future and
// inside the user's posting window.
func (s *scheduleService) ScheduleAt(ctx context.Context, userID int64, req *transfer.ScheduleRequest) (*models.Post, error) {
	if req == nil {
		err := errors.New("schedule data is nil")
		slog.Error(err.Error())
		return nil, err
	}

	loc, err := s.location(req.Timezone)
	if err != nil {
		return nil, err
	}

	// Parse scheduled time
	scheduledTime, err := time.ParseInLocation(scheduledTimeLayout, req.ScheduledTime, loc)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Error(err.Error())
		return nil, err
	}
	if !scheduledTime.After(time.Now()) {
		err := errors.New("scheduled time must be in the future")
		slog.Info(err.Error())
		return nil, err
	}

	settings, err := s.settingsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !schedule.InWindow(scheduledTime, loc, settings.WindowStartHour, settings.WindowEndHour) {
		err := errors.New("scheduled time is outside the posting window")
		slog.Info(err.Error())
		return nil, err
	}

	anchor, err := s.queueableAnchor(ctx, userID, req.PostID)
	if err != nil {
		return nil, err
	}

	slot := scheduledTime.UTC()
	if anchor.ThreadID != "" {
		err = s.pr.UpdateScheduleByThread(ctx, nil, anchor.ThreadID, models.PostStatusScheduled, slot)
	} else {
		err = s.pr.UpdateSchedule(ctx, nil, anchor.ID, models.PostStatusScheduled, slot)
	}
	if err != nil {
		return nil, err
	}

	anchor.Status = models.PostStatusScheduled
	anchor.ScheduledTime = &slot
	return anchor, nil
}

// Unschedule takes a post off the calendar and returns it to draft. For a
// thread every not-yet-published item moves back; published items keep their
// state. The freed slot becomes available to the next allocation.
func (s *scheduleService) Unschedule(ctx context.Context, userID, postID int64) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}

	if post.ThreadID != "" {
		return s.pr.MarkThreadUnscheduled(ctx, post.ThreadID)
	}

	if post.Status == models.PostStatusPublished {
		err := errors.New("post is already published")
		slog.Info(err.Error())
		return err
	}
	return s.pr.MarkUnscheduled(ctx, post.ID)
}

// Preview computes the next free slots without persisting anything, for the
// "your post will go out at..." hint in the composer.
func (s *scheduleService) Preview(ctx context.Context, userID int64, timezone string, count int) ([]*transfer.SlotPreview, error) {
	if count <= 0 {
		count = defaultPreviewCount
	}
	if count > maxPreviewCount {
		count = maxPreviewCount
	}

	loc, err := s.location(timezone)
	if err != nil {
		return nil, err
	}

	settings, err := s.settingsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	instants, err := s.pr.OccupiedInstants(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	slots := schedule.NextSlots(time.Now(), loc, settings.PostsPerDay, count, schedule.NewOccupied(instants))

	previews := make([]*transfer.SlotPreview, 0, len(slots))
	for _, slot := range slots {
		previews = append(previews, &transfer.SlotPreview{
			ScheduledTime: slot.Format(time.RFC3339),
			LocalTime:     slot.In(loc).Format(scheduledTimeLayout),
		})
	}
	return previews, nil
}

func (s *scheduleService) location(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		err = fmt.Errorf("invalid timezone %q: %w", timezone, err)
		slog.Info(err.Error())
		return nil, err
	}
	return loc, nil
}

func (s *scheduleService) settingsFor(ctx context.Context, userID int64) (*models.Settings, error) {
	settings, found, err := s.sr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return models.DefaultSettings(userID), nil
	}
	return settings, nil
}

func (s *scheduleService) ownedPost(ctx context.Context, userID, postID int64) (*models.Post, error) {
	exists, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		err := fmt.Errorf("post %d does not exist", postID)
		slog.Info(err.Error())
		return nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		err := fmt.Errorf("post %d does not exist", postID)
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

// queueableAnchor resolves a requested post id to the row the allocator
// stamps: the post itself, or the first item of its thread when the client
// sent a mid-thread id.
func (s *scheduleService) queueableAnchor(ctx context.Context, userID, postID int64) (*models.Post, error) {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	if post.ThreadID != "" && post.ThreadPosition != 0 {
		thread, err := s.pr.ListThread(ctx, post.ThreadID)
		if err != nil {
			return nil, err
		}
		if len(thread) == 0 {
			err := fmt.Errorf("thread %s has no items", post.ThreadID)
			slog.Info(err.Error())
			return nil, err
		}
		post = thread[0]
	}

	if post.Status == models.PostStatusPublished {
		err := fmt.Errorf("post %d is already published", post.ID)
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}
