package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/internal/transfer"
)

const (
	maxThreadItems = 25
	maxItemRunes   = 280
	maxDelaySecs   = 900
)

type PostService interface {
	CreateThread(ctx context.Context, userID int64, pc *transfer.PostCreation, form *multipart.Form) ([]int64, error)
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	PostInfo(ctx context.Context, postID, userID int64) (*models.Post, []*models.PostMedia, error)
	Remove(ctx context.Context, userID, postID int64) error
	History(ctx context.Context, userID int64) ([]*models.PostingHistory, error)
	HistoryForPost(ctx context.Context, userID, postID int64) ([]*models.PostingHistory, error)
}

type postService struct {
	db *sql.DB
	pr repository.PostRepository
	ac repository.SocialAccountRepository
	pm repository.PostMediaRepository
	ph repository.PostingHistoryRepository
	as AccountService
	ms MediaService
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	ac repository.SocialAccountRepository,
	pm repository.PostMediaRepository,
	ph repository.PostingHistoryRepository,
	as AccountService,
	ms MediaService) PostService {
	return &postService{
		db: db,
		pr: pr,
		ac: ac,
		pm: pm,
		ph: ph,
		as: as,
		ms: ms,
	}
}

// CreateThread stores a batch of items as drafts. More than one item makes a
// thread: the items share a generated thread id and their index becomes the
// publish order. Media is validated, stored and pushed to the platform here
// so transcoding starts immediately. Nothing is scheduled yet, that is the
// queue's job.
func (s *postService) CreateThread(ctx context.Context, userID int64, pc *transfer.PostCreation, form *multipart.Form) ([]int64, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return nil, err
	}
	if len(pc.Items) == 0 {
		err := errors.New("thread needs at least one item")
		slog.Info(err.Error())
		return nil, err
	}
	if len(pc.Items) > maxThreadItems {
		err := fmt.Errorf("thread cannot have more than %d items", maxThreadItems)
		slog.Info(err.Error())
		return nil, err
	}

	for i, item := range pc.Items {
		if item.Body == "" {
			err := fmt.Errorf("item %d has no body", i)
			slog.Info(err.Error())
			return nil, err
		}
		if utf8.RuneCountInString(item.Body) > maxItemRunes {
			err := fmt.Errorf("item %d is longer than %d characters", i, maxItemRunes)
			slog.Info(err.Error())
			return nil, err
		}
		if item.DelaySeconds < 0 || item.DelaySeconds > maxDelaySecs {
			err := fmt.Errorf("item %d delay must be between 0 and %d seconds", i, maxDelaySecs)
			slog.Info(err.Error())
			return nil, err
		}
	}

	exists, err := s.ac.CheckByUserID(ctx, pc.AccountID, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		err = errors.New("Social account doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	// The platform upload inside the loop needs a live token. Resolve it
	// once, only when there are files at all.
	var accessToken string
	if form != nil && len(form.File) > 0 {
		_, accessToken, err = s.as.AccessToken(ctx, pc.AccountID)
		if err != nil {
			return nil, err
		}
	}

	var threadID string
	if len(pc.Items) > 1 {
		threadID, err = gonanoid.New()
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
	}

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

	postIDs := make([]int64, 0, len(pc.Items))

	for i, item := range pc.Items {
		post := models.Post{
			UserID:         userID,
			AccountID:      pc.AccountID,
			ThreadID:       threadID,
			ThreadPosition: i,
			Body:           item.Body,
			Status:         models.PostStatusDraft,
			DelaySeconds:   item.DelaySeconds,
		}

		post.ID, err = s.pr.Create(ctx, tx, &post)
		if err != nil {
			return nil, fmt.Errorf("error creating post: %w", err)
		}

		if form != nil {
			files := form.File[fmt.Sprintf("media_%d", i)]
			if len(files) > 0 {
				var mediaStatus string
				mediaStatus, err = s.ms.AttachFiles(ctx, tx, &post, accessToken, files)
				if err != nil {
					return nil, fmt.Errorf("error processing files: %w", err)
				}
				if mediaStatus != "" {
					if err = s.pr.SetMediaStatus(ctx, tx, post.ID, mediaStatus); err != nil {
						return nil, fmt.Errorf("error saving media status: %w", err)
					}
				}
			}
		}

		postIDs = append(postIDs, post.ID)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return postIDs, nil
}

func (s *postService) PostInfo(ctx context.Context, postID, userID int64) (*models.Post, []*models.PostMedia, error) {
	var err error

	if userID == 0 {
		err = errors.New("User is not valid")
		slog.Info(err.Error())
		return nil, nil, err
	}

	if postID == 0 {
		err = errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, nil, err
	}

	if !isValid {
		err = errors.New("Post doesn't exist")
		slog.Info(err.Error())
		return nil, nil, err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, nil, errors.New("Error getting post info")
	}

	media, err := s.pm.ListByPostID(ctx, postID)
	if err != nil {
		return nil, nil, errors.New("Error getting post media")
	}

	return post, media, nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.ListByUserID(ctx, userID)
	if err != nil {
		return nil, errors.New("Error getting posts")
	}
	return posts, nil
}

func (s *postService) History(ctx context.Context, userID int64) ([]*models.PostingHistory, error) {
	history, err := s.ph.GetByUserID(ctx, userID)
	if err != nil {
		return nil, errors.New("Error getting posting history")
	}
	return history, nil
}

func (s *postService) HistoryForPost(ctx context.Context, userID, postID int64) ([]*models.PostingHistory, error) {
	var err error

	if postID == 0 {
		err = errors.New("post_id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}

	if !isValid {
		err = errors.New("Post doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	history, err := s.ph.GetByPostID(ctx, postID)
	if err != nil {
		return nil, errors.New("Error getting posting history")
	}
	return history, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	var err error

	if userID == 0 {
		err = errors.New("User is not valid")
		slog.Info(err.Error())
		return err
	}

	if postID == 0 {
		err = errors.New("post_id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("Post doesn't exist")
		slog.Info(err.Error())
		return err
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post != nil && post.Status == models.PostStatusPublished {
		err = errors.New("published posts cannot be removed")
		slog.Info(err.Error())
		return err
	}

	err = s.pr.Remove(ctx, postID)
	if err != nil {
		return errors.New("Error removing post")
	}

	return nil
}
