package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/platform"
	"github.com/threadlineapp/threadline/internal/repository"
)

type MediaService interface {
	AttachFiles(ctx context.Context, tx *sql.Tx, post *models.Post, accessToken string, files []*multipart.FileHeader) (string, error)
	SyncMediaStatus(ctx context.Context) error
}

type mediaService struct {
	pr     repository.PostRepository
	pm     repository.PostMediaRepository
	ac     AccountService
	r2     *R2Service
	client platform.Client
}

func NewMediaService(
	pr repository.PostRepository,
	pm repository.PostMediaRepository,
	ac AccountService,
	r2 *R2Service,
	client platform.Client) MediaService {
	return &mediaService{
		pr:     pr,
		pm:     pm,
		ac:     ac,
		r2:     r2,
		client: client,
	}
}

// AttachFiles validates, stores and uploads an item's media at composition
// time. Uploading to the platform this early gives video transcoding the
// whole lead time until the slot fires; the publisher only has to wait for
// whatever is still in flight. Returns the item's initial media status,
// empty when nothing needs processing.
func (s *mediaService) AttachFiles(ctx context.Context, tx *sql.Tx, post *models.Post, accessToken string, files []*multipart.FileHeader) (string, error) {
	allowedTypes := map[string]struct{}{
		"mp4": {}, "mov": {}, "jpeg": {}, "png": {}, "jpg": {}, "gif": {},
	}

	var mediaStatus string

	for i, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("error opening file: %w", err)
		}
		defer fileContent.Close()

		fileBytes, err := io.ReadAll(fileContent)
		if err != nil {
			return "", fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return "", errors.New("unsupported file type")
		}
		if _, ok := allowedTypes[fileType.Extension]; !ok {
			return "", fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}

		key, err := gonanoid.New()
		if err != nil {
			slog.Info(err.Error())
			return "", err
		}

		if err := s.r2.UploadToR2(ctx, key, fileBytes, fileType.MIME.Value); err != nil {
			return "", fmt.Errorf("error uploading file: %w", err)
		}

		uploadResp, err := s.client.UploadMedia(ctx, accessToken, bytes.NewReader(fileBytes), fileType.MIME.Value)
		if err != nil {
			return "", fmt.Errorf("error uploading media to platform: %w", err)
		}

		postMedia := models.PostMedia{
			PostID:          post.ID,
			StorageKey:      key,
			FileURL:         s.r2.FileURL(key),
			MediaType:       fileType.MIME.Value,
			ExternalMediaID: uploadResp.MediaIDString,
			DisplayOrder:    i,
		}
		if err := s.pm.Create(ctx, tx, &postMedia); err != nil {
			return "", fmt.Errorf("error saving media file: %w", err)
		}

		if uploadResp.ProcessingInfo != nil {
			switch mediaStateFromPlatform(uploadResp.ProcessingInfo.State) {
			case models.MediaStatusPending, models.MediaStatusProcessing:
				mediaStatus = models.MediaStatusPending
			case models.MediaStatusFailed:
				return "", errors.New("platform rejected the media upload")
			}
		}
	}

	return mediaStatus, nil
}

// SyncMediaStatus advances the media status of every item still waiting on
// processing, from the platform's view. Runs on a cron schedule; the
// publisher reads the persisted result.
func (s *mediaService) SyncMediaStatus(ctx context.Context) error {
	posts, err := s.pr.ListMediaPending(ctx)
	if err != nil {
		return err
	}

	for _, post := range posts {
		if err := s.syncPost(ctx, post); err != nil {
			slog.Info(fmt.Sprintf("media sync: post %d: %v", post.ID, err))
		}
	}

	return nil
}

func (s *mediaService) syncPost(ctx context.Context, post *models.Post) error {
	_, accessToken, err := s.ac.AccessToken(ctx, post.AccountID)
	if err != nil {
		return err
	}

	medias, err := s.pm.ListByPostID(ctx, post.ID)
	if err != nil {
		return err
	}

	status := models.MediaStatusComplete
	for _, m := range medias {
		if m.ExternalMediaID == "" {
			continue
		}

		resp, err := s.client.MediaStatus(ctx, accessToken, m.ExternalMediaID)
		if err != nil {
			return err
		}
		if resp.ProcessingInfo == nil {
			continue
		}

		switch mediaStateFromPlatform(resp.ProcessingInfo.State) {
		case models.MediaStatusFailed:
			status = models.MediaStatusFailed
		case models.MediaStatusPending, models.MediaStatusProcessing:
			if status != models.MediaStatusFailed {
				status = models.MediaStatusProcessing
			}
		}
	}

	if status == post.MediaStatus {
		return nil
	}

	return s.pr.SetMediaStatus(ctx, nil, post.ID, status)
}

// mediaStateFromPlatform maps the platform's processing_info states onto
// ours. Unknown states count as complete so a new platform state can never
// wedge a thread, the worst case is publishing with media that is not ready.
func mediaStateFromPlatform(state string) string {
	switch state {
	case "pending":
		return models.MediaStatusPending
	case "in_progress":
		return models.MediaStatusProcessing
	case "failed":
		return models.MediaStatusFailed
	default:
		return models.MediaStatusComplete
	}
}
