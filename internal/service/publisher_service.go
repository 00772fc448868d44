package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/platform"
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/internal/transfer"
)

// ErrThreadClaimed means another worker holds the publish claim for this
// thread right now. The job should retry later; if the holder crashed, the
// claim goes stale and the retry takes it over.
var ErrThreadClaimed = errors.New("thread is claimed by another publish run")

const (
	defaultMediaPollInterval = 5 * time.Second
	defaultMediaWaitMax      = 5 * time.Minute
	defaultClaimTTL          = 15 * time.Minute
)

type PublisherService interface {
	PublishPost(ctx context.Context, postID int64) error
}

type publisherService struct {
	pr     repository.PostRepository
	pm     repository.PostMediaRepository
	ph     repository.PostingHistoryRepository
	ac     AccountService
	client platform.Client

	mediaPollInterval time.Duration
	mediaWaitMax      time.Duration
	claimTTL          time.Duration
}

func NewPublisherService(
	pr repository.PostRepository,
	pm repository.PostMediaRepository,
	ph repository.PostingHistoryRepository,
	ac AccountService,
	client platform.Client) PublisherService {
	return &publisherService{
		pr:                pr,
		pm:                pm,
		ph:                ph,
		ac:                ac,
		client:            client,
		mediaPollInterval: defaultMediaPollInterval,
		mediaWaitMax:      defaultMediaWaitMax,
		claimTTL:          defaultClaimTTL,
	}
}

// PublishPost publishes the thread the given post belongs to (or the post
// alone when it is standalone), chaining each item as a reply to the
// previous successfully published one. Items whose content the platform
// rejects go back to drafts and the run continues; any other failure stops
// the run so the job layer can retry it. Re-running is safe: already
// published items are skipped and the reply chain is rebuilt from their
// stored external ids.
func (s *publisherService) PublishPost(ctx context.Context, postID int64) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info(fmt.Sprintf("publish: post %d no longer exists, skipping", postID))
		return nil
	}

	thread, err := s.loadThread(ctx, post)
	if err != nil {
		return err
	}
	if len(thread) == 0 {
		slog.Info(fmt.Sprintf("publish: thread for post %d is empty, skipping", postID))
		return nil
	}
	anchor := thread[0]

	if countUnpublished(thread) == 0 {
		slog.Info(fmt.Sprintf("publish: nothing left to publish for post %d", postID))
		return nil
	}

	now := time.Now()
	claimed, err := s.pr.ClaimForPublish(ctx, anchor.ID, now, now.Add(-s.claimTTL))
	if err != nil {
		return err
	}
	if !claimed {
		slog.Info(fmt.Sprintf("publish: post %d is claimed by another run", anchor.ID))
		return ErrThreadClaimed
	}
	defer func() {
		if err := s.pr.ReleaseClaim(context.Background(), anchor.ID); err != nil {
			log.Printf("Error releasing publish claim for PostID %d: %v", anchor.ID, err)
		}
	}()

	// Re-read under the claim: state may have moved while we raced for it.
	thread, err = s.loadThread(ctx, anchor)
	if err != nil {
		return err
	}
	if countUnpublished(thread) == 0 {
		return nil
	}

	if !mediaSettled(thread) {
		ready, err := s.waitForMedia(ctx, anchor)
		if err != nil {
			return err
		}
		if !ready {
			slog.Warn(fmt.Sprintf("publish: media for post %d still processing after %s, proceeding with current state", anchor.ID, s.mediaWaitMax))
		}
		// Media ids may have been filled in during the wait.
		thread, err = s.loadThread(ctx, anchor)
		if err != nil {
			return err
		}
	}

	account, accessToken, err := s.ac.AccessToken(ctx, anchor.AccountID)
	if err != nil {
		return err
	}

	return s.publishItems(ctx, thread, account, accessToken)
}

// publishItems walks the thread in position order and submits every item
// that is not yet published. The reply parent is always the last item this
// or any earlier run actually got onto the platform, never the intended
// predecessor, so a rejected item drops out of the chain cleanly.
func (s *publisherService) publishItems(ctx context.Context, thread []*models.Post, account *models.SocialAccount, accessToken string) error {
	var parentExternalID string

	for _, item := range thread {
		if item.Status == models.PostStatusPublished {
			if item.ExternalID != "" {
				parentExternalID = item.ExternalID
			}
			continue
		}
		if item.ThreadPosition > 0 && item.DelaySeconds > 0 {
			time.Sleep(time.Duration(item.DelaySeconds) * time.Second)
		}

		req, err := s.buildRequest(ctx, item, parentExternalID)
		if err != nil {
			return err
		}

		resp, err := s.client.CreatePost(ctx, accessToken, req)
		if err != nil {
			s.recordHistory(ctx, item, account, "", err)

			if platform.IsContentRejected(err) {
				slog.Info(fmt.Sprintf("publish: platform rejected post %d, returning it to drafts: %v", item.ID, err))
				if err := s.pr.MarkUnscheduled(ctx, item.ID); err != nil {
					return err
				}
				continue
			}

			return fmt.Errorf("publish post %d: %w", item.ID, err)
		}

		externalID := resp.Data.ID
		if err := s.pr.MarkPublished(ctx, item.ID, externalID, parentExternalID); err != nil {
			return err
		}
		s.recordHistory(ctx, item, account, externalID, nil)

		parentExternalID = externalID
	}

	return nil
}

func (s *publisherService) buildRequest(ctx context.Context, item *models.Post, parentExternalID string) (*transfer.CreatePostRequest, error) {
	req := &transfer.CreatePostRequest{Text: item.Body}

	medias, err := s.pm.ListByPostID(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	var mediaIDs []string
	for _, m := range medias {
		if m.ExternalMediaID == "" {
			slog.Info(fmt.Sprintf("publish: media %d of post %d has no platform id, dropping it", m.ID, item.ID))
			continue
		}
		mediaIDs = append(mediaIDs, m.ExternalMediaID)
	}
	if len(mediaIDs) > 0 {
		req.Media = &transfer.PostMedia{MediaIDs: mediaIDs}
	}

	if parentExternalID != "" {
		req.Reply = &transfer.PostReply{InReplyToPostID: parentExternalID}
	}

	return req, nil
}

// waitForMedia polls persisted media state until every item settles or the
// wait budget runs out. Each poll re-reads storage, the sync job advances
// the status concurrently.
func (s *publisherService) waitForMedia(ctx context.Context, anchor *models.Post) (bool, error) {
	return pollUntil(ctx, s.mediaPollInterval, s.mediaWaitMax, func(ctx context.Context) (bool, error) {
		thread, err := s.loadThread(ctx, anchor)
		if err != nil {
			return false, err
		}
		return mediaSettled(thread), nil
	})
}

// loadThread returns the post's whole thread in position order, or just the
// post when it is standalone. State is always read fresh.
func (s *publisherService) loadThread(ctx context.Context, post *models.Post) ([]*models.Post, error) {
	if post.ThreadID == "" {
		fresh, err := s.pr.GetByID(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			return nil, nil
		}
		return []*models.Post{fresh}, nil
	}

	return s.pr.ListThread(ctx, post.ThreadID)
}

func (s *publisherService) recordHistory(ctx context.Context, item *models.Post, account *models.SocialAccount, externalID string, publishErr error) {
	history := models.PostingHistory{
		UserID:     item.UserID,
		PostID:     item.ID,
		AccountID:  account.ID,
		ExternalID: externalID,
	}
	if publishErr != nil {
		history.ErrorMessage = publishErr.Error()
	}

	if _, err := s.ph.Create(ctx, &history); err != nil {
		log.Printf("Error saving posting history for PostID %d: %v", item.ID, err)
	}
}

func countUnpublished(thread []*models.Post) int {
	n := 0
	for _, item := range thread {
		if item.Status != models.PostStatusPublished {
			n++
		}
	}
	return n
}

func mediaSettled(thread []*models.Post) bool {
	for _, item := range thread {
		if !item.MediaSettled() {
			return false
		}
	}
	return true
}
