package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/platform"
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/internal/transfer"
)

// In-memory stand-ins for the storage and platform layers. Each embeds the
// real interface so only the methods a test actually exercises need stubs;
// anything else panics loudly.

type publishedCall struct {
	PostID     int64
	ExternalID string
	ReplyTo    string
}

type scheduleUpdate struct {
	PostID   int64
	ThreadID string
	Status   string
	At       time.Time
}

type fakePostRepo struct {
	repository.PostRepository

	mu                sync.Mutex
	posts             map[int64]*models.Post
	claims            map[int64]time.Time
	occupied          []time.Time
	updateErr         error
	updates           []scheduleUpdate
	unscheduled       []int64
	threadUnscheduled []string
	published         []publishedCall
}

func newFakePostRepo(posts ...*models.Post) *fakePostRepo {
	r := &fakePostRepo{
		posts:  make(map[int64]*models.Post),
		claims: make(map[int64]time.Time),
	}
	for _, p := range posts {
		cp := *p
		r.posts[p.ID] = &cp
	}
	return r
}

func (r *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakePostRepo) ListThread(ctx context.Context, threadID string) ([]*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.ThreadID == threadID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreadPosition < out[j].ThreadPosition })
	return out, nil
}

func (r *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[postID]
	return ok && p.UserID == userID, nil
}

func (r *fakePostRepo) OccupiedInstants(ctx context.Context, tx *sql.Tx, userID int64) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.occupied...), nil
}

func (r *fakePostRepo) UpdateSchedule(ctx context.Context, tx *sql.Tx, postID int64, status string, scheduledTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, scheduleUpdate{PostID: postID, Status: status, At: scheduledTime})
	if p, ok := r.posts[postID]; ok {
		p.Status = status
		t := scheduledTime
		p.ScheduledTime = &t
	}
	return nil
}

func (r *fakePostRepo) UpdateScheduleByThread(ctx context.Context, tx *sql.Tx, threadID, status string, scheduledTime time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, scheduleUpdate{ThreadID: threadID, Status: status, At: scheduledTime})
	for _, p := range r.posts {
		if p.ThreadID == threadID && p.Status != models.PostStatusPublished {
			p.Status = status
			t := scheduledTime
			p.ScheduledTime = &t
		}
	}
	return nil
}

func (r *fakePostRepo) MarkUnscheduled(ctx context.Context, postID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unscheduled = append(r.unscheduled, postID)
	if p, ok := r.posts[postID]; ok {
		p.Status = models.PostStatusDraft
		p.ScheduledTime = nil
	}
	return nil
}

func (r *fakePostRepo) MarkThreadUnscheduled(ctx context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threadUnscheduled = append(r.threadUnscheduled, threadID)
	for _, p := range r.posts {
		if p.ThreadID == threadID && p.Status != models.PostStatusPublished {
			p.Status = models.PostStatusDraft
			p.ScheduledTime = nil
		}
	}
	return nil
}

func (r *fakePostRepo) MarkPublished(ctx context.Context, postID int64, externalID, replyToExternalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, publishedCall{PostID: postID, ExternalID: externalID, ReplyTo: replyToExternalID})
	if p, ok := r.posts[postID]; ok {
		p.Status = models.PostStatusPublished
		p.ExternalID = externalID
		p.ReplyToExternalID = replyToExternalID
	}
	return nil
}

func (r *fakePostRepo) SetMediaStatus(ctx context.Context, tx *sql.Tx, postID int64, mediaStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posts[postID]; ok {
		p.MediaStatus = mediaStatus
	}
	return nil
}

func (r *fakePostRepo) ClaimForPublish(ctx context.Context, anchorID int64, at, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.claims[anchorID]; ok && !held.Before(staleBefore) {
		return false, nil
	}
	r.claims[anchorID] = at
	return true, nil
}

func (r *fakePostRepo) ReleaseClaim(ctx context.Context, anchorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, anchorID)
	return nil
}

func (r *fakePostRepo) claimHeld(anchorID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.claims[anchorID]
	return ok
}

func (r *fakePostRepo) post(id int64) *models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.posts[id]
	return &cp
}

type fakePostMediaRepo struct {
	repository.PostMediaRepository

	media map[int64][]*models.PostMedia
}

func (r *fakePostMediaRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	return r.media[postID], nil
}

type fakeHistoryRepo struct {
	repository.PostingHistoryRepository

	mu   sync.Mutex
	rows []*models.PostingHistory
}

func (r *fakeHistoryRepo) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ph
	r.rows = append(r.rows, &cp)
	return int64(len(r.rows)), nil
}

type fakeSettingsRepo struct {
	repository.SettingsRepository

	settings *models.Settings
}

func (r *fakeSettingsRepo) GetByUserID(ctx context.Context, userID int64) (*models.Settings, bool, error) {
	if r.settings == nil {
		return nil, false, nil
	}
	return r.settings, true, nil
}

type fakeAccountService struct {
	AccountService

	account *models.SocialAccount
	token   string
	err     error
}

func (s *fakeAccountService) AccessToken(ctx context.Context, accountID int64) (*models.SocialAccount, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return s.account, s.token, nil
}

type fakePlatformClient struct {
	platform.Client

	mu       sync.Mutex
	requests []*transfer.CreatePostRequest
	fail     map[string]error
	nextID   int
}

func (c *fakePlatformClient) CreatePost(ctx context.Context, accessToken string, post *transfer.CreatePostRequest) (*transfer.CreatePostResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, post)
	if err, ok := c.fail[post.Text]; ok {
		return nil, err
	}
	c.nextID++
	return &transfer.CreatePostResponse{
		Data: transfer.CreatedPost{ID: fmt.Sprintf("ext-%d", c.nextID), Text: post.Text},
	}, nil
}
