package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/platform"
)

func threadItem(id int64, position int, status string) *models.Post {
	return &models.Post{
		ID:             id,
		UserID:         1,
		AccountID:      7,
		ThreadID:       "th-1",
		ThreadPosition: position,
		Body:           string(rune('a' + position)),
		Status:         status,
		MediaStatus:    models.MediaStatusComplete,
	}
}

func newTestPublisher(pr *fakePostRepo, pm *fakePostMediaRepo, client *fakePlatformClient) (*publisherService, *fakeHistoryRepo) {
	if pm == nil {
		pm = &fakePostMediaRepo{}
	}
	ph := &fakeHistoryRepo{}
	return &publisherService{
		pr:                pr,
		pm:                pm,
		ph:                ph,
		ac:                &fakeAccountService{account: &models.SocialAccount{ID: 7, UserID: 1}, token: "tok"},
		client:            client,
		mediaPollInterval: time.Millisecond,
		mediaWaitMax:      20 * time.Millisecond,
		claimTTL:          defaultClaimTTL,
	}, ph
}

func TestPublishPost_ChainsThreadInOrder(t *testing.T) {
	pr := newFakePostRepo(
		threadItem(1, 0, models.PostStatusQueued),
		threadItem(2, 1, models.PostStatusQueued),
		threadItem(3, 2, models.PostStatusQueued),
	)
	client := &fakePlatformClient{}
	svc, ph := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, client.requests, 3)
	assert.Nil(t, client.requests[0].Reply, "first item starts the chain")
	require.NotNil(t, client.requests[1].Reply)
	assert.Equal(t, "ext-1", client.requests[1].Reply.InReplyToPostID)
	require.NotNil(t, client.requests[2].Reply)
	assert.Equal(t, "ext-2", client.requests[2].Reply.InReplyToPostID)

	require.Len(t, pr.published, 3)
	assert.Equal(t, publishedCall{PostID: 1, ExternalID: "ext-1", ReplyTo: ""}, pr.published[0])
	assert.Equal(t, publishedCall{PostID: 2, ExternalID: "ext-2", ReplyTo: "ext-1"}, pr.published[1])
	assert.Equal(t, publishedCall{PostID: 3, ExternalID: "ext-3", ReplyTo: "ext-2"}, pr.published[2])

	assert.Len(t, ph.rows, 3)
	assert.False(t, pr.claimHeld(1), "claim should be released after the run")
}

func TestPublishPost_RejectedItemDropsOutOfChain(t *testing.T) {
	pr := newFakePostRepo(
		threadItem(1, 0, models.PostStatusQueued),
		threadItem(2, 1, models.PostStatusQueued),
		threadItem(3, 2, models.PostStatusQueued),
	)
	client := &fakePlatformClient{
		fail: map[string]error{"b": &platform.APIError{StatusCode: 403, Detail: "not allowed"}},
	}
	svc, ph := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 1)
	require.NoError(t, err, "a rejected item must not abort the run")

	// Item 2 goes back to draft, item 3 replies to item 1.
	assert.Equal(t, []int64{2}, pr.unscheduled)
	assert.Equal(t, models.PostStatusDraft, pr.post(2).Status)

	require.Len(t, client.requests, 3)
	require.NotNil(t, client.requests[2].Reply)
	assert.Equal(t, "ext-1", client.requests[2].Reply.InReplyToPostID)

	require.Len(t, pr.published, 2)
	assert.Equal(t, publishedCall{PostID: 1, ExternalID: "ext-1", ReplyTo: ""}, pr.published[0])
	assert.Equal(t, publishedCall{PostID: 3, ExternalID: "ext-2", ReplyTo: "ext-1"}, pr.published[1])

	require.Len(t, ph.rows, 3)
	var rejectedRow *models.PostingHistory
	for _, row := range ph.rows {
		if row.PostID == 2 {
			rejectedRow = row
		}
	}
	require.NotNil(t, rejectedRow)
	assert.Empty(t, rejectedRow.ExternalID)
	assert.NotEmpty(t, rejectedRow.ErrorMessage)
}

func TestPublishPost_FirstItemRejectedStartsFreshChain(t *testing.T) {
	pr := newFakePostRepo(
		threadItem(1, 0, models.PostStatusQueued),
		threadItem(2, 1, models.PostStatusQueued),
	)
	client := &fakePlatformClient{
		fail: map[string]error{"a": &platform.APIError{StatusCode: 422, Detail: "duplicate"}},
	}
	svc, _ := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, client.requests, 2)
	assert.Nil(t, client.requests[1].Reply, "no parent exists, item 2 starts its own chain")
	require.Len(t, pr.published, 1)
	assert.Equal(t, publishedCall{PostID: 2, ExternalID: "ext-1", ReplyTo: ""}, pr.published[0])
}

func TestPublishPost_TransientErrorStopsRun(t *testing.T) {
	pr := newFakePostRepo(
		threadItem(1, 0, models.PostStatusQueued),
		threadItem(2, 1, models.PostStatusQueued),
		threadItem(3, 2, models.PostStatusQueued),
	)
	client := &fakePlatformClient{
		fail: map[string]error{"b": errors.New("connection reset")},
	}
	svc, _ := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 1)
	require.Error(t, err, "network failures bubble up so the job retries")

	// Item 1 stays published, items 2 and 3 stay queued for the retry.
	assert.Len(t, client.requests, 2)
	require.Len(t, pr.published, 1)
	assert.Equal(t, int64(1), pr.published[0].PostID)
	assert.Empty(t, pr.unscheduled)
	assert.Equal(t, models.PostStatusQueued, pr.post(2).Status)
	assert.Equal(t, models.PostStatusQueued, pr.post(3).Status)
	assert.False(t, pr.claimHeld(1), "claim must be released even on failure")
}

func TestPublishPost_RerunResumesFromStoredExternalIDs(t *testing.T) {
	first := threadItem(1, 0, models.PostStatusPublished)
	first.ExternalID = "ext-a"
	second := threadItem(2, 1, models.PostStatusPublished)
	second.ExternalID = "ext-b"
	second.ReplyToExternalID = "ext-a"
	third := threadItem(3, 2, models.PostStatusDraft)

	pr := newFakePostRepo(first, second, third)
	client := &fakePlatformClient{}
	svc, _ := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, client.requests, 1, "published items must not be re-posted")
	require.NotNil(t, client.requests[0].Reply)
	assert.Equal(t, "ext-b", client.requests[0].Reply.InReplyToPostID)
	require.Len(t, pr.published, 1)
	assert.Equal(t, publishedCall{PostID: 3, ExternalID: "ext-1", ReplyTo: "ext-b"}, pr.published[0])
}

func TestPublishPost_FullyPublishedThreadIsNoop(t *testing.T) {
	first := threadItem(1, 0, models.PostStatusPublished)
	first.ExternalID = "ext-a"
	second := threadItem(2, 1, models.PostStatusPublished)
	second.ExternalID = "ext-b"

	pr := newFakePostRepo(first, second)
	client := &fakePlatformClient{}
	svc, ph := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, client.requests)
	assert.Empty(t, ph.rows)
	assert.False(t, pr.claimHeld(1), "no claim should be taken for a no-op")
}

func TestPublishPost_MissingPostIsNoop(t *testing.T) {
	pr := newFakePostRepo()
	client := &fakePlatformClient{}
	svc, _ := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, client.requests)
}

func TestPublishPost_HeldClaimBlocksSecondRun(t *testing.T) {
	pr := newFakePostRepo(
		threadItem(1, 0, models.PostStatusQueued),
		threadItem(2, 1, models.PostStatusQueued),
	)
	pr.claims[1] = time.Now()

	client := &fakePlatformClient{}
	svc, _ := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 1)
	assert.ErrorIs(t, err, ErrThreadClaimed)
	assert.Empty(t, client.requests)
	assert.True(t, pr.claimHeld(1), "the loser must not release the holder's claim")
}

func TestPublishPost_StaleClaimIsTakenOver(t *testing.T) {
	pr := newFakePostRepo(threadItem(1, 0, models.PostStatusQueued))
	pr.claims[1] = time.Now().Add(-time.Hour)

	client := &fakePlatformClient{}
	svc, _ := newTestPublisher(pr, nil, client)

	err := svc.PublishPost(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pr.published, 1)
}

func TestPublishPost_WaitsForMediaProcessing(t *testing.T) {
	post := &models.Post{
		ID:          1,
		UserID:      1,
		AccountID:   7,
		Body:        "video day",
		Status:      models.PostStatusQueued,
		MediaStatus: models.MediaStatusProcessing,
	}
	pr := newFakePostRepo(post)
	client := &fakePlatformClient{}
	svc, _ := newTestPublisher(pr, nil, client)

	go func() {
		time.Sleep(5 * time.Millisecond)
		pr.SetMediaStatus(context.Background(), nil, 1, models.MediaStatusComplete)
	}()

	err := svc.PublishPost(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pr.published, 1)
}

func TestPublishPost_MediaTimeoutPublishesAnyway(t *testing.T) {
	post := &models.Post{
		ID:          1,
		UserID:      1,
		AccountID:   7,
		Body:        "video day",
		Status:      models.PostStatusQueued,
		MediaStatus: models.MediaStatusPending,
	}
	pr := newFakePostRepo(post)
	pm := &fakePostMediaRepo{media: map[int64][]*models.PostMedia{
		1: {{ID: 11, PostID: 1, ExternalMediaID: "m-1"}},
	}}
	client := &fakePlatformClient{}
	svc, _ := newTestPublisher(pr, pm, client)

	err := svc.PublishPost(context.Background(), 1)
	require.NoError(t, err, "a stuck media pipeline must not wedge the thread")

	require.Len(t, client.requests, 1)
	require.NotNil(t, client.requests[0].Media)
	assert.Equal(t, []string{"m-1"}, client.requests[0].Media.MediaIDs)
}

func TestPublishPost_DropsMediaWithoutPlatformID(t *testing.T) {
	post := &models.Post{
		ID:          1,
		UserID:      1,
		AccountID:   7,
		Body:        "hello",
		Status:      models.PostStatusQueued,
		MediaStatus: models.MediaStatusComplete,
	}
	pr := newFakePostRepo(post)
	pm := &fakePostMediaRepo{media: map[int64][]*models.PostMedia{
		1: {
			{ID: 11, PostID: 1, ExternalMediaID: ""},
			{ID: 12, PostID: 1, ExternalMediaID: "m-2"},
		},
	}}
	client := &fakePlatformClient{}
	svc, _ := newTestPublisher(pr, pm, client)

	err := svc.PublishPost(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	require.NotNil(t, client.requests[0].Media)
	assert.Equal(t, []string{"m-2"}, client.requests[0].Media.MediaIDs)
}
