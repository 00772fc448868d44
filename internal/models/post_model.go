package models

import "time"

// Post is one unit of content: a standalone post or a single entry of a
// thread. Thread membership is carried by ThreadID; items of a thread share
// it and are ordered by ThreadPosition starting at 0.
type Post struct {
	ID                int64      `db:"id" json:"id"`
	UserID            int64      `db:"user_id" json:"user_id"`
	AccountID         int64      `db:"account_id" json:"account_id"`
	ThreadID          string     `db:"thread_id" json:"thread_id,omitempty"`
	ThreadPosition    int        `db:"thread_position" json:"thread_position"`
	Body              string     `db:"body" json:"body"`
	Status            string     `db:"status" json:"status"` // draft, queued, scheduled, published
	ScheduledTime     *time.Time `db:"scheduled_time" json:"scheduled_time,omitempty"`
	ExternalID        string     `db:"external_id" json:"external_id,omitempty"`
	ReplyToExternalID string     `db:"reply_to_external_id" json:"reply_to_external_id,omitempty"`
	MediaStatus       string     `db:"media_status" json:"media_status,omitempty"`
	DelaySeconds      int        `db:"delay_seconds" json:"delay_seconds"`
	ClaimedAt         *time.Time `db:"claimed_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// PostMedia is one media reference of a post: the R2 object we store plus the
// identifier the platform handed back for it once uploaded there.
type PostMedia struct {
	ID              int64     `db:"id" json:"id"`
	PostID          int64     `db:"post_id" json:"post_id"`
	StorageKey      string    `db:"storage_key" json:"storage_key"`
	FileURL         string    `db:"file_url" json:"file_url"`
	MediaType       string    `db:"media_type" json:"media_type"`
	ExternalMediaID string    `db:"external_media_id" json:"external_media_id,omitempty"`
	DisplayOrder    int       `db:"display_order" json:"display_order"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusQueued    = "queued"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
)

// Media processing states mirrored from the platform's async pipeline.
// Empty means the post carries no media that needs processing.
const (
	MediaStatusPending    = "pending"
	MediaStatusProcessing = "processing"
	MediaStatusComplete   = "complete"
	MediaStatusFailed     = "failed"
)

// Publishable reports whether the post sits in a state the publisher acts on.
func (p *Post) Publishable() bool {
	return p.Status == PostStatusQueued || p.Status == PostStatusScheduled
}

// MediaSettled reports whether the post is still waiting on platform-side
// media processing. Failed counts as settled: the publisher proceeds and the
// platform rejects the media ids it no longer accepts.
func (p *Post) MediaSettled() bool {
	return p.MediaStatus != MediaStatusPending && p.MediaStatus != MediaStatusProcessing
}
