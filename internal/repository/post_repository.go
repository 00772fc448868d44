package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/threadlineapp/threadline/internal/models"
)

const postColumns = `id, user_id, account_id, COALESCE(thread_id, ''), thread_position, body, status,
	scheduled_time, COALESCE(external_id, ''), COALESCE(reply_to_external_id, ''),
	COALESCE(media_status, ''), delay_seconds, claimed_at, created_at, updated_at`

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	ListThread(ctx context.Context, threadID string) ([]*models.Post, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	OccupiedInstants(ctx context.Context, tx *sql.Tx, userID int64) ([]time.Time, error)
	UpdateSchedule(ctx context.Context, tx *sql.Tx, postID int64, status string, scheduledTime time.Time) error
	UpdateScheduleByThread(ctx context.Context, tx *sql.Tx, threadID, status string, scheduledTime time.Time) error
	MarkUnscheduled(ctx context.Context, postID int64) error
	MarkThreadUnscheduled(ctx context.Context, threadID string) error
	MarkPublished(ctx context.Context, postID int64, externalID, replyToExternalID string) error
	SetMediaStatus(ctx context.Context, tx *sql.Tx, postID int64, mediaStatus string) error
	ClaimForPublish(ctx context.Context, anchorID int64, at, staleBefore time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, anchorID int64) error
	ListDue(ctx context.Context, before, staleBefore time.Time) ([]*models.Post, error)
	ListMediaPending(ctx context.Context) ([]*models.Post, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var scheduledTime, claimedAt sql.NullTime

	err := row.Scan(
		&post.ID, &post.UserID, &post.AccountID, &post.ThreadID, &post.ThreadPosition,
		&post.Body, &post.Status, &scheduledTime, &post.ExternalID, &post.ReplyToExternalID,
		&post.MediaStatus, &post.DelaySeconds, &claimedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if scheduledTime.Valid {
		post.ScheduledTime = &scheduledTime.Time
	}
	if claimedAt.Valid {
		post.ClaimedAt = &claimedAt.Time
	}

	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, account_id, thread_id, thread_position, body, status, scheduled_time, media_status, delay_seconds)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.AccountID, post.ThreadID, post.ThreadPosition, post.Body, post.Status, post.ScheduledTime, post.MediaStatus, post.DelaySeconds).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.AccountID, post.ThreadID, post.ThreadPosition, post.Body, post.Status, post.ScheduledTime, post.MediaStatus, post.DelaySeconds).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC, thread_position ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ListThread returns every item of a thread in publish order.
func (r *postRepository) ListThread(ctx context.Context, threadID string) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE thread_id = $1 ORDER BY thread_position ASC`

	rows, err := r.db.QueryContext(ctx, query, threadID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// OccupiedInstants returns the scheduled instants currently held by the
// user's queued and scheduled items. Threads occupy one instant through
// their first item. Runs on tx when given so an allocation sees a snapshot
// consistent with its own writes.
func (r *postRepository) OccupiedInstants(ctx context.Context, tx *sql.Tx, userID int64) ([]time.Time, error) {
	query := `
		SELECT scheduled_time FROM posts
		WHERE user_id = $1
			AND thread_position = 0
			AND scheduled_time IS NOT NULL
			AND status IN ($2, $3)
	`

	var rows *sql.Rows
	var err error

	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, userID, models.PostStatusQueued, models.PostStatusScheduled)
	} else {
		rows, err = r.db.QueryContext(ctx, query, userID, models.PostStatusQueued, models.PostStatusScheduled)
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var instants []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		instants = append(instants, t)
	}
	return instants, rows.Err()
}

func (r *postRepository) UpdateSchedule(ctx context.Context, tx *sql.Tx, postID int64, status string, scheduledTime time.Time) error {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_time = $2,
			updated_at = $3
		WHERE id = $4
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, status, scheduledTime, time.Now(), postID)
	} else {
		_, err = r.db.ExecContext(ctx, query, status, scheduledTime, time.Now(), postID)
	}
	if err != nil {
		slog.Info(err.Error())
		return slotConflict(err)
	}
	return nil
}

// UpdateScheduleByThread moves a whole thread onto one instant. The unique
// slot index only watches position 0, so the shared timestamp does not
// collide with itself.
func (r *postRepository) UpdateScheduleByThread(ctx context.Context, tx *sql.Tx, threadID, status string, scheduledTime time.Time) error {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_time = $2,
			updated_at = $3
		WHERE thread_id = $4 AND status <> $5
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, status, scheduledTime, time.Now(), threadID, models.PostStatusPublished)
	} else {
		_, err = r.db.ExecContext(ctx, query, status, scheduledTime, time.Now(), threadID, models.PostStatusPublished)
	}
	if err != nil {
		slog.Info(err.Error())
		return slotConflict(err)
	}
	return nil
}

// MarkUnscheduled returns an item to draft and frees its slot. Used both for
// the user's unschedule action and by the publisher when the platform
// rejects an item's content.
func (r *postRepository) MarkUnscheduled(ctx context.Context, postID int64) error {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_time = NULL,
			claimed_at = NULL,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusDraft, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkThreadUnscheduled(ctx context.Context, threadID string) error {
	query := `
		UPDATE posts
		SET status = $1,
			scheduled_time = NULL,
			claimed_at = NULL,
			updated_at = $2
		WHERE thread_id = $3 AND status <> $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusDraft, time.Now(), threadID, models.PostStatusPublished)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkPublished(ctx context.Context, postID int64, externalID, replyToExternalID string) error {
	query := `
		UPDATE posts
		SET status = $1,
			external_id = $2,
			reply_to_external_id = NULLIF($3, ''),
			updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, externalID, replyToExternalID, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SetMediaStatus(ctx context.Context, tx *sql.Tx, postID int64, mediaStatus string) error {
	query := `
		UPDATE posts
		SET media_status = NULLIF($1, ''),
			updated_at = $2
		WHERE id = $3
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, mediaStatus, time.Now(), postID)
	} else {
		_, err = r.db.ExecContext(ctx, query, mediaStatus, time.Now(), postID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ClaimForPublish takes the publish claim on a thread anchor (the first item
// of a thread, or a standalone item). The claim is granted when no one holds
// it or the holder went stale, so a crashed worker never wedges a thread.
func (r *postRepository) ClaimForPublish(ctx context.Context, anchorID int64, at, staleBefore time.Time) (bool, error) {
	query := `
		UPDATE posts
		SET claimed_at = $1
		WHERE id = $2 AND (claimed_at IS NULL OR claimed_at < $3)
	`

	result, err := r.db.ExecContext(ctx, query, at, anchorID, staleBefore)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	return affected > 0, nil
}

func (r *postRepository) ReleaseClaim(ctx context.Context, anchorID int64) error {
	query := `UPDATE posts SET claimed_at = NULL WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, anchorID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListDue returns anchor items whose scheduled instant has passed and that
// no live worker has claimed. The requeue sweep feeds these back into the
// publish queue after missed triggers or crashed runs.
func (r *postRepository) ListDue(ctx context.Context, before, staleBefore time.Time) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE thread_position = 0
			AND scheduled_time IS NOT NULL
			AND scheduled_time <= $1
			AND status IN ($2, $3)
			AND (claimed_at IS NULL OR claimed_at < $4)
		ORDER BY scheduled_time ASC`

	rows, err := r.db.QueryContext(ctx, query, before, models.PostStatusQueued, models.PostStatusScheduled, staleBefore)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ListMediaPending returns items still waiting on media processing, for the
// sync job that advances their status from the platform's view.
func (r *postRepository) ListMediaPending(ctx context.Context) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE media_status IN ($1, $2)
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, models.MediaStatusPending, models.MediaStatusProcessing)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// slotConflict maps a unique violation on the slot index to ErrSlotConflict
// so callers can re-allocate instead of failing the request.
func slotConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrSlotConflict
	}
	return err
}
