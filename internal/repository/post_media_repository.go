package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/threadlineapp/threadline/internal/models"
)

type PostMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error
	ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error)
}

type postMediaRepository struct {
	db *sql.DB
}

func NewPostMediaRepository(db *sql.DB) PostMediaRepository {
	return &postMediaRepository{db: db}
}

func (r *postMediaRepository) Create(ctx context.Context, tx *sql.Tx, pm *models.PostMedia) error {
	query := `
		INSERT INTO post_media (post_id, storage_key, file_url, media_type, external_media_id, display_order)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id
	`

	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, pm.PostID, pm.StorageKey, pm.FileURL, pm.MediaType, pm.ExternalMediaID, pm.DisplayOrder).Scan(&pm.ID)
	} else {
		err = r.db.QueryRowContext(ctx, query, pm.PostID, pm.StorageKey, pm.FileURL, pm.MediaType, pm.ExternalMediaID, pm.DisplayOrder).Scan(&pm.ID)
	}

	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

// ListByPostID returns an item's media in display order, the order they are
// attached to the outbound post.
func (r *postMediaRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PostMedia, error) {
	query := `
		SELECT id, post_id, storage_key, file_url, media_type, COALESCE(external_media_id, ''), display_order, created_at
		FROM post_media
		WHERE post_id = $1
		ORDER BY display_order
	`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var postMedias []*models.PostMedia
	for rows.Next() {
		var pm models.PostMedia
		if err := rows.Scan(&pm.ID, &pm.PostID, &pm.StorageKey, &pm.FileURL, &pm.MediaType, &pm.ExternalMediaID, &pm.DisplayOrder, &pm.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		postMedias = append(postMedias, &pm)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return postMedias, nil
}

