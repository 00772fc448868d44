package models

import "time"

// Settings is the per-user posting schedule. PostsPerDay selects the fixed
// queue slot hours; the window hours bound the free-form "schedule manually"
// flow only. The client's timezone travels with each request and is never
// stored here.
type Settings struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"user_id"`
	PostsPerDay     int       `db:"posts_per_day" json:"posts_per_day"`
	WindowStartHour int       `db:"window_start_hour" json:"window_start_hour"`
	WindowEndHour   int       `db:"window_end_hour" json:"window_end_hour"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

const (
	DefaultPostsPerDay     = 3
	DefaultWindowStartHour = 8
	DefaultWindowEndHour   = 20
)

// DefaultSettings is what a user runs with until they touch the settings page.
func DefaultSettings(userID int64) *Settings {
	return &Settings{
		UserID:          userID,
		PostsPerDay:     DefaultPostsPerDay,
		WindowStartHour: DefaultWindowStartHour,
		WindowEndHour:   DefaultWindowEndHour,
	}
}
