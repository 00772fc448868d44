package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/internal/transfer"
)

type SettingsService interface {
	GetSettingsInfo(ctx context.Context, userID int64) (*models.Settings, error)
	UpdateSettings(ctx context.Context, userID int64, su *transfer.SettingsUpdate) error
}

type settingsService struct {
	sr repository.SettingsRepository
}

func NewSettingsService(sr repository.SettingsRepository) SettingsService {
	return &settingsService{
		sr: sr,
	}
}

// GetSettingsInfo returns the user's schedule settings, falling back to the
// defaults for users who never saved any.
func (s *settingsService) GetSettingsInfo(ctx context.Context, userID int64) (*models.Settings, error) {
	settings, isExist, err := s.sr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !isExist {
		return models.DefaultSettings(userID), nil
	}

	return settings, nil
}

func (s *settingsService) UpdateSettings(ctx context.Context, userID int64, su *transfer.SettingsUpdate) error {
	if su == nil {
		err := errors.New("settings data is nil")
		slog.Info(err.Error())
		return err
	}

	if su.PostsPerDay < 1 || su.PostsPerDay > 3 {
		err := errors.New("posts per day must be between 1 and 3")
		slog.Info(err.Error())
		return err
	}
	if su.WindowStartHour < 0 || su.WindowEndHour > 23 {
		err := errors.New("posting window hours must be between 0 and 23")
		slog.Info(err.Error())
		return err
	}
	if su.WindowStartHour >= su.WindowEndHour {
		err := errors.New("posting window must start before it ends")
		slog.Info(err.Error())
		return err
	}

	settings := models.Settings{
		UserID:          userID,
		PostsPerDay:     su.PostsPerDay,
		WindowStartHour: su.WindowStartHour,
		WindowEndHour:   su.WindowEndHour,
	}
	if _, err := s.sr.Upsert(ctx, &settings); err != nil {
		return err
	}
	return nil
}
