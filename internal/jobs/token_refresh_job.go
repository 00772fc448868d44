package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/internal/service"
)

type TokenRefreshJob struct {
	sr repository.SocialAccountRepository
	ac service.AccountService
}

func NewTokenRefreshJob(
	sr repository.SocialAccountRepository,
	ac service.AccountService) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr: sr,
		ac: ac,
	}
}

// RefreshTokens renews access tokens that expire within the next half hour,
// so publish runs never start with a token about to die mid-thread.
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListByTimeInterval(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.ac.RefreshToken(ctx, acc); err != nil {
				slog.Info("Unable to refresh tokens for account " + acc.AccountUsername)
			}
		}(acc)
	}

	wg.Wait()
}
