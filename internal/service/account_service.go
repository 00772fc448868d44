package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	config "github.com/threadlineapp/threadline/configs"
	"github.com/threadlineapp/threadline/internal/models"
	"github.com/threadlineapp/threadline/internal/platform"
	"github.com/threadlineapp/threadline/internal/repository"
	"github.com/threadlineapp/threadline/pkg/utils"
)

var platformEndpoint = oauth2.Endpoint{
	AuthURL:  "https://twitter.com/i/oauth2/authorize",
	TokenURL: "https://api.twitter.com/2/oauth2/token",
}

type AccountService interface {
	AuthURL(state, verifier string) string
	LoginCallback(ctx context.Context, code, verifier string) (int64, error)
	AccessToken(ctx context.Context, accountID int64) (*models.SocialAccount, string, error)
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Delete(ctx context.Context, userID, accountID int64) error
	RefreshToken(ctx context.Context, acc *models.SocialAccount) error
}

type accountService struct {
	cfg    config.Config
	sa     repository.SocialAccountRepository
	u      repository.UserRepository
	client platform.Client
}

func NewAccountService(
	cfg config.Config,
	sa repository.SocialAccountRepository,
	u repository.UserRepository,
	client platform.Client) AccountService {
	return &accountService{
		cfg:    cfg,
		sa:     sa,
		u:      u,
		client: client,
	}
}

func (s *accountService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.PlatformClientID,
		ClientSecret: s.cfg.PlatformClientSecret,
		RedirectURL:  s.cfg.PlatformRedirectURI,
		Scopes:       []string{"tweet.read", "tweet.write", "users.read", "media.write", "offline.access"},
		Endpoint:     platformEndpoint,
	}
}

// AuthURL builds the PKCE authorization URL. The verifier must be the same
// one later passed to LoginCallback; the handler keeps it in a short-lived
// cookie between the two steps.
func (s *accountService) AuthURL(state, verifier string) string {
	return s.oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
}

// LoginCallback exchanges the authorization code, fetches the platform
// profile, and upserts both the user and the linked account. Tokens are
// stored encrypted. Returns the local user id for the session cookie.
func (s *accountService) LoginCallback(ctx context.Context, code, verifier string) (int64, error) {
	if code == "" {
		err := errors.New("code is empty")
		slog.Info(err.Error())
		return 0, err
	}

	oauth2Config := s.oauthConfig()
	if oauth2Config.ClientID == "" || oauth2Config.ClientSecret == "" || oauth2Config.RedirectURL == "" {
		err := errors.New("OAuth2 configuration is incomplete")
		slog.Info(err.Error())
		return 0, err
	}

	token, err := oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	userInfo, err := s.client.Me(ctx, token.AccessToken)
	if err != nil {
		return 0, err
	}

	var userID int64

	user, isExist, err := s.u.GetByPlatformUserID(ctx, userInfo.ID)
	if err != nil {
		return 0, err
	}

	if !isExist {
		userID, err = s.u.Create(ctx, nil, &models.User{
			PlatformUserID: userInfo.ID,
			Username:       userInfo.Username,
			Name:           userInfo.Name,
			ProfilePicture: userInfo.ProfileImageURL,
		})
		if err != nil {
			slog.Info(err.Error())
			return 0, err
		}
	} else {
		userID = user.ID
		user.Username = userInfo.Username
		user.Name = userInfo.Name
		user.ProfilePicture = userInfo.ProfileImageURL
		if err := s.u.Update(ctx, user); err != nil {
			slog.Info(err.Error())
		}
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return 0, err
	}

	encryptedRefreshToken, err := utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return 0, err
	}

	accountInfo := &models.SocialAccount{
		UserID:          userID,
		AccountID:       userInfo.ID,
		AccountName:     userInfo.Name,
		AccountUsername: userInfo.Username,
		ProfilePicture:  userInfo.ProfileImageURL,
		AccessToken:     encryptedAccessToken,
		RefreshToken:    encryptedRefreshToken,
		TokenExpiresAt:  token.Expiry,
	}

	if _, err := s.sa.Upsert(ctx, nil, accountInfo); err != nil {
		return 0, err
	}

	return userID, nil
}

// AccessToken resolves a usable decrypted access token for the account,
// refreshing first when the stored one is expired or about to expire.
func (s *accountService) AccessToken(ctx context.Context, accountID int64) (*models.SocialAccount, string, error) {
	acc, err := s.sa.GetByID(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	if acc == nil {
		err = errors.New("social account doesn't exist")
		slog.Info(err.Error())
		return nil, "", err
	}

	if time.Until(acc.TokenExpiresAt) < time.Minute {
		if err := s.RefreshToken(ctx, acc); err != nil {
			return nil, "", err
		}
		acc, err = s.sa.GetByID(ctx, accountID)
		if err != nil {
			return nil, "", err
		}
		if acc == nil {
			err = errors.New("social account doesn't exist")
			slog.Info(err.Error())
			return nil, "", err
		}
	}

	accessToken, err := utils.Decrypt(acc.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, "", err
	}

	return acc, accessToken, nil
}

func (s *accountService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, errors.New("Error getting social accounts")
	}

	return accounts, nil
}

func (s *accountService) Delete(ctx context.Context, userID, accountID int64) error {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return err
	}

	if accountID == 0 {
		err = errors.New("AccountID is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}

	if !isValid {
		err = errors.New("Social account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	err = s.sa.Remove(ctx, accountID)
	if err != nil {
		return errors.New("Error removing account Info")
	}

	return nil
}

// RefreshToken trades the stored refresh token for fresh credentials and
// persists them. An empty refresh token in the response keeps the stored
// one, the platform does not always rotate it.
func (s *accountService) RefreshToken(ctx context.Context, acc *models.SocialAccount) error {
	decryptedRefreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	source := s.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: decryptedRefreshToken})

	token, err := source.Token()
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	var encryptedRefreshToken string
	if token.RefreshToken != "" {
		encryptedRefreshToken, err = utils.Encrypt([]byte(token.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
	}

	updated := models.SocialAccount{
		AccessToken:    encryptedAccessToken,
		RefreshToken:   encryptedRefreshToken,
		TokenExpiresAt: token.Expiry,
	}

	return s.sa.SetToken(ctx, acc.ID, &updated)
}
