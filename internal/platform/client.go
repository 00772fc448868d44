package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	config "github.com/threadlineapp/threadline/configs"
	"github.com/threadlineapp/threadline/internal/transfer"
)

const (
	createPostPath  = "/2/tweets"
	usersMePath     = "/2/users/me"
	mediaUploadPath = "/1.1/media/upload.json"
)

// Client talks to the platform API on behalf of a connected account.
// Access tokens are passed per call because every account has its own.
type Client interface {
	CreatePost(ctx context.Context, accessToken string, post *transfer.CreatePostRequest) (*transfer.CreatePostResponse, error)
	UploadMedia(ctx context.Context, accessToken string, media io.Reader, mediaType string) (*transfer.MediaUploadResponse, error)
	MediaStatus(ctx context.Context, accessToken, mediaID string) (*transfer.MediaUploadResponse, error)
	Me(ctx context.Context, accessToken string) (*transfer.PlatformUser, error)
}

type client struct {
	apiBaseURL    string
	uploadBaseURL string
	hc            *http.Client
}

func NewClient(cfg config.Config) Client {
	return &client{
		apiBaseURL:    cfg.PlatformAPIBaseURL,
		uploadBaseURL: cfg.PlatformUploadURL,
		hc:            &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) CreatePost(ctx context.Context, accessToken string, post *transfer.CreatePostRequest) (*transfer.CreatePostResponse, error) {
	jsonData, err := json.Marshal(post)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiBaseURL+createPostPath, bytes.NewBuffer(jsonData))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.hc.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var result transfer.CreatePostResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &result, nil
}

func (c *client) UploadMedia(ctx context.Context, accessToken string, media io.Reader, mediaType string) (*transfer.MediaUploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if _, err := io.Copy(part, media); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if err := writer.WriteField("media_category", mediaCategory(mediaType)); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if err := writer.Close(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.uploadBaseURL+mediaUploadPath, &buf)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, responseError(resp)
	}

	var result transfer.MediaUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &result, nil
}

func (c *client) MediaStatus(ctx context.Context, accessToken, mediaID string) (*transfer.MediaUploadResponse, error) {
	statusURL := fmt.Sprintf("%s%s?command=STATUS&media_id=%s", c.uploadBaseURL, mediaUploadPath, url.QueryEscape(mediaID))

	req, err := http.NewRequestWithContext(ctx, "GET", statusURL, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var result transfer.MediaUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &result, nil
}

func (c *client) Me(ctx context.Context, accessToken string) (*transfer.PlatformUser, error) {
	meURL := c.apiBaseURL + usersMePath + "?user.fields=profile_image_url"

	req, err := http.NewRequestWithContext(ctx, "GET", meURL, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.hc.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var result transfer.PlatformUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &result.Data, nil
}

// mediaCategory maps a sniffed MIME type to the upload category the platform
// expects. Unknown types fall back to image, the platform rejects them anyway.
func mediaCategory(mediaType string) string {
	switch mediaType {
	case "video/mp4", "video/quicktime":
		return "tweet_video"
	case "image/gif":
		return "tweet_gif"
	default:
		return "tweet_image"
	}
}
