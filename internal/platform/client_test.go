package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlineapp/threadline/internal/transfer"
)

func testClient(srv *httptest.Server) *client {
	return &client{apiBaseURL: srv.URL, uploadBaseURL: srv.URL, hc: srv.Client()}
}

func TestCreatePostReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		var req transfer.CreatePostRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "second item", req.Text)
		require.NotNil(t, req.Reply)
		assert.Equal(t, "100", req.Reply.InReplyToPostID)
		require.NotNil(t, req.Media)
		assert.Equal(t, []string{"m-1"}, req.Media.MediaIDs)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(transfer.CreatePostResponse{
			Data: transfer.CreatedPost{ID: "101", Text: "second item"},
		})
	}))
	defer srv.Close()

	resp, err := testClient(srv).CreatePost(context.Background(), "token-123", &transfer.CreatePostRequest{
		Text:  "second item",
		Media: &transfer.PostMedia{MediaIDs: []string{"m-1"}},
		Reply: &transfer.PostReply{InReplyToPostID: "100"},
	})
	require.NoError(t, err)
	assert.Equal(t, "101", resp.Data.ID)
}

func TestCreatePostRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(transfer.PlatformErrorResponse{
			Title:  "Forbidden",
			Detail: "You are not allowed to create a Tweet with duplicate content.",
		})
	}))
	defer srv.Close()

	resp, err := testClient(srv).CreatePost(context.Background(), "token-123", &transfer.CreatePostRequest{Text: "dup"})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, IsContentRejected(err))
}

func TestMediaStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/1.1/media/upload.json", r.URL.Path)
		assert.Equal(t, "STATUS", r.URL.Query().Get("command"))
		assert.Equal(t, "710511363345354753", r.URL.Query().Get("media_id"))

		json.NewEncoder(w).Encode(transfer.MediaUploadResponse{
			MediaIDString: "710511363345354753",
			ProcessingInfo: &transfer.MediaProcessingInfo{
				State:       "succeeded",
				ProgressPct: 100,
			},
		})
	}))
	defer srv.Close()

	resp, err := testClient(srv).MediaStatus(context.Background(), "token-123", "710511363345354753")
	require.NoError(t, err)
	require.NotNil(t, resp.ProcessingInfo)
	assert.Equal(t, "succeeded", resp.ProcessingInfo.State)
}

func TestUploadMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tweet_video", r.FormValue("media_category"))

		file, _, err := r.FormFile("media")
		require.NoError(t, err)
		defer file.Close()

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(transfer.MediaUploadResponse{
			MediaIDString: "710511363345354753",
			ProcessingInfo: &transfer.MediaProcessingInfo{
				State:          "pending",
				CheckAfterSecs: 5,
			},
		})
	}))
	defer srv.Close()

	resp, err := testClient(srv).UploadMedia(context.Background(), "token-123", strings.NewReader("fake mp4 bytes"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "710511363345354753", resp.MediaIDString)
	assert.Equal(t, "pending", resp.ProcessingInfo.State)
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/users/me", r.URL.Path)
		json.NewEncoder(w).Encode(transfer.PlatformUserResponse{
			Data: transfer.PlatformUser{ID: "12", Username: "jack", Name: "Jack"},
		})
	}))
	defer srv.Close()

	user, err := testClient(srv).Me(context.Background(), "token-123")
	require.NoError(t, err)
	assert.Equal(t, "12", user.ID)
	assert.Equal(t, "jack", user.Username)
}

func TestMediaCategory(t *testing.T) {
	assert.Equal(t, "tweet_video", mediaCategory("video/mp4"))
	assert.Equal(t, "tweet_video", mediaCategory("video/quicktime"))
	assert.Equal(t, "tweet_gif", mediaCategory("image/gif"))
	assert.Equal(t, "tweet_image", mediaCategory("image/jpeg"))
	assert.Equal(t, "tweet_image", mediaCategory(""))
}
