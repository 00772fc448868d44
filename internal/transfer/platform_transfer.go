package transfer

// Request/response shapes for the platform's v2 post API and v1.1 media API.

type CreatePostRequest struct {
	Text  string     `json:"text"`
	Media *PostMedia `json:"media,omitempty"`
	Reply *PostReply `json:"reply,omitempty"`
}

type PostMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type PostReply struct {
	InReplyToPostID string `json:"in_reply_to_tweet_id"`
}

type CreatePostResponse struct {
	Data CreatedPost `json:"data"`
}

type CreatedPost struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type PlatformErrorResponse struct {
	Title  string          `json:"title"`
	Detail string          `json:"detail"`
	Type   string          `json:"type"`
	Errors []PlatformError `json:"errors"`
}

type PlatformError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MediaUploadResponse is returned by both the upload and STATUS commands of
// the media endpoint. ProcessingInfo is only present for async media (video).
type MediaUploadResponse struct {
	MediaID        int64                `json:"media_id"`
	MediaIDString  string               `json:"media_id_string"`
	Size           int64                `json:"size"`
	ExpiresAfter   int                  `json:"expires_after_secs"`
	ProcessingInfo *MediaProcessingInfo `json:"processing_info,omitempty"`
}

type MediaProcessingInfo struct {
	State          string            `json:"state"`
	CheckAfterSecs int               `json:"check_after_secs"`
	ProgressPct    int               `json:"progress_percent"`
	Error          *MediaUploadError `json:"error,omitempty"`
}

type MediaUploadError struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type PlatformUserResponse struct {
	Data PlatformUser `json:"data"`
}

type PlatformUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}
