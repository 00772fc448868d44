package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/threadlineapp/threadline/internal/transfer"
)

// APIError is a non-2xx answer from the platform, with whatever detail the
// error body carried.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("platform api: status %d (%s): %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("platform api: status %d (%s)", e.StatusCode, e.Code)
}

// IsContentRejected reports whether the platform refused the content itself:
// duplicate post, policy violation, malformed request. Retrying the same
// content cannot succeed. Auth failures (401) and rate limits (429) are
// deliberately excluded, those pass with different timing or credentials.
func IsContentRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func responseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body transfer.PlatformErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Title
		apiErr.Detail = body.Detail
		if apiErr.Detail == "" && len(body.Errors) > 0 {
			apiErr.Detail = body.Errors[0].Message
		}
	}

	return apiErr
}
