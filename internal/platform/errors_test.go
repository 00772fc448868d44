package platform

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsContentRejected(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"bad request", &APIError{StatusCode: http.StatusBadRequest}, true},
		{"forbidden", &APIError{StatusCode: http.StatusForbidden}, true},
		{"unprocessable entity", &APIError{StatusCode: http.StatusUnprocessableEntity}, true},
		{"unauthorized", &APIError{StatusCode: http.StatusUnauthorized}, false},
		{"rate limited", &APIError{StatusCode: http.StatusTooManyRequests}, false},
		{"server error", &APIError{StatusCode: http.StatusInternalServerError}, false},
		{"bad gateway", &APIError{StatusCode: http.StatusBadGateway}, false},
		{"wrapped api error", fmt.Errorf("create post: %w", &APIError{StatusCode: http.StatusForbidden}), true},
		{"plain error", errors.New("connection refused"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rejected, IsContentRejected(tt.err))
		})
	}
}

func TestResponseError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusForbidden,
		Body:       io.NopCloser(strings.NewReader(`{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content."}`)),
	}

	err := responseError(resp)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Forbidden", apiErr.Code)
	assert.Contains(t, apiErr.Detail, "duplicate content")
	assert.True(t, IsContentRejected(err))
}

func TestResponseErrorNonJSONBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader("<html>502</html>")),
	}

	err := responseError(resp)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Detail)
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 403, Code: "Forbidden", Detail: "duplicate content"}
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "duplicate content")

	bare := &APIError{StatusCode: 500}
	assert.Contains(t, bare.Error(), "500")
}
