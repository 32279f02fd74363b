package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nexmath/nexmath/pkg/api"
)

// MapHTTPError converts a non-2xx backend response into an APIError.
// Backend failures are the gateway's problem, not the student's, so they
// become model errors; only 429 is passed on as a rate limit.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend authentication failed"
		}
		return api.NewModelError(message)

	case resp.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "backend rejected the request"
		}
		return api.NewModelError(message)

	case resp.StatusCode == http.StatusNotFound:
		if message == "" {
			message = "backend model or endpoint not found"
		}
		return api.NewModelError(message)

	case resp.StatusCode >= http.StatusInternalServerError:
		if message == "" {
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		}
		return api.NewModelError(message)

	default:
		if message == "" {
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", resp.StatusCode)
		}
		return api.NewModelError(message)
	}
}

// MapNetworkError converts a transport error into an APIError.
func MapNetworkError(err error) *api.APIError {
	return api.NewModelError(fmt.Sprintf("backend connection error: %s", err.Error()))
}

// ExtractErrorMessage returns error.message from a Chat Completions error
// body, or "" when the body has none.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return ""
}
