package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	mverrors "mathviz/internal/errors"
)

// ErrBodyTooLarge is returned when a response exceeds the caller's limit.
var ErrBodyTooLarge = errors.New("response body too large")

const maxErrorSnippet = 512

// StatusError carries a non-2xx status and the start of the response body.
type StatusError struct {
	Code    int
	Snippet string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Snippet)
}

// ReadBody drains resp.Body up to limit bytes. A non-2xx status becomes a
// *StatusError, wrapped as transient for 429 and 5xx so callers can retry;
// a numeric Retry-After header is carried along.
// limit <= 0 disables the size check.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, limit)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	snippet := strings.TrimSpace(string(data))
	if len(snippet) > maxErrorSnippet {
		snippet = snippet[:maxErrorSnippet] + "..."
	}
	statusErr := &StatusError{Code: resp.StatusCode, Snippet: snippet}
	if isBreakerFailureStatus(resp.StatusCode) {
		retryAfter, _ := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
		return nil, &mverrors.TransientError{
			Err:        statusErr,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Message:    statusErr.Error(),
		}
	}
	return nil, statusErr
}
