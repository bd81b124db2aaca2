package llm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ModelBackendError reports a transport-level failure talking to a model
// backend. Body carries the response body for diagnosis.
type ModelBackendError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ModelBackendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s backend: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s backend: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func (e *ModelBackendError) Unwrap() error { return e.Err }

// IsModelBackendError reports whether err is a *ModelBackendError.
func IsModelBackendError(err error) bool {
	var mbe *ModelBackendError
	return errors.As(err, &mbe)
}

const maxErrorBody = 64 << 10

// backendError builds a ModelBackendError from a failed request. raw may be
// nil when no response arrived.
func backendError(provider string, raw *http.Response, err error) *ModelBackendError {
	mbe := &ModelBackendError{Provider: provider, Err: err}
	if raw == nil || raw.StatusCode < http.StatusBadRequest {
		return mbe
	}
	mbe.StatusCode = raw.StatusCode
	if raw.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(raw.Body, maxErrorBody))
		_ = raw.Body.Close()
		mbe.Body = string(body)
	}
	return mbe
}
