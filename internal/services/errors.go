package services

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError reports that the workflow engine rejected a call or could not
// be reached. StatusCode is 0 when no response was received.
type UpstreamError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("n8n API error: %s", e.Message)
	}
	text := http.StatusText(e.StatusCode)
	if e.Message == "" || e.Message == text {
		return fmt.Sprintf("n8n API error: %d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("n8n API error: %d %s: %s", e.StatusCode, text, e.Message)
}

// NotFound reports whether the engine answered 404.
func (e *UpstreamError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsUpstreamError unwraps err into an *UpstreamError.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream, true
	}
	return nil, false
}
