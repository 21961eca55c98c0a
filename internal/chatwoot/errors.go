package chatwoot

import "fmt"

// APIError is returned when Chatwoot answers with a non-2xx status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatwoot %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
