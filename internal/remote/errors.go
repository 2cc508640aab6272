package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes for remote calls. Callers branch on these with errors.Is;
// the wrapped message carries status code and body for logs.
var (
	ErrNetwork     = errors.New("network failure")
	ErrAuth        = errors.New("authentication failure")
	ErrValidation  = errors.New("validation failure")
	ErrRateLimited = errors.New("rate limited")
	ErrServerFault = errors.New("server fault")
	ErrNotFound    = errors.New("not found")
)

// classifyStatus maps a non-2xx response to the failure taxonomy.
func classifyStatus(statusCode int, body []byte) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: remote API error [%d]: %s", ErrAuth, statusCode, string(body))
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: remote API error [%d]: %s", ErrNotFound, statusCode, string(body))
	case statusCode == http.StatusUnprocessableEntity || statusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: remote API error [%d]: %s", ErrValidation, statusCode, string(body))
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: remote API error [%d]: %s", ErrRateLimited, statusCode, string(body))
	case statusCode >= 500:
		return fmt.Errorf("%w: remote API error [%d]: %s", ErrServerFault, statusCode, string(body))
	default:
		return fmt.Errorf("remote API error [%d]: %s", statusCode, string(body))
	}
}
