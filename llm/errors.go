package llm

import (
	"errors"
	"net/http"
)

var (
	ErrUnknown         = errors.New("unknown error")
	ErrNoResponse      = errors.New("no response")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidResponse = errors.New("invalid response")
	ErrAuthentication  = errors.New("authentication error")
	ErrPermission      = errors.New("permission error")
	ErrNotFound        = errors.New("not found")
	ErrRateLimit       = errors.New("rate limit error")
	ErrOverloaded      = errors.New("overloaded")
	ErrInternalServer  = errors.New("internal server error")
)

// ErrorByStatus maps an HTTP status code to one of the sentinel errors above.
func ErrorByStatus(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrInvalidRequest
	case status == http.StatusUnauthorized:
		return ErrAuthentication
	case status == http.StatusForbidden:
		return ErrPermission
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimit
	case status == http.StatusServiceUnavailable, status == 529:
		return ErrOverloaded
	case status >= 500:
		return ErrInternalServer
	}
	return ErrUnknown
}
