package clarifai

import (
	"errors"
	"fmt"

	"github.com/lemon-mint/structllm/llm"
)

var (
	ErrAPIKeyRequired    = errors.New("personal access token is required")
	ErrModelNameRequired = errors.New("model name is required")
	ErrScopeRequired     = errors.New("user id and app id are required")
	ErrInvalidModelURL   = errors.New("invalid model url")
)

// statusSuccess is the API's own success code, sent alongside HTTP 200.
const statusSuccess = 10000

// APIError is a failed API call. It unwraps to the llm sentinel matching
// the HTTP status.
type APIError struct {
	StatusCode  int
	Code        int
	Description string
	Details     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("clarifai: http %d", e.StatusCode)
	if e.Code != 0 {
		msg += fmt.Sprintf(", status %d", e.Code)
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e.StatusCode >= 200 && e.StatusCode < 300 {
		return llm.ErrInvalidResponse
	}
	return llm.ErrorByStatus(e.StatusCode)
}
