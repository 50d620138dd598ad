package generation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind string

const (
	// KindTransport means no response reached the client.
	KindTransport Kind = "transport"
	// KindBadStatus means the service answered with a non-success status.
	KindBadStatus Kind = "bad_status"
	// KindMalformedResponse means a success status with a body that is not the expected JSON.
	KindMalformedResponse Kind = "malformed_response"
	// KindEmptyResult means a success status with zero images.
	KindEmptyResult Kind = "empty_result"
)

const maxBodySnippet = 512

// Error is the single failure type returned by every backend.
type Error struct {
	Kind      Kind
	Status    int
	Message   string
	RequestID string
	// Body holds at most 512 bytes of the raw response for diagnostics.
	Body string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "generation %s", e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown to the person who asked for the generation.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindTransport:
		return "Could not reach the generation service. Check your connection and try again."
	case KindBadStatus:
		if msg := strings.TrimSpace(e.Message); msg != "" {
			return msg
		}
		if text := http.StatusText(e.Status); text != "" {
			return fmt.Sprintf("Generation failed: %s.", text)
		}
		return "Generation failed."
	case KindMalformedResponse:
		return "The server returned an unexpected response."
	case KindEmptyResult:
		return "No images were returned. Try again."
	default:
		return "Generation failed."
	}
}

// Retryable reports whether repeating the same request may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindEmptyResult, KindMalformedResponse:
		return true
	case KindBadStatus:
		return e.Status == http.StatusTooManyRequests || e.Status >= 500
	}
	return false
}

// IsRetryable reports whether err is a generation failure worth retrying.
func IsRetryable(err error) bool {
	var genErr *Error
	return errors.As(err, &genErr) && genErr.Retryable()
}

// KindOf returns the failure kind of err, or "" if err is not a generation error.
func KindOf(err error) Kind {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return ""
}

func truncate(raw []byte) string {
	if len(raw) <= maxBodySnippet {
		return string(raw)
	}
	return string(raw[:maxBodySnippet])
}
