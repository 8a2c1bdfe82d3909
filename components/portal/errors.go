package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// SlowOperationMessage is shown when an engine call exceeds its timeout.
const SlowOperationMessage = "Verification is taking longer than expected. OCR processing can be slow. Please try again or use a smaller image file (max 2MB recommended)."

// ErrSlowOperation marks a long-running engine call that timed out.
var ErrSlowOperation = errors.New(SlowOperationMessage)

// FetchError is the normalized form of every backend failure.
type FetchError struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
	Timeout bool   `json:"timeout,omitempty"`
	Err     error  `json:"-"`
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NormalizeError converts any error into a FetchError. A nil error yields nil.
func NormalizeError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	out := &FetchError{Message: err.Error(), Err: err}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		out.Timeout = true
	}
	return out
}

// ErrorMessage formats a user-facing failure line for a page, including the
// HTTP status and detail when the backend supplied them.
func ErrorMessage(subject string, err error) string {
	fe := NormalizeError(err)
	if fe == nil {
		return ""
	}
	detail := strings.TrimSpace(fe.Message)
	if fe.Status > 0 {
		if detail == "" {
			return fmt.Sprintf("Failed to fetch %s (HTTP %d)", subject, fe.Status)
		}
		return fmt.Sprintf("Failed to fetch %s (HTTP %d): %s", subject, fe.Status, detail)
	}
	if detail == "" {
		return fmt.Sprintf("Failed to fetch %s", subject)
	}
	return fmt.Sprintf("Failed to fetch %s: %s", subject, detail)
}
