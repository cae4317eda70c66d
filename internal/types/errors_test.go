package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	err := NewAppError(ErrStorage, "failed to open database", errors.New("disk full"))
	if err.Error() != "failed to open database" {
		t.Errorf("Error() = %q", err.Error())
	}

	detailed := NewAppErrorWithDetails(ErrAPICall, "API request failed", "status 503: overloaded", nil)
	if detailed.Error() != "API request failed: status 503: overloaded" {
		t.Errorf("Error() = %q", detailed.Error())
	}
}

func TestCodeOf(t *testing.T) {
	base := NewAppError(ErrAPIRateLimit, "rate limit", nil)

	if got := CodeOf(base); got != ErrAPIRateLimit {
		t.Errorf("CodeOf = %v", got)
	}
	// Wrapped AppErrors still classify.
	wrapped := fmt.Errorf("context: %w", base)
	if got := CodeOf(wrapped); got != ErrAPIRateLimit {
		t.Errorf("CodeOf(wrapped) = %v", got)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %v", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %v", got)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewAppError(ErrNetwork, "request failed", cause)
	if !errors.Is(err, cause) {
		t.Error("AppError must unwrap to its cause")
	}
}
