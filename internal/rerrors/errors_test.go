package rerrors

import (
	"errors"
	"testing"
)

func TestWrappedErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	if !errors.Is(Upstream(cause), ErrUpstream) {
		t.Error("expected Upstream() to wrap ErrUpstream")
	}
	if !errors.Is(Unavailable("search", "no local capability"), ErrUnavailable) {
		t.Error("expected Unavailable() to wrap ErrUnavailable")
	}
	if !errors.Is(ConfigError("cache", "local"), ErrConfigError) {
		t.Error("expected ConfigError() to wrap ErrConfigError")
	}
	if !errors.Is(AllProvidersDown(cause), ErrAllProvidersDown) {
		t.Error("expected AllProvidersDown() to wrap ErrAllProvidersDown")
	}
	if !errors.Is(DegradationExhausted("search", "hybrid_search"), ErrDegradationExhausted) {
		t.Error("expected DegradationExhausted() to wrap ErrDegradationExhausted")
	}
}

func TestAllProvidersDownIncludesLastError(t *testing.T) {
	cause := errors.New("timeout contacting bedrock")
	err := AllProvidersDown(cause)
	if !errors.Is(err, ErrAllProvidersDown) {
		t.Fatal("expected wrapped sentinel")
	}
	if got := err.Error(); got == ErrAllProvidersDown.Error() {
		t.Error("expected message to include the underlying cause")
	}
}
