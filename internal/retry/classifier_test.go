package retry

import (
	"context"
	"errors"
	"testing"
)

type codedErr struct{ code string }

func (e codedErr) Error() string    { return "coded error: " + e.code }
func (e codedErr) ErrorCode() string { return e.code }

type httpErr struct{ status int }

func (e httpErr) Error() string   { return "http error" }
func (e httpErr) StatusCode() int { return e.status }

type credErr struct{}

func (credErr) Error() string            { return "bad credentials" }
func (credErr) CredentialFailure() bool { return true }

func TestClassifyByErrorCode(t *testing.T) {
	c := NewClassifier()
	cases := map[string]ErrorType{
		"ThrottlingException":  Throttling,
		"ServiceUnavailable":   Temporary,
		"AccessDenied":         Permanent,
		"ExpiredToken":         Credentials,
	}
	for code, want := range cases {
		got := c.Classify(codedErr{code: code})
		if got != want {
			t.Errorf("Classify(%q) = %v, want %v", code, got, want)
		}
	}
}

func TestClassifyByHTTPStatus(t *testing.T) {
	c := NewClassifier()
	cases := map[int]ErrorType{
		503: ServiceUnavailable,
		429: Throttling,
		500: Temporary,
		404: Permanent,
	}
	for status, want := range cases {
		got := c.Classify(httpErr{status: status})
		if got != want {
			t.Errorf("Classify(status=%d) = %v, want %v", status, got, want)
		}
	}
}

func TestClassifyCredentialFailureTakesPriority(t *testing.T) {
	c := NewClassifier()
	if got := c.Classify(credErr{}); got != Credentials {
		t.Errorf("expected Credentials, got %v", got)
	}
}

func TestClassifyDeadlineExceededIsNetwork(t *testing.T) {
	c := NewClassifier()
	if got := c.Classify(context.DeadlineExceeded); got != Network {
		t.Errorf("expected Network, got %v", got)
	}
}

func TestClassifyUnknownErrorDefaultsToTemporary(t *testing.T) {
	c := NewClassifier()
	if got := c.Classify(errors.New("mystery failure")); got != Temporary {
		t.Errorf("expected Temporary default, got %v", got)
	}
}

func TestShouldRetryRejectsPermanentAndCredentials(t *testing.T) {
	c := NewClassifier()
	if c.ShouldRetry(codedErr{code: "AccessDenied"}) {
		t.Error("expected permanent error not to be retryable")
	}
	if c.ShouldRetry(codedErr{code: "ExpiredToken"}) {
		t.Error("expected credential error not to be retryable")
	}
	if !c.ShouldRetry(codedErr{code: "ThrottlingException"}) {
		t.Error("expected throttling error to be retryable")
	}
}
