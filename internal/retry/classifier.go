// Package retry classifies upstream call failures into retry categories and
// applies category-specific backoff. It is consumed by capability adapters
// that sit behind the resilience core's breakers/router — the breaker,
// coordinator and router never retry a call themselves. The one adapter in
// this module that uses it, circuitbreaker.HTTPWrapper.DoWithRetry, runs the
// retry loop inside a single breaker Execute, so the breaker counts one
// outcome per retried call.
package retry

import (
	"context"
	"errors"
	"net"
)

// ErrorType buckets a failure by how (and whether) it should be retried.
type ErrorType int

const (
	Throttling ErrorType = iota
	Temporary
	Permanent
	Credentials
	Network
	ServiceUnavailable
)

func (t ErrorType) String() string {
	switch t {
	case Throttling:
		return "throttling"
	case Temporary:
		return "temporary"
	case Permanent:
		return "permanent"
	case Credentials:
		return "credentials"
	case Network:
		return "network"
	case ServiceUnavailable:
		return "service_unavailable"
	default:
		return "unknown"
	}
}

// Coded is implemented by adapter errors that carry a provider-native error
// code (e.g. an AWS/S3/DynamoDB exception name, an HTTP API's error field).
type Coded interface {
	ErrorCode() string
}

// HTTPStatus is implemented by adapter errors that carry the HTTP status
// code of the failed call, when no provider error code is available.
type HTTPStatus interface {
	StatusCode() int
}

// CredentialError is implemented by adapter errors produced by an
// authentication/credential failure.
type CredentialError interface {
	CredentialFailure() bool
}

// Classifier buckets adapter errors into an ErrorType using, in order: a
// credential-failure marker, a provider error code, an HTTP status code,
// then the Go network/deadline error types, defaulting to Temporary for
// anything unrecognized (matching the conservative default of the original
// classification this is grounded on).
type Classifier struct {
	throttlingCodes map[string]struct{}
	temporaryCodes  map[string]struct{}
	permanentCodes  map[string]struct{}
	credentialCodes map[string]struct{}
}

// NewClassifier returns a Classifier seeded with the documented default
// error-code buckets, covering the common AWS/cloud-provider exception
// names these fall into.
func NewClassifier() *Classifier {
	return &Classifier{
		throttlingCodes: toSet(
			"Throttling", "ThrottlingException",
			"ProvisionedThroughputExceededException", "RequestLimitExceeded",
			"TooManyRequestsException", "SlowDown", "RequestThrottled",
		),
		temporaryCodes: toSet(
			"InternalServerError", "InternalError", "ServiceUnavailable",
			"ServiceUnavailableException", "InternalServiceError",
			"InternalFailure", "RequestTimeout", "RequestTimeoutException",
		),
		permanentCodes: toSet(
			"ValidationException", "InvalidParameterValue",
			"InvalidParameterCombination", "MissingParameter",
			"ResourceNotFoundException", "ResourceNotFound", "NoSuchBucket",
			"NoSuchKey", "AccessDenied", "Forbidden", "UnauthorizedOperation",
			"InvalidUserID.NotFound", "InvalidGroupId.NotFound",
		),
		credentialCodes: toSet(
			"InvalidAccessKeyId", "SignatureDoesNotMatch",
			"TokenRefreshRequired", "ExpiredToken", "InvalidToken",
			"CredentialsNotFound",
		),
	}
}

func toSet(codes ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Classify buckets err. A nil error classifies as Temporary; callers only
// invoke this on a non-nil failure, but Classify never panics on nil.
func (c *Classifier) Classify(err error) ErrorType {
	if err == nil {
		return Temporary
	}

	var credErr CredentialError
	if errors.As(err, &credErr) && credErr.CredentialFailure() {
		return Credentials
	}

	var coded Coded
	if errors.As(err, &coded) {
		code := coded.ErrorCode()
		switch {
		case contains(c.throttlingCodes, code):
			return Throttling
		case contains(c.temporaryCodes, code):
			return Temporary
		case contains(c.permanentCodes, code):
			return Permanent
		case contains(c.credentialCodes, code):
			return Credentials
		}
	}

	var httpErr HTTPStatus
	if errors.As(err, &httpErr) {
		switch status := httpErr.StatusCode(); {
		case status == 503:
			return ServiceUnavailable
		case status == 429:
			return Throttling
		case status == 500 || status == 502 || status == 504:
			return Temporary
		case status == 400 || status == 403 || status == 404:
			return Permanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Network
	}

	return Temporary
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// ShouldRetry reports whether err's classification is worth a further
// attempt. Permanent and Credentials errors never are.
func (c *Classifier) ShouldRetry(err error) bool {
	switch c.Classify(err) {
	case Throttling, Temporary, Network, ServiceUnavailable:
		return true
	default:
		return false
	}
}
