package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Sentinel errors for the failure kinds a caller can act on. Adapters
// classify every transport or parsing failure into one of these before it
// crosses the provider boundary.
var (
	// ErrUnreachable indicates the backend refused or timed out at the transport level.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrAuthentication indicates the provider rejected the credential.
	ErrAuthentication = errors.New("authentication failed")
	// ErrRateLimited indicates the provider signaled throttling.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedResponse indicates the backend returned a response that
	// cannot be parsed per its protocol contract.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrUnsupportedProvider indicates a configuration references a provider
	// kind the factory does not recognize.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrMemberNotFound indicates an operation referenced an id absent from
	// the registry (or present but not eligible for the operation).
	ErrMemberNotFound = errors.New("team member not found")
)

// ProviderError wraps an error from a provider operation with the provider
// kind, the operation name, and the HTTP status when one was observed.
type ProviderError struct {
	Provider ProviderType
	Op       string
	Err      error
	HTTPCode int
}

// Error returns the error message.
func (e *ProviderError) Error() string {
	base := fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	if e.HTTPCode != 0 {
		base = fmt.Sprintf("%s (HTTP %d)", base, e.HTTPCode)
	}
	return base
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider ProviderType, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// NewProviderErrorWithCode creates a ProviderError carrying an HTTP status code.
func NewProviderErrorWithCode(provider ProviderType, op string, err error, httpCode int) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err, HTTPCode: httpCode}
}

// Attempt records one failed member in a fallback chain.
type Attempt struct {
	MemberID string
	Err      error
}

// AllFailedError reports that every member of a fallback chain failed. It
// carries the ordered per-member causes so callers can present the detail
// list on demand rather than a generic failure.
type AllFailedError struct {
	Attempts []Attempt
}

// Error returns a summary naming each failed member.
func (e *AllFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "no enabled team members available"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.MemberID, a.Err)
	}
	return fmt.Sprintf("all %d team members failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// ClassifyHTTPStatus maps an HTTP status code to a sentinel error, or nil for
// success codes and codes with no specific classification.
func ClassifyHTTPStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuthentication
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		return ErrUnreachable
	default:
		return nil
	}
}

// Classify folds a raw transport or SDK error into one of the sentinel kinds.
// Errors that already carry a sentinel pass through untouched; everything
// else is matched on type and, as a last resort, message content (the status
// line most SDKs embed in their error strings).
func Classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrUnreachable),
		errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrMalformedResponse):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "eof"):
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "invalid x-api-key"):
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "unmarshal"),
		strings.Contains(msg, "unexpected end of json"),
		strings.Contains(msg, "invalid character"):
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	default:
		return err
	}
}

// IsUnreachable checks if the error indicates a transport-level failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsAuthentication checks if the error indicates a rejected credential.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsRateLimited checks if the error indicates throttling.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsMemberNotFound checks if the error indicates a missing registry member.
func IsMemberNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound)
}
