package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// RateLimitedError signals an HTTP 429 from the provider. RetryAfter carries
// the server-provided minimum wait hint when one was present.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "rate limited"
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// ServerError signals a retryable 5xx response.
type ServerError struct {
	StatusCode int
	Err        error
}

func (e *ServerError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("server error %d", e.StatusCode)
}

func (e *ServerError) Unwrap() error { return e.Err }

// PermanentError signals a 4xx-class response (other than 429) that will not
// succeed on retry. Callers persist these to the untrackable ledger instead
// of retrying.
type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("permanent error %d", e.StatusCode)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err carries a RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err is safe to retry: rate limits, server
// errors, network timeouts, and connection-level failures. Permanent errors
// are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if IsRateLimited(err) {
		return true
	}
	var se *ServerError
	if errors.As(err, &se) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether the HTTP status code indicates a
// retryable condition.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
