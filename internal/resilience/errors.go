package resilience

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError marks a failure worth retrying: a workbook locked by
// another process, a file caught mid-write, or a 429/5xx from the remote
// OCR provider.
type TransientError struct {
	Err    error
	Status int // HTTP status for remote sources, else 0
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error, status int) error {
	return &TransientError{Err: err, Status: status}
}

// busyMarkers are substrings of errors that lost their errno on the way up
// through the xlsx reader or an HTTP client.
var busyMarkers = []string{
	"resource temporarily unavailable",
	"device or resource busy",
	"being used by another process",
	"sharing violation",
	"zip: not a valid zip file", // workbook still being copied into place
	"unexpected eof",
	"connection reset by peer",
	"i/o timeout",
}

// IsTransient reports whether err is a TransientError or looks like a
// passing condition on a file or connection.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	for _, target := range []error{io.ErrUnexpectedEOF, syscall.EBUSY, syscall.EAGAIN, syscall.EINTR, syscall.ECONNRESET} {
		if errors.Is(err, target) {
			return true
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
