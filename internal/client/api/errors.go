package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind tells the sync engine whether a failed delivery may be retried.
type ErrorKind int

const (
	// Transient failures (timeouts, 5xx, network) are retried with backoff
	Transient ErrorKind = iota
	// Permanent failures (rejected payload, not found, conflict) are not retried
	Permanent
	// Unauthorized failures (401, 403) belong to the session, not to the mutation.
	// Delivery pauses without spending an attempt until the credentials change.
	Unauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case Permanent:
		return "permanent"
	case Unauthorized:
		return "unauthorized"
	}
	return "transient"
}

// TransportError is returned by Client for every failed delivery.
type TransportError struct {
	Err        error
	Message    string
	Kind       ErrorKind
	StatusCode int           // 0 если ответа не было
	Delay      time.Duration // из заголовка Retry-After, если он был
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Message != "" {
			return fmt.Sprintf("%s error (%d): %s", e.Kind, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("%s error (%d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying cannot help.
func (e *TransportError) Permanent() bool {
	return e.Kind == Permanent
}

// SessionRejected reports whether the server refused the credentials.
func (e *TransportError) SessionRejected() bool {
	return e.Kind == Unauthorized
}

// RetryAfter returns the delay the server asked for, or zero.
func (e *TransportError) RetryAfter() time.Duration {
	return e.Delay
}

// IsPermanent checks if err is a permanent TransportError
func IsPermanent(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == Permanent
}

// IsTransient checks if err is a transient TransportError
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == Transient
}

// classifyStatus maps a non-2xx HTTP status to an ErrorKind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests,
		code >= 500:
		return Transient
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return Unauthorized
	case code >= 400:
		return Permanent
	}
	// 1xx/3xx без редиректа считаем сбоем сервера
	return Transient
}

// parseRetryAfter understands both the seconds and the HTTP-date forms.
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
