package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConnectionClosed marks failures caused by losing the transport.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrShutdown is returned for operations on a channel that was shut down.
	ErrShutdown = errors.New("channel shut down")
)

// ConnectionError reports a transport failure.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a peer-side failure or a malformed peer message.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// TimeoutError reports an operation that did not complete in time.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// IsRetryable reports whether err is a transport failure caused by the
// underlying connection being closed or terminated. Peer-reported failures
// and timeouts are never retryable: the peer may already have executed the
// command.
func IsRetryable(err error) bool {
	if err == nil ||
		errors.Is(err, ErrShutdown) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var protoErr *ProtocolError
	var timeoutErr *TimeoutError
	if errors.As(err, &protoErr) || errors.As(err, &timeoutErr) {
		return false
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		return false
	}
	if errors.Is(connErr, ErrConnectionClosed) {
		return true
	}
	if connErr.Err == nil {
		return false
	}
	msg := strings.ToLower(connErr.Err.Error())
	return strings.Contains(msg, "closed") || strings.Contains(msg, "terminated")
}
