package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when an inbound notification carries the wrong shared secret.
	ErrAuth = errors.New("notification token mismatch")
	// ErrMalformedNotification covers undecodable or schema-violating envelopes.
	ErrMalformedNotification = errors.New("malformed notification")
	// ErrConfiguration is returned when provider credentials or the topic are missing.
	ErrConfiguration = errors.New("sync configuration error")
	// ErrCursorNotFound is returned by cursor stores for unknown mailboxes.
	ErrCursorNotFound = errors.New("sync cursor not found")
	// ErrNoCursor means a manual sync was requested for a mailbox with no baseline.
	ErrNoCursor = errors.New("mailbox has no history cursor; register a watch first")
	// ErrCursorExpired means the provider no longer has history for the start cursor.
	ErrCursorExpired = errors.New("history cursor expired")
	// ErrMessageGone means the provider reports the message as deleted or inaccessible.
	ErrMessageGone = errors.New("message no longer available")
	// ErrMessageNotFound is returned by message stores for unknown ids.
	ErrMessageNotFound = errors.New("message not found")
	// ErrTransientFetch matches any *TransientFetchError via errors.Is.
	ErrTransientFetch = errors.New("transient fetch error")
)

// TransientFetchError wraps a failed provider call (timeout, rate limit, transport).
type TransientFetchError struct {
	Op        string
	MailboxID string
	Err       error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Op, e.MailboxID, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

func (e *TransientFetchError) Is(target error) bool {
	return target == ErrTransientFetch
}
