// Package sink delivers finished transcripts. Two implementations exist:
// Store writes a markdown note to disk, Paster types the text into the
// focused application via the clipboard.
package sink

import (
	"fmt"

	"murmur/session"
)

// Delivery failure reasons, stable for log grepping.
const (
	ReasonInsufficientSpace = "insufficient disk space"
	ReasonWriteFailed       = "write failed"
	ReasonClipboardFailed   = "clipboard failed"
	ReasonKeystrokeFailed   = "keystroke failed"
	ReasonEmptyText         = "empty text"
)

// DeliveryError wraps a sink failure with a stable reason. The transcript is
// already in the salvage log by the time a sink runs, so callers report the
// reason and move on.
type DeliveryError struct {
	Reason string
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Sink consumes a transcript exactly once per session.
type Sink interface {
	Name() string
	Deliver(text string, sess *session.Session) error
}
