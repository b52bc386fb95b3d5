package sink

import (
	"fmt"
	"sync"
	"time"

	"murmur/clipboard"
	"murmur/session"
)

const clipboardWriteAttempts = 3

// Clipboard abstracts the system clipboard for tests.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Keystroker sends the paste chord to the focused window.
type Keystroker interface {
	SendPaste() error
}

// Paster copies the transcript to the clipboard, verifies the copy landed,
// sends the paste chord, and optionally restores the previous clipboard
// content afterwards. The mutex keeps concurrent deliveries from interleaving
// clipboard writes.
type Paster struct {
	clip    Clipboard
	keys    Keystroker
	restore bool
	mu      sync.Mutex

	// Delays give the window manager time to settle; zeroed in tests.
	PreDelay     time.Duration
	PostDelay    time.Duration
	RetryBackoff time.Duration
}

func NewPaster(clip Clipboard, keys Keystroker, restore bool) *Paster {
	return &Paster{
		clip:         clip,
		keys:         keys,
		restore:      restore,
		PreDelay:     100 * time.Millisecond,
		PostDelay:    300 * time.Millisecond,
		RetryBackoff: 50 * time.Millisecond,
	}
}

// NewSystemPaster wires the real clipboard and keystroke backends.
func NewSystemPaster(restore bool) *Paster {
	return NewPaster(systemClipboard{}, systemKeys{}, restore)
}

func (p *Paster) Name() string { return "paste" }

func (p *Paster) Deliver(text string, _ *session.Session) error {
	if text == "" {
		return &DeliveryError{Reason: ReasonEmptyText}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var prev string
	if p.restore {
		// If the current content cannot be read it cannot be restored
		// either, so abort before touching the clipboard.
		var err error
		prev, err = p.clip.Read()
		if err != nil {
			return &DeliveryError{Reason: ReasonClipboardFailed, Err: fmt.Errorf("saving clipboard: %w", err)}
		}
		defer func() {
			time.Sleep(p.PostDelay)
			if err := p.clip.Write(prev); err != nil {
				// Restoration is best effort; the transcript delivery
				// already succeeded or failed on its own merits.
				_ = err
			}
		}()
	}

	if err := p.writeVerified(text); err != nil {
		return err
	}

	time.Sleep(p.PreDelay)
	if err := p.keys.SendPaste(); err != nil {
		return &DeliveryError{Reason: ReasonKeystrokeFailed, Err: err}
	}
	return nil
}

// writeVerified retries the clipboard write and reads it back, because some
// clipboard managers drop writes that race with ownership changes.
func (p *Paster) writeVerified(text string) error {
	var lastErr error
	for attempt := 0; attempt < clipboardWriteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(p.RetryBackoff * time.Duration(attempt))
		}
		if err := p.clip.Write(text); err != nil {
			lastErr = err
			continue
		}
		got, err := p.clip.Read()
		if err == nil && got == text {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("verification mismatch")
		}
	}
	return &DeliveryError{Reason: ReasonClipboardFailed, Err: lastErr}
}

type systemClipboard struct{}

func (systemClipboard) Read() (string, error)   { return clipboard.Read() }
func (systemClipboard) Write(text string) error { return clipboard.Copy(text) }

type systemKeys struct{}

func (systemKeys) SendPaste() error { return clipboard.Paste() }
