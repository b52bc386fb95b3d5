package guard

import (
	"fmt"
	"sync"
	"time"

	"murmur/session"
)

// BusyError is returned by Acquire when another source already holds the
// capture device. The caller surfaces it as a transient notice; it is never
// retried automatically.
type BusyError struct {
	HeldBy session.Source
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("recording device busy (held by %s)", e.HeldBy)
}

// Token is proof of exclusive access to the capture device. Exactly one live
// token exists at any instant.
type Token struct {
	holder   session.Source
	issuedAt time.Time
	seq      uint64
}

func (t *Token) Holder() session.Source { return t.holder }
func (t *Token) IssuedAt() time.Time    { return t.issuedAt }
func (t *Token) Age() time.Duration     { return time.Since(t.issuedAt) }

// Guard arbitrates the single capture device between trigger sources. The
// slot is a single mutex-protected value; acquisition and release do no I/O
// and complete in bounded time.
type Guard struct {
	maxHold time.Duration

	mu   sync.Mutex
	live *Token
	seq  uint64
}

// New creates a guard whose tokens expire after maxHold.
func New(maxHold time.Duration) *Guard {
	return &Guard{maxHold: maxHold}
}

// Acquire claims the device for src. It fails with *BusyError while any
// token is live, including one held by src itself: a source cannot start two
// overlapping recordings.
func (g *Guard) Acquire(src session.Source) (*Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.live != nil {
		return nil, &BusyError{HeldBy: g.live.holder}
	}
	g.seq++
	t := &Token{holder: src, issuedAt: time.Now(), seq: g.seq}
	g.live = t
	return t, nil
}

// Release frees the slot if tok is the live token. A stale or foreign token
// is a no-op; the false return lets the caller log the protocol violation.
func (g *Guard) Release(tok *Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if tok == nil || g.live != tok {
		return false
	}
	g.live = nil
	return true
}

// ForceExpire releases the live token if it has been held past maxHold and
// returns it, or nil if the slot is empty or within bounds. The caller
// synthesizes the stop-and-release sequence for the expired holder.
func (g *Guard) ForceExpire() *Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.live == nil || time.Since(g.live.issuedAt) < g.maxHold {
		return nil
	}
	t := g.live
	g.live = nil
	return t
}

// Holder reports the current token holder, if any.
func (g *Guard) Holder() (session.Source, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.live == nil {
		return 0, false
	}
	return g.live.holder, true
}

// Watch runs the expiry watchdog until stop is closed. onExpire runs outside
// the guard's critical section, once per expired token. No recording can hold
// the device indefinitely even if the hotkey release event is lost.
func (g *Guard) Watch(stop <-chan struct{}, interval time.Duration, onExpire func(*Token)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if tok := g.ForceExpire(); tok != nil {
					onExpire(tok)
				}
			}
		}
	}()
}
