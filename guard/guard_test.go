package guard

import (
	"errors"
	"sync"
	"testing"
	"time"

	"murmur/session"
)

func TestAcquireRelease(t *testing.T) {
	g := New(time.Minute)

	tok, err := g.Acquire(session.SourceSave)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tok.Holder() != session.SourceSave {
		t.Fatalf("holder = %v, want save", tok.Holder())
	}

	if holder, ok := g.Holder(); !ok || holder != session.SourceSave {
		t.Fatalf("Holder() = %v, %v", holder, ok)
	}

	if !g.Release(tok) {
		t.Fatal("Release returned false for live token")
	}
	if _, ok := g.Holder(); ok {
		t.Fatal("slot should be empty after release")
	}
}

func TestAcquireWhileHeld(t *testing.T) {
	g := New(time.Minute)

	tok, err := g.Acquire(session.SourceSave)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := g.Acquire(session.SourcePaste); err == nil {
		t.Fatal("expected busy error for second source")
	} else {
		var busy *BusyError
		if !errors.As(err, &busy) {
			t.Fatalf("error type = %T, want *BusyError", err)
		}
		if busy.HeldBy != session.SourceSave {
			t.Fatalf("HeldBy = %v, want save", busy.HeldBy)
		}
	}

	// Same source cannot reacquire either.
	if _, err := g.Acquire(session.SourceSave); err == nil {
		t.Fatal("expected busy error for same source")
	}

	g.Release(tok)
	if _, err := g.Acquire(session.SourcePaste); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	for i := 0; i < 100; i++ {
		g := New(time.Minute)
		var wg sync.WaitGroup
		wins := make(chan session.Source, 2)

		for _, src := range []session.Source{session.SourceSave, session.SourcePaste} {
			wg.Add(1)
			go func(src session.Source) {
				defer wg.Done()
				if _, err := g.Acquire(src); err == nil {
					wins <- src
				}
			}(src)
		}
		wg.Wait()
		close(wins)

		var winners []session.Source
		for w := range wins {
			winners = append(winners, w)
		}
		if len(winners) != 1 {
			t.Fatalf("round %d: %d winners, want exactly 1", i, len(winners))
		}
	}
}

func TestReleaseStaleToken(t *testing.T) {
	g := New(time.Minute)

	tok, _ := g.Acquire(session.SourceSave)
	g.Release(tok)
	if g.Release(tok) {
		t.Fatal("second release of same token should return false")
	}

	tok2, _ := g.Acquire(session.SourcePaste)
	if g.Release(tok) {
		t.Fatal("stale token must not release another holder's slot")
	}
	if holder, ok := g.Holder(); !ok || holder != session.SourcePaste {
		t.Fatalf("holder = %v, %v; stale release must not free slot", holder, ok)
	}
	g.Release(tok2)
}

func TestReleaseNil(t *testing.T) {
	g := New(time.Minute)
	if g.Release(nil) {
		t.Fatal("nil release should return false")
	}
}

func TestForceExpire(t *testing.T) {
	g := New(10 * time.Millisecond)

	tok, _ := g.Acquire(session.SourceSave)
	if got := g.ForceExpire(); got != nil {
		t.Fatal("token should not expire before maxHold")
	}

	time.Sleep(20 * time.Millisecond)
	got := g.ForceExpire()
	if got != tok {
		t.Fatalf("ForceExpire = %v, want the live token", got)
	}
	if _, ok := g.Holder(); ok {
		t.Fatal("slot should be empty after forced expiry")
	}

	// The expired token is now stale.
	if g.Release(tok) {
		t.Fatal("release of expired token should return false")
	}
}

func TestForceExpireEmptySlot(t *testing.T) {
	g := New(time.Millisecond)
	if got := g.ForceExpire(); got != nil {
		t.Fatalf("ForceExpire on empty slot = %v, want nil", got)
	}
}

func TestWatchExpiresToken(t *testing.T) {
	g := New(10 * time.Millisecond)
	tok, _ := g.Acquire(session.SourcePaste)

	expired := make(chan *Token, 1)
	stop := make(chan struct{})
	defer close(stop)
	g.Watch(stop, 5*time.Millisecond, func(et *Token) { expired <- et })

	select {
	case got := <-expired:
		if got != tok {
			t.Fatalf("expired token = %v, want %v", got, tok)
		}
	case <-time.After(time.Second):
		t.Fatal("watchdog never expired the token")
	}

	if _, err := g.Acquire(session.SourceSave); err != nil {
		t.Fatalf("Acquire after watchdog expiry: %v", err)
	}
}
