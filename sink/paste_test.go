package sink

import (
	"errors"
	"sync"
	"testing"

	"murmur/session"
)

type fakeClipboard struct {
	mu        sync.Mutex
	content   string
	readErr   error
	writeErr  error
	writeFail int // fail this many writes, then succeed
	writes    []string
}

func (f *fakeClipboard) Read() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.content, nil
}

func (f *fakeClipboard) Write(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.writeFail > 0 {
		f.writeFail--
		return errors.New("transient clipboard error")
	}
	f.content = text
	f.writes = append(f.writes, text)
	return nil
}

func (f *fakeClipboard) current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content
}

type fakeKeys struct {
	mu     sync.Mutex
	err    error
	pastes int
	seen   []string // clipboard content at the moment of each paste
	clip   *fakeClipboard
}

func (f *fakeKeys) SendPaste() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pastes++
	if f.clip != nil {
		f.seen = append(f.seen, f.clip.current())
	}
	return nil
}

func newTestPaster(clip *fakeClipboard, keys *fakeKeys, restore bool) *Paster {
	p := NewPaster(clip, keys, restore)
	p.PreDelay = 0
	p.PostDelay = 0
	p.RetryBackoff = 0
	return p
}

func pasteSession() *session.Session {
	sess := session.New(session.SourcePaste)
	sess.To(session.StateRecording)
	sess.To(session.StateTranscribing)
	return sess
}

func TestDeliverPastesAndRestores(t *testing.T) {
	clip := &fakeClipboard{content: "previous content"}
	keys := &fakeKeys{clip: clip}
	p := newTestPaster(clip, keys, true)

	if err := p.Deliver("transcribed words", pasteSession()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if keys.pastes != 1 {
		t.Fatalf("pastes = %d, want 1", keys.pastes)
	}
	if keys.seen[0] != "transcribed words" {
		t.Fatalf("clipboard at paste time = %q", keys.seen[0])
	}
	if clip.current() != "previous content" {
		t.Fatalf("clipboard after delivery = %q, want restored", clip.current())
	}
}

func TestDeliverNoRestoreKeepsText(t *testing.T) {
	clip := &fakeClipboard{content: "previous content"}
	keys := &fakeKeys{clip: clip}
	p := newTestPaster(clip, keys, false)

	if err := p.Deliver("transcribed words", pasteSession()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if clip.current() != "transcribed words" {
		t.Fatalf("clipboard = %q, want transcript kept", clip.current())
	}
}

func TestDeliverReadFailureAborts(t *testing.T) {
	clip := &fakeClipboard{content: "precious", readErr: errors.New("no clipboard owner")}
	keys := &fakeKeys{clip: clip}
	p := newTestPaster(clip, keys, true)

	err := p.Deliver("text", pasteSession())
	var dErr *DeliveryError
	if !errors.As(err, &dErr) || dErr.Reason != ReasonClipboardFailed {
		t.Fatalf("err = %v, want clipboard failure", err)
	}
	if keys.pastes != 0 {
		t.Fatal("must not paste when the old clipboard cannot be saved")
	}
	if clip.content != "precious" {
		t.Fatalf("clipboard = %q, must be untouched", clip.content)
	}
}

func TestDeliverWriteRetriesThenSucceeds(t *testing.T) {
	clip := &fakeClipboard{content: "old", writeFail: 2}
	keys := &fakeKeys{clip: clip}
	p := newTestPaster(clip, keys, true)

	if err := p.Deliver("eventually", pasteSession()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if keys.seen[0] != "eventually" {
		t.Fatalf("clipboard at paste time = %q", keys.seen[0])
	}
}

func TestDeliverWriteFailsAllRetries(t *testing.T) {
	clip := &fakeClipboard{content: "old", writeErr: errors.New("clipboard locked")}
	keys := &fakeKeys{clip: clip}
	p := newTestPaster(clip, keys, true)

	err := p.Deliver("text", pasteSession())
	var dErr *DeliveryError
	if !errors.As(err, &dErr) || dErr.Reason != ReasonClipboardFailed {
		t.Fatalf("err = %v, want clipboard failure", err)
	}
	if keys.pastes != 0 {
		t.Fatal("must not paste after write failure")
	}
}

func TestDeliverKeystrokeFailureStillRestores(t *testing.T) {
	clip := &fakeClipboard{content: "previous"}
	keys := &fakeKeys{clip: clip, err: errors.New("uinput unavailable")}
	p := newTestPaster(clip, keys, true)

	err := p.Deliver("text", pasteSession())
	var dErr *DeliveryError
	if !errors.As(err, &dErr) || dErr.Reason != ReasonKeystrokeFailed {
		t.Fatalf("err = %v, want keystroke failure", err)
	}
	if clip.current() != "previous" {
		t.Fatalf("clipboard = %q, want restored after failure", clip.current())
	}
}

func TestDeliverEmptyText(t *testing.T) {
	clip := &fakeClipboard{}
	keys := &fakeKeys{clip: clip}
	p := newTestPaster(clip, keys, true)

	err := p.Deliver("", pasteSession())
	var dErr *DeliveryError
	if !errors.As(err, &dErr) || dErr.Reason != ReasonEmptyText {
		t.Fatalf("err = %v, want empty-text failure", err)
	}
	if keys.pastes != 0 {
		t.Fatal("must not paste empty text")
	}
}
