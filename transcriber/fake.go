package transcriber

import (
	"context"
	"sync"
)

// Fake is a scriptable engine for tests.
type Fake struct {
	mu      sync.Mutex
	text    string
	err     error
	loadErr error
	block   chan struct{}
	loads   int
	calls   int
}

func NewFake(text string, err error) *Fake {
	return &Fake{text: text, err: err}
}

func (f *Fake) Name() string { return "fake" }

// SetLoadErr makes the next Load call fail once.
func (f *Fake) SetLoadErr(err error) {
	f.mu.Lock()
	f.loadErr = err
	f.mu.Unlock()
}

// SetBlock gates Transcribe on ch. The call does not observe ctx, so a
// never-closed gate exercises the caller's timeout handling.
func (f *Fake) SetBlock(ch chan struct{}) {
	f.mu.Lock()
	f.block = ch
	f.mu.Unlock()
}

func (f *Fake) SetResult(text string, err error) {
	f.mu.Lock()
	f.text = text
	f.err = err
	f.mu.Unlock()
}

func (f *Fake) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		err := f.loadErr
		f.loadErr = nil
		return err
	}
	return nil
}

func (f *Fake) Transcribe(_ context.Context, pcm []byte, sampleRate int) (Result, error) {
	f.mu.Lock()
	f.calls++
	text, err, block := f.text, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text:     text,
		Duration: float64(len(pcm)/2) / float64(sampleRate),
	}, nil
}
