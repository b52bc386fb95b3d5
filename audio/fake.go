package audio

import (
	"sync"
	"time"
)

const (
	fakeFrameSize     = 1024
	fakeBytesPerFrame = 2 // 16-bit mono
)

// FakeContext replays a PCM buffer as capture data for tests. The buffer
// loops for as long as the capture runs; a nil buffer produces no frames.
type FakeContext struct {
	pcm      []byte
	interval time.Duration

	mu       sync.Mutex
	startErr error
	openErr  error
	last     *FakeCapture
}

func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{pcm: pcm, interval: time.Millisecond}
}

// FailOpen makes the next NewCapture call fail.
func (f *FakeContext) FailOpen(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

// FailStart makes the next capture's Start call fail.
func (f *FakeContext) FailStart(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

// LastCapture returns the most recently opened capture, for teardown checks.
func (f *FakeContext) LastCapture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake mic"}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		err := f.openErr
		f.openErr = nil
		return nil, err
	}
	c := &FakeCapture{pcm: f.pcm, interval: f.interval, startErr: f.startErr}
	f.startErr = nil
	f.last = c
	return c, nil
}

func (f *FakeContext) Close() {}

type FakeCapture struct {
	pcm      []byte
	interval time.Duration
	startErr error

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	closed   bool
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake mic" }

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.stopCh = make(chan struct{})
	f.feedDone = make(chan struct{})

	go func() {
		defer close(f.feedDone)
		pos := 0
		for {
			select {
			case <-f.stopCh:
				return
			case <-time.After(f.interval):
			}
			if len(f.pcm) == 0 {
				continue
			}
			end := pos + fakeFrameSize*fakeBytesPerFrame
			if end > len(f.pcm) {
				end = len(f.pcm)
			}
			chunk := make([]byte, end-pos)
			copy(chunk, f.pcm[pos:end])
			pos = end
			if pos >= len(f.pcm) {
				pos = 0
			}
			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb != nil {
				cb(chunk, uint32(len(chunk)/fakeBytesPerFrame))
			}
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	if f.stopCh == nil {
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	<-f.feedDone
}

func (f *FakeCapture) Close() {
	f.Stop()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Closed reports whether the device handle was released.
func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
