package audio

import (
	"errors"
	"sync"
	"time"
)

// Buffer holds one captured PCM segment. It is exclusively owned: the
// recorder hands it off on Stop and keeps no reference.
type Buffer struct {
	PCM        []byte
	SampleRate int
	Frames     uint64
}

// Seconds returns the audio length of the buffer.
func (b *Buffer) Seconds() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames) / float64(b.SampleRate)
}

// Recorder captures one bounded audio segment per session. Start opens the
// device and returns once the stream is running; capture then proceeds on the
// backend's thread until Stop, which tears the device down on every path.
type Recorder struct {
	ctx    Context
	device *DeviceInfo
	cfg    CaptureConfig
	maxDur time.Duration

	expired chan struct{}

	mu      sync.Mutex
	capture CaptureDevice
	buf     []byte
	frames  uint64
	timer   *time.Timer
	running bool
	gen     uint64
}

// NewRecorder creates a recorder bound to one device choice. maxDur bounds
// every capture; hitting it freezes the buffer and signals Expired.
func NewRecorder(ctx Context, device *DeviceInfo, cfg CaptureConfig, maxDur time.Duration) *Recorder {
	return &Recorder{
		ctx:     ctx,
		device:  device,
		cfg:     cfg,
		maxDur:  maxDur,
		expired: make(chan struct{}, 1),
	}
}

// Expired signals whenever a capture runs past the maximum duration. The
// recorder self-stops buffering at that point; the watchdog path performs the
// device teardown and token release through the normal stop sequence.
func (r *Recorder) Expired() <-chan struct{} { return r.expired }

// Start opens the input device and begins buffering. Only the token holder
// may call it; the orchestrator sequences that.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture != nil {
		return errors.New("recorder already running")
	}

	capture, err := r.ctx.NewCapture(r.device, r.cfg)
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			return devErr
		}
		return classifyDeviceErr(err)
	}

	r.buf = r.buf[:0]
	r.frames = 0
	capture.SetCallback(func(data []byte, frameCount uint32) {
		r.mu.Lock()
		if r.running {
			r.buf = append(r.buf, data...)
			r.frames += uint64(frameCount)
		}
		r.mu.Unlock()
	})

	if err := capture.Start(); err != nil {
		capture.ClearCallback()
		capture.Close()
		return classifyDeviceErr(err)
	}

	r.capture = capture
	r.running = true
	r.gen++
	gen := r.gen
	r.timer = time.AfterFunc(r.maxDur, func() { r.expireNow(gen) })
	return nil
}

// expireNow freezes the buffer at the maximum duration. Already-captured
// audio is kept and handed out by the following Stop. The generation check
// keeps a late timer from touching a capture it does not belong to.
func (r *Recorder) expireNow(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.capture == nil {
		return
	}
	r.running = false
	select {
	case r.expired <- struct{}{}:
	default:
	}
}

// Stop halts capture and returns the buffer, transferring ownership to the
// caller. The device handle is closed before Stop returns, on every path.
func (r *Recorder) Stop() (*Buffer, error) {
	r.mu.Lock()
	capture := r.capture
	if capture == nil {
		r.mu.Unlock()
		return nil, errors.New("recorder not running")
	}
	r.running = false
	r.capture = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	// An unread expiry signal belongs to this capture. Drop it here, or a
	// keyup racing the expiry consumer would carry it into the next one.
	select {
	case <-r.expired:
	default:
	}
	r.mu.Unlock()

	// Teardown outside the lock: the data callback takes r.mu and the
	// backend may wait for in-flight callbacks during Stop.
	capture.Stop()
	capture.ClearCallback()
	capture.Close()

	r.mu.Lock()
	pcm := r.buf
	frames := r.frames
	r.buf = nil
	r.frames = 0
	r.mu.Unlock()

	return &Buffer{PCM: pcm, SampleRate: int(r.cfg.SampleRate), Frames: frames}, nil
}

// Recording reports whether a capture is currently buffering.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
