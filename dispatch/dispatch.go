// Package dispatch runs transcription jobs on a bounded worker pool. Order
// of submission is order of pickup; concurrency never exceeds the worker
// count, and a full queue rejects immediately instead of blocking the
// recording path.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/audio"
	"murmur/log"
	"murmur/transcriber"
)

var (
	ErrQueueFull = errors.New("transcription queue is full")
	ErrTimeout   = errors.New("transcription timed out")
	ErrShutdown  = errors.New("dispatcher is shut down")
)

// Job carries one finished recording to the pool.
type Job struct {
	SessionID   uuid.UUID
	Audio       *audio.Buffer
	SubmittedAt time.Time
}

// Result is the terminal value of a job.
type Result struct {
	SessionID uuid.UUID
	Text      string
	Duration  float64
}

// Pending resolves exactly once, either with a result or an error.
type Pending struct {
	done chan struct{}
	once sync.Once
	res  Result
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(res Result, err error) {
	p.once.Do(func() {
		p.res = res
		p.err = err
		close(p.done)
	})
}

// Done is closed when the job has resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the job resolves.
func (p *Pending) Wait() (Result, error) {
	<-p.done
	return p.res, p.err
}

type Config struct {
	Workers    int
	QueueDepth int
	JobTimeout time.Duration
}

type queued struct {
	job     Job
	pending *Pending
}

// Dispatcher owns the worker goroutines and the engine lifecycle. The engine
// loads lazily on the first job so startup stays fast; a failed load is
// retried on the next job rather than poisoning the pool.
type Dispatcher struct {
	cfg    Config
	engine transcriber.Engine
	queue  chan queued
	wg     sync.WaitGroup

	loadMu sync.Mutex
	loaded bool

	mu     sync.Mutex
	closed bool
}

func New(engine transcriber.Engine, cfg Config) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1
	}
	d := &Dispatcher{
		cfg:    cfg,
		engine: engine,
		queue:  make(chan queued, cfg.QueueDepth),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Submit enqueues a job without blocking. ErrQueueFull means the backlog
// limit was hit; the caller decides what to tell the user.
func (d *Dispatcher) Submit(job Job) (*Pending, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrShutdown
	}
	p := newPending()
	select {
	case d.queue <- queued{job: job, pending: p}:
		d.mu.Unlock()
		return p, nil
	default:
		d.mu.Unlock()
		return nil, ErrQueueFull
	}
}

// Close stops accepting jobs, lets queued work drain, and waits for the
// workers until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for item := range d.queue {
		d.process(item)
	}
}

// ensureLoaded serializes engine loading across workers. The loaded flag is
// only set on success, so every job after a failure retries the load.
func (d *Dispatcher) ensureLoaded() error {
	d.loadMu.Lock()
	defer d.loadMu.Unlock()
	if d.loaded {
		return nil
	}
	if err := d.engine.Load(); err != nil {
		return err
	}
	d.loaded = true
	return nil
}

func (d *Dispatcher) process(item queued) {
	if err := d.ensureLoaded(); err != nil {
		log.Warnf("engine %s failed to load: %v", d.engine.Name(), err)
		item.pending.resolve(Result{}, err)
		return
	}

	job := item.job
	ctx := context.Background()
	var cancel context.CancelFunc
	if d.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.cfg.JobTimeout)
		defer cancel()
	}

	type outcome struct {
		res transcriber.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := d.engine.Transcribe(ctx, job.Audio.PCM, job.Audio.SampleRate)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			item.pending.resolve(Result{SessionID: job.SessionID}, out.err)
			return
		}
		item.pending.resolve(Result{
			SessionID: job.SessionID,
			Text:      out.res.Text,
			Duration:  job.Audio.Seconds(),
		}, nil)
	case <-ctx.Done():
		// The engine call is abandoned; a well-behaved engine honors ctx
		// and returns shortly after.
		log.Warnf("transcription for %s exceeded %s", job.SessionID, d.cfg.JobTimeout)
		item.pending.resolve(Result{SessionID: job.SessionID}, ErrTimeout)
	}
}
