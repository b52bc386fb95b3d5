package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/config"
	"murmur/dispatch"
	"murmur/guard"
	"murmur/log"
	"murmur/session"
	"murmur/sink"
)

const watchInterval = time.Second

const previewLen = 100

// Notifier surfaces short user-facing notices. The default implementation
// logs; a desktop build can swap in native notifications.
type Notifier func(title, message string)

type activeRec struct {
	sess  *session.Session
	token *guard.Token
}

// App coordinates the two hotkey sources over one capture device. Trigger
// handling is serialized per source by the hotkey goroutines; the shared
// active slot is the only cross-source state.
type App struct {
	cfg        config.Config
	guard      *guard.Guard
	recorder   *audio.Recorder
	dispatcher *dispatch.Dispatcher
	sinks      map[session.Source]sink.Sink
	notify     Notifier
	sound      bool

	mu     sync.Mutex
	active *activeRec

	wg sync.WaitGroup
}

func NewApp(cfg config.Config, g *guard.Guard, rec *audio.Recorder, disp *dispatch.Dispatcher, sinks map[session.Source]sink.Sink, notify Notifier) *App {
	if notify == nil {
		notify = func(title, message string) {
			log.Infof("notice: %s: %s", title, message)
		}
	}
	return &App{
		cfg:        cfg,
		guard:      g,
		recorder:   rec,
		dispatcher: disp,
		sinks:      sinks,
		notify:     notify,
		sound:      cfg.Sound.Enabled,
	}
}

// Start wires the duration watchdogs. The recorder's own expiry signal is the
// primary stop; the guard watch is the backstop for a lost keyup where the
// recorder never even started.
func (a *App) Start(stop <-chan struct{}) {
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-a.recorder.Expired():
				a.expireActive()
			}
		}
	}()
	a.guard.Watch(stop, watchInterval, a.reclaim)
}

// StartRecording handles a keydown from src. A busy device produces a notice
// and no session; the rejected press leaves no trace beyond the log line.
func (a *App) StartRecording(src session.Source) {
	tok, err := a.guard.Acquire(src)
	if err != nil {
		var busy *guard.BusyError
		if errors.As(err, &busy) {
			log.Warnf("%s trigger rejected: device held by %s", src, busy.HeldBy)
			a.notify("Recording busy", fmt.Sprintf("Already recording for %s", busy.HeldBy))
		}
		return
	}

	sess := session.New(src)
	sess.To(session.StateRecording)
	log.Transition(sess.ID.String(), src.String(), session.StateIdle.String(), session.StateRecording.String())

	if err := a.recorder.Start(); err != nil {
		sess.Fail(err.Error())
		a.guard.Release(tok)
		log.Failure(sess.ID.String(), src.String(), session.StateRecording.String(), err.Error())
		if a.sound {
			beep.PlayError()
		}
		var devErr *audio.DeviceError
		if errors.As(err, &devErr) && devErr.Kind == audio.DevicePermissionDenied {
			a.notify("Microphone unavailable", "Permission denied for audio capture")
		} else {
			a.notify("Microphone unavailable", err.Error())
		}
		return
	}

	a.mu.Lock()
	a.active = &activeRec{sess: sess, token: tok}
	a.mu.Unlock()

	if a.sound {
		beep.PlayStart()
	}
}

// StopRecording handles a keyup from src. A keyup from the non-owning source
// is dropped: releasing one chord must never cut off the other's recording.
func (a *App) StopRecording(src session.Source) {
	a.mu.Lock()
	rec := a.active
	if rec == nil || rec.sess.Source != src {
		a.mu.Unlock()
		if rec != nil {
			log.Warnf("stop from %s ignored: recording owned by %s", src, rec.sess.Source)
		}
		return
	}
	a.active = nil
	a.mu.Unlock()

	a.finishRecording(rec, false)
}

// expireActive fires when a capture hits the maximum duration. The partial
// audio is kept and still dispatched; the session itself is marked failed.
func (a *App) expireActive() {
	a.mu.Lock()
	rec := a.active
	a.active = nil
	a.mu.Unlock()
	if rec == nil {
		return
	}
	log.Warnf("recording for %s hit the %s limit", rec.sess.Source, a.cfg.MaxDuration())
	a.finishRecording(rec, true)
}

// reclaim is the guard watchdog callback: the token was already forcibly
// expired, so only the device teardown and dispatch remain.
func (a *App) reclaim(tok *guard.Token) {
	log.Warnf("forced release of capture token held by %s after %s", tok.Holder(), tok.Age().Round(time.Millisecond))
	a.mu.Lock()
	rec := a.active
	if rec != nil && rec.token == tok {
		a.active = nil
	} else {
		rec = nil
	}
	a.mu.Unlock()
	if rec != nil {
		a.finishRecording(rec, true)
	}
}

func (a *App) finishRecording(rec *activeRec, timedOut bool) {
	sess := rec.sess
	if a.sound {
		if timedOut {
			beep.PlayError()
		} else {
			beep.PlayEnd()
		}
	}

	buf, err := a.recorder.Stop()
	if !a.guard.Release(rec.token) && !timedOut {
		log.Warnf("capture token for %s was already released", sess.Source)
	}
	if err != nil {
		sess.Fail(err.Error())
		log.Failure(sess.ID.String(), sess.Source.String(), session.StateRecording.String(), err.Error())
		return
	}

	if timedOut {
		sess.Fail("recording timed out")
		log.Failure(sess.ID.String(), sess.Source.String(), session.StateRecording.String(), "recording timed out")
		a.notify("Recording stopped", fmt.Sprintf("Hit the %d second limit; transcribing what was captured", a.cfg.Recording.MaxDurationSeconds))
	}

	if buf.Seconds() < a.cfg.MinDuration().Seconds() {
		sess.Fail("recording too short")
		log.Infof("discarding %.2fs recording from %s", buf.Seconds(), sess.Source)
		return
	}

	sess.SetAudioSeconds(buf.Seconds())
	if !timedOut {
		sess.To(session.StateTranscribing)
		log.Transition(sess.ID.String(), sess.Source.String(), session.StateRecording.String(), session.StateTranscribing.String())
	}

	pending, err := a.dispatcher.Submit(dispatch.Job{
		SessionID:   sess.ID,
		Audio:       buf,
		SubmittedAt: time.Now(),
	})
	if err != nil {
		sess.Fail(err.Error())
		log.Failure(sess.ID.String(), sess.Source.String(), session.StateTranscribing.String(), err.Error())
		if a.sound {
			beep.PlayError()
		}
		if errors.Is(err, dispatch.ErrQueueFull) {
			a.notify("Transcription busy", "Too many recordings queued; this one was dropped")
		}
		return
	}

	a.wg.Add(1)
	go a.finishTranscription(sess, pending)
}

func (a *App) finishTranscription(sess *session.Session, pending *dispatch.Pending) {
	defer a.wg.Done()

	res, err := pending.Wait()
	if err != nil {
		sess.Fail(err.Error())
		log.Failure(sess.ID.String(), sess.Source.String(), session.StateTranscribing.String(), err.Error())
		if a.sound {
			beep.PlayError()
		}
		if errors.Is(err, dispatch.ErrTimeout) {
			a.notify("Transcription failed", "The engine took too long; the recording was dropped")
		} else {
			a.notify("Transcription failed", err.Error())
		}
		return
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		sess.To(session.StateCompleted)
		log.Infof("session %s: no speech detected", sess.ID)
		a.notify("No speech detected", "Nothing to deliver")
		return
	}

	// Salvage first: once the text is in transcribe_log.txt, a delivery
	// failure can no longer lose the words.
	log.TranscriptionText(text)

	out := a.sinks[sess.Source]
	err = out.Deliver(text, sess)
	sess.RecordOutcome(session.DeliveryOutcome{Sink: out.Name(), Err: err, At: time.Now()})
	log.Delivery(sess.ID.String(), out.Name(), err)
	if err != nil {
		sess.Fail(err.Error())
		if a.sound {
			beep.PlayError()
		}
		var dErr *sink.DeliveryError
		reason := err.Error()
		if errors.As(err, &dErr) {
			reason = dErr.Reason
		}
		a.notify("Delivery failed", reason+"; text kept in transcribe_log.txt")
		return
	}

	sess.To(session.StateCompleted)
	log.Transition(sess.ID.String(), sess.Source.String(), session.StateTranscribing.String(), session.StateCompleted.String())
	a.notify("Transcribed", preview(text))
}

// Recording reports whether a capture is active, for the status surface.
func (a *App) Recording() (session.Source, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return 0, false
	}
	return a.active.sess.Source, true
}

// Shutdown stops any active recording without dispatching it, drains the
// queue, and waits for in-flight deliveries until ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	rec := a.active
	a.active = nil
	a.mu.Unlock()
	if rec != nil {
		rec.sess.Fail("shutdown")
		a.recorder.Stop()
		a.guard.Release(rec.token)
	}

	if err := a.dispatcher.Close(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen]) + "..."
}
