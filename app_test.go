package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/audio"
	"murmur/config"
	"murmur/dispatch"
	"murmur/guard"
	"murmur/hotkey"
	"murmur/session"
	"murmur/sink"
	"murmur/transcriber"
)

type fakeSink struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (f *fakeSink) Name() string { return "fakesink" }

func (f *fakeSink) Deliver(text string, _ *session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSink) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type harness struct {
	app     *App
	store   *sink.Store
	paste   *fakeSink
	guard   *guard.Guard
	engine  *transcriber.Fake
	notices chan string
	stop    chan struct{}
}

type harnessOpts struct {
	pcm      []byte
	text     string
	engErr   error
	maxDur   time.Duration
	minMs    int
	pasteErr error
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	if opts.maxDur == 0 {
		opts.maxDur = time.Minute
	}

	cfg := config.Default()
	cfg.Sound.Enabled = false
	cfg.Recording.MinDurationMs = opts.minMs
	cfg.Recording.MaxDurationSeconds = int(opts.maxDur / time.Second)

	ctx := audio.NewFakeContext(opts.pcm)
	recorder := audio.NewRecorder(ctx, nil, audio.CaptureConfig{SampleRate: 16000, Channels: 1}, opts.maxDur)

	engine := transcriber.NewFake(opts.text, opts.engErr)
	dispatcher := dispatch.New(engine, dispatch.Config{Workers: 2, QueueDepth: 4, JobTimeout: time.Second})

	base := t.TempDir()
	store, err := sink.NewStore(filepath.Join(base, "notes"), filepath.Join(base, "archive"))
	if err != nil {
		t.Fatal(err)
	}
	paste := &fakeSink{err: opts.pasteErr}

	g := guard.New(opts.maxDur + time.Second)
	notices := make(chan string, 16)
	app := NewApp(cfg, g, recorder, dispatcher, map[session.Source]sink.Sink{
		session.SourceSave:  store,
		session.SourcePaste: paste,
	}, func(title, _ string) { notices <- title })

	stop := make(chan struct{})
	app.Start(stop)
	t.Cleanup(func() {
		close(stop)
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		app.Shutdown(shutCtx)
	})

	return &harness{app: app, store: store, paste: paste, guard: g, engine: engine, notices: notices, stop: stop}
}

func (h *harness) waitNotice(t *testing.T, title string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-h.notices:
			if got == title {
				return
			}
		case <-deadline:
			t.Fatalf("never saw notice %q", title)
		}
	}
}

func (h *harness) noNotice(t *testing.T, title string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case got := <-h.notices:
			if got == title {
				t.Fatalf("unexpected notice %q", title)
			}
		case <-deadline:
			return
		}
	}
}

func somePCM() []byte { return make([]byte, 1<<20) }

func TestSaveFlowWritesNote(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), text: "hello world"})

	h.app.StartRecording(session.SourceSave)
	time.Sleep(10 * time.Millisecond) // capture a few frames
	h.app.StopRecording(session.SourceSave)

	h.waitNotice(t, "Transcribed")

	notes, err := h.store.Notes()
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(notes))
	}
	data, err := os.ReadFile(notes[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Fatalf("note missing transcript: %q", string(data))
	}
}

func TestPasteFlowUsesPasteSink(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), text: "dictated text"})

	h.app.StartRecording(session.SourcePaste)
	time.Sleep(10 * time.Millisecond)
	h.app.StopRecording(session.SourcePaste)

	h.waitNotice(t, "Transcribed")

	if got := h.paste.delivered(); len(got) != 1 || got[0] != "dictated text" {
		t.Fatalf("paste sink got %v", got)
	}
	if notes, _ := h.store.Notes(); len(notes) != 0 {
		t.Fatalf("save sink must not receive paste sessions, got %d notes", len(notes))
	}
}

func TestHotkeyEventsDriveRecording(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), text: "typed by voice"})

	hk := hotkey.NewFake()
	go watchHotkey(h.stop, hk, session.SourceSave, h.app)

	hk.SimKeydown()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := h.app.Recording(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("keydown never started a recording")
		}
		time.Sleep(time.Millisecond)
	}

	time.Sleep(10 * time.Millisecond)
	hk.SimKeyup()
	h.waitNotice(t, "Transcribed")

	notes, err := h.store.Notes()
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(notes))
	}
}

func TestSecondTriggerRejectedWhileRecording(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), text: "first wins"})

	h.app.StartRecording(session.SourceSave)
	h.app.StartRecording(session.SourcePaste)
	h.waitNotice(t, "Recording busy")

	time.Sleep(10 * time.Millisecond)
	h.app.StopRecording(session.SourceSave)
	h.waitNotice(t, "Transcribed")

	if notes, _ := h.store.Notes(); len(notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(notes))
	}
	if got := h.paste.delivered(); len(got) != 0 {
		t.Fatalf("rejected trigger produced a delivery: %v", got)
	}
}

func TestStopFromOtherSourceIgnored(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), text: "still mine"})

	h.app.StartRecording(session.SourceSave)
	time.Sleep(10 * time.Millisecond)

	h.app.StopRecording(session.SourcePaste)
	if _, ok := h.app.Recording(); !ok {
		t.Fatal("foreign keyup must not stop the recording")
	}

	h.app.StopRecording(session.SourceSave)
	h.waitNotice(t, "Transcribed")
}

func TestTimeoutDeliversPartialAudio(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), text: "partial words", maxDur: 50 * time.Millisecond})

	h.app.StartRecording(session.SourceSave)
	h.waitNotice(t, "Recording stopped")
	h.waitNotice(t, "Transcribed")

	notes, _ := h.store.Notes()
	if len(notes) != 1 {
		t.Fatalf("notes = %d; timed-out recording must still be delivered", len(notes))
	}

	// The slot is free for the next recording.
	if _, ok := h.app.Recording(); ok {
		t.Fatal("recording still active after timeout")
	}
	h.app.StartRecording(session.SourcePaste)
	if src, ok := h.app.Recording(); !ok || src != session.SourcePaste {
		t.Fatal("device not reusable after timeout")
	}
	h.app.StopRecording(session.SourcePaste)
}

func TestTooShortRecordingDiscarded(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: nil, text: "should not appear", minMs: 500})

	h.app.StartRecording(session.SourceSave)
	h.app.StopRecording(session.SourceSave)

	h.noNotice(t, "Transcribed", 50*time.Millisecond)
	if h.engine.Calls() != 0 {
		t.Fatalf("engine called %d times for a too-short recording", h.engine.Calls())
	}
	if notes, _ := h.store.Notes(); len(notes) != 0 {
		t.Fatalf("notes = %d, want 0", len(notes))
	}

	// The guard slot must be free again.
	h.app.StartRecording(session.SourcePaste)
	if _, ok := h.app.Recording(); !ok {
		t.Fatal("device not reusable after discarded recording")
	}
	h.app.StopRecording(session.SourcePaste)
}

func TestTranscriptionFailureNotifies(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), engErr: errors.New("api down")})

	h.app.StartRecording(session.SourceSave)
	time.Sleep(10 * time.Millisecond)
	h.app.StopRecording(session.SourceSave)

	h.waitNotice(t, "Transcription failed")
	if notes, _ := h.store.Notes(); len(notes) != 0 {
		t.Fatalf("failed transcription wrote %d notes", len(notes))
	}
}

func TestDeliveryFailureNotifies(t *testing.T) {
	h := newHarness(t, harnessOpts{
		pcm:      somePCM(),
		text:     "lost in delivery",
		pasteErr: &sink.DeliveryError{Reason: sink.ReasonClipboardFailed, Err: errors.New("no owner")},
	})

	h.app.StartRecording(session.SourcePaste)
	time.Sleep(10 * time.Millisecond)
	h.app.StopRecording(session.SourcePaste)

	h.waitNotice(t, "Delivery failed")
}

func TestNoSpeechCompletesWithoutDelivery(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), text: "   "})

	h.app.StartRecording(session.SourceSave)
	time.Sleep(10 * time.Millisecond)
	h.app.StopRecording(session.SourceSave)

	h.waitNotice(t, "No speech detected")
	if notes, _ := h.store.Notes(); len(notes) != 0 {
		t.Fatalf("no-speech session wrote %d notes", len(notes))
	}
}

func TestShutdownReleasesActiveRecording(t *testing.T) {
	h := newHarness(t, harnessOpts{pcm: somePCM(), text: "cut off"})

	h.app.StartRecording(session.SourceSave)
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// The token was released, not leaked.
	if _, err := h.guard.Acquire(session.SourceSave); err != nil {
		t.Fatalf("Acquire after shutdown: %v", err)
	}
}
