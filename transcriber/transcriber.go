package transcriber

import (
	"context"
	"fmt"
	"os"
)

// Result is the sole output contract of an engine. Downstream consumers
// (sinks, the task-classification collaborator) see nothing else.
type Result struct {
	Text     string
	Duration float64
}

// Engine is an opaque transcription capability. Load makes the engine ready
// and may be retried after failure; Transcribe converts one PCM segment to
// text. Engines must be safe for concurrent Transcribe calls once loaded.
type Engine interface {
	Name() string
	Load() error
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}

// New picks an engine from the environment: a local whisper server when
// MURMUR_SERVER_URL is set, otherwise the Groq API.
func New() (Engine, error) {
	if url := os.Getenv("MURMUR_SERVER_URL"); url != "" {
		return NewServer(url), nil
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		return NewGroq(key), nil
	}
	return nil, fmt.Errorf("set MURMUR_SERVER_URL or GROQ_API_KEY environment variable")
}

// LoadError marks an engine initialization failure. The dispatcher retries
// the load on the next job instead of caching the failure.
type LoadError struct {
	Engine string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s engine load: %v", e.Engine, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
