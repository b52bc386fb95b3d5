package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Source identifies which hotkey started a recording. It is fixed at session
// creation and selects the output sink at delivery time.
type Source int

const (
	SourceSave Source = iota
	SourcePaste
)

func (s Source) String() string {
	switch s {
	case SourceSave:
		return "save"
	case SourcePaste:
		return "paste"
	default:
		return "unknown"
	}
}

// State is one stage of the capture-to-delivery cycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// DeliveryOutcome records how the matching sink handled the result.
type DeliveryOutcome struct {
	Sink string
	Err  error
	At   time.Time
}

// Session tracks one capture-to-delivery cycle. All accessors are safe for
// concurrent use; the orchestrator, watchdog, and completion goroutines all
// touch the same session.
type Session struct {
	ID     uuid.UUID
	Source Source

	mu           sync.Mutex
	state        State
	startedAt    time.Time
	stoppedAt    time.Time
	audioSeconds float64
	failStage    State
	failReason   string
	outcome      *DeliveryOutcome
}

// New creates an idle session for the given source.
func New(src Source) *Session {
	return &Session{ID: uuid.New(), Source: src, state: StateIdle}
}

// To applies a state transition, rejecting any edge the lifecycle does not
// allow. Recording entry stamps startedAt; leaving recording stamps stoppedAt.
func (s *Session) To(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validTransition(s.state, next) {
		return fmt.Errorf("invalid session transition: %s -> %s", s.state, next)
	}
	s.applyLocked(next)
	return nil
}

// Fail moves the session to its terminal failed state, remembering the stage
// it failed at and a human-readable reason for the notification layer.
func (s *Session) Fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.failStage = s.state
	s.failReason = reason
	s.applyLocked(StateFailed)
}

func (s *Session) applyLocked(next State) {
	if next == StateRecording {
		s.startedAt = time.Now()
	}
	if s.state == StateRecording && next != StateRecording {
		s.stoppedAt = time.Now()
	}
	s.state = next
}

func validTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateRecording
	case StateRecording:
		return to == StateTranscribing || to == StateFailed
	case StateTranscribing:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FailedAt returns the stage the session failed at and the reason, or
// (StateIdle, "") if the session has not failed.
func (s *Session) FailedAt() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFailed {
		return StateIdle, ""
	}
	return s.failStage, s.failReason
}

// SetAudioSeconds records the length of the captured audio. Delivery uses it
// for the note frontmatter, which must reflect audio time rather than wall
// time between trigger events.
func (s *Session) SetAudioSeconds(sec float64) {
	s.mu.Lock()
	s.audioSeconds = sec
	s.mu.Unlock()
}

func (s *Session) AudioSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioSeconds
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Session) StoppedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stoppedAt
}

// RecordOutcome attaches the sink result. Valid on failed sessions too: a
// timed-out recording still has its partial audio delivered, and the outcome
// is kept for diagnostics without reviving the session.
func (s *Session) RecordOutcome(o DeliveryOutcome) {
	s.mu.Lock()
	s.outcome = &o
	s.mu.Unlock()
}

func (s *Session) Outcome() *DeliveryOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return nil
	}
	o := *s.outcome
	return &o
}
