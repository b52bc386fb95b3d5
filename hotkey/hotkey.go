// Package hotkey exposes the two global chords as edge-triggered channels.
// Keydown starts a recording, keyup stops it; both channels drop events when
// the consumer lags rather than queueing stale presses.
package hotkey

// Combo identifies one of the two registered chords.
type Combo int

const (
	// ComboSave is Ctrl+Shift+Space: transcript goes to a note on disk.
	ComboSave Combo = iota
	// ComboPaste is Ctrl+Shift+M: transcript is pasted into the focused app.
	ComboPaste
)

func (c Combo) String() string {
	if c == ComboPaste {
		return "ctrl+shift+m"
	}
	return "ctrl+shift+space"
}

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
