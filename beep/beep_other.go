//go:build !linux

package beep

// No cue playback off Linux; the desktop notification carries the signal.

func Init()      {}
func PlayStart() {}
func PlayEnd()   {}
func PlayError() {}
