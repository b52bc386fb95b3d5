// Package encoder converts raw 16-bit mono PCM into the container formats
// the transcription engines accept.
package encoder

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// samplesOf reinterprets little-endian PCM bytes as int16 samples. An odd
// trailing byte is dropped.
func samplesOf(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	return samples
}
