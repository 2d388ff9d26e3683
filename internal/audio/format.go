// Package audio detects uploaded audio containers and converts WAV input to
// the 24kHz mono PCM16 the realtime backend expects.
package audio

import "bytes"

type Format string

const (
	FormatWAV     Format = "wav"
	FormatWebM    Format = "webm"
	FormatOgg     Format = "ogg"
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatUnknown Format = "unknown"
)

// DetectFormat identifies a container from its magic bytes. Inputs shorter
// than 12 bytes are unknown.
func DetectFormat(data []byte) Format {
	if len(data) < 12 {
		return FormatUnknown
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOgg
	case bytes.HasPrefix(data, []byte("ID3")),
		data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	}
	return FormatUnknown
}
