package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TargetSampleRate is the realtime API input rate.
const TargetSampleRate = 24000

// FormatError reports audio the converter cannot handle.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "unsupported audio: " + e.Reason
}

type wavFormat struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// ConvertWAVToPCM16 decodes a RIFF/WAVE file and returns little-endian
// 16-bit mono samples at TargetSampleRate. 8, 16 and 32 bit PCM in mono or
// stereo is accepted.
func ConvertWAVToPCM16(data []byte) ([]byte, error) {
	if DetectFormat(data) != FormatWAV {
		return nil, &FormatError{Reason: "not a RIFF/WAVE file"}
	}

	var (
		fmtChunk *wavFormat
		samples  []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if size < 0 || end > len(data) {
			end = len(data)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, &FormatError{Reason: "truncated fmt chunk"}
			}
			fmtChunk = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(data[body:]),
				channels:      int(binary.LittleEndian.Uint16(data[body+2:])),
				sampleRate:    int(binary.LittleEndian.Uint32(data[body+4:])),
				bitsPerSample: int(binary.LittleEndian.Uint16(data[body+14:])),
			}
		case "data":
			samples = data[body:end]
		}
		// chunks are word aligned
		off = end + (size & 1)
	}

	if fmtChunk == nil {
		return nil, &FormatError{Reason: "missing fmt chunk"}
	}
	if samples == nil {
		return nil, &FormatError{Reason: "missing data chunk"}
	}
	// 1 is PCM, 0xFFFE is WAVE_FORMAT_EXTENSIBLE which carries PCM here
	if fmtChunk.audioFormat != 1 && fmtChunk.audioFormat != 0xFFFE {
		return nil, &FormatError{Reason: fmt.Sprintf("compressed format %#x", fmtChunk.audioFormat)}
	}
	if fmtChunk.channels != 1 && fmtChunk.channels != 2 {
		return nil, &FormatError{Reason: fmt.Sprintf("%d channels", fmtChunk.channels)}
	}
	if fmtChunk.sampleRate <= 0 {
		return nil, &FormatError{Reason: "invalid sample rate"}
	}

	mono, err := decodeMono(samples, fmtChunk)
	if err != nil {
		return nil, err
	}
	return encodePCM16(resample(mono, fmtChunk.sampleRate, TargetSampleRate)), nil
}

func decodeMono(raw []byte, f *wavFormat) ([]int32, error) {
	width := f.bitsPerSample / 8
	switch f.bitsPerSample {
	case 8, 16, 32:
	default:
		return nil, &FormatError{Reason: fmt.Sprintf("%d-bit samples", f.bitsPerSample)}
	}

	frame := width * f.channels
	n := len(raw) / frame
	out := make([]int32, n)
	for i := 0; i < n; i++ {
		var sum int32
		for ch := 0; ch < f.channels; ch++ {
			p := raw[i*frame+ch*width:]
			var s int32
			switch f.bitsPerSample {
			case 8:
				s = (int32(p[0]) - 128) * 256
			case 16:
				s = int32(int16(binary.LittleEndian.Uint16(p)))
			case 32:
				s = int32(binary.LittleEndian.Uint32(p)) >> 16
			}
			sum += s
		}
		out[i] = sum / int32(f.channels)
	}
	return out, nil
}

// resample converts between rates with linear interpolation.
func resample(in []int32, from, to int) []int32 {
	if from == to || len(in) == 0 {
		return in
	}
	n := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	if n == 0 {
		return nil
	}
	out := make([]int32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(j)
		out[i] = int32(math.Round(float64(in[j]) + (float64(in[j+1])-float64(in[j]))*frac))
	}
	return out
}

func encodePCM16(samples []int32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
