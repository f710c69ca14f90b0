package cues

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zaf/g711"
)

type segment struct {
	on  bool
	dur time.Duration
}

// North American cadences.
var (
	ringbackCadence = []segment{{true, 2 * time.Second}, {false, 4 * time.Second}}
	ringtoneCadence = []segment{
		{true, 400 * time.Millisecond},
		{false, 200 * time.Millisecond},
		{true, 400 * time.Millisecond},
		{false, 2 * time.Second},
	}
)

// RingbackTone is the caller-side cue: 440+480 Hz, 2 s on, 4 s off.
func RingbackTone() []byte {
	return synthesize(440, 480, ringbackCadence)
}

// RingtoneTone is the callee-side cue: a 400+450 Hz double ring.
func RingtoneTone() []byte {
	return synthesize(400, 450, ringtoneCadence)
}

func synthesize(f1, f2 float64, cadence []segment) []byte {
	const amplitude = 0.25 * math.MaxInt16

	var total int
	for _, s := range cadence {
		total += samples(s.dur)
	}
	out := make([]byte, 0, total*2)

	n := 0
	for _, s := range cadence {
		for i := 0; i < samples(s.dur); i++ {
			var v int16
			if s.on {
				t := float64(n) / SampleRate
				v = int16(amplitude * (math.Sin(2*math.Pi*f1*t) + math.Sin(2*math.Pi*f2*t)) / 2)
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
			n++
		}
	}
	return out
}

func samples(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}

// LoadCue reads a cue file. Raw PCM files (.pcm, .raw, .s16) must already
// be 16-bit little-endian 8 kHz mono; anything else is taken as G.711
// µ-law, the format telephony prompts usually ship in.
func LoadCue(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cue: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcm", ".raw", ".s16":
		if len(data)%2 != 0 {
			data = data[:len(data)-1]
		}
		return data, nil
	default:
		return g711.DecodeUlaw(data), nil
	}
}
