// Package speech turns push-to-talk audio into text through an
// OpenAI-compatible transcription endpoint. Capture hardware stays behind
// the Source interface; the rest of the app only sees events.
package speech

import (
	"bytes"
	"encoding/binary"
)

const (
	// SampleRate is the capture rate expected by the transcription models.
	SampleRate = 16000
	numChannel = 1
	bitsPerSmp = 16
)

// Recording accumulates 16 kHz mono PCM samples for one push-to-talk hold.
type Recording struct {
	samples []int16
}

func NewRecording() *Recording {
	return &Recording{}
}

func (r *Recording) WriteSamples(samples []int16) {
	r.samples = append(r.samples, samples...)
}

func (r *Recording) Empty() bool {
	return len(r.samples) == 0
}

// Duration in seconds of audio captured so far.
func (r *Recording) Duration() float64 {
	return float64(len(r.samples)) / SampleRate
}

// WAV frames the samples as a complete RIFF/WAVE file for upload.
func (r *Recording) WAV() []byte {
	dataLen := len(r.samples) * 2
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	writeU32(&buf, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeU32(&buf, 16)
	writeU16(&buf, 1) // PCM
	writeU16(&buf, numChannel)
	writeU32(&buf, SampleRate)
	writeU32(&buf, SampleRate*numChannel*bitsPerSmp/8)
	writeU16(&buf, numChannel*bitsPerSmp/8)
	writeU16(&buf, bitsPerSmp)

	buf.WriteString("data")
	writeU32(&buf, uint32(dataLen))
	for _, s := range r.samples {
		writeU16(&buf, uint16(s))
	}
	return buf.Bytes()
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
