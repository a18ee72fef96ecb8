/*
NAME
  wavutil.go - WAV read/write helpers for decoded ADX/HCA PCM.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package wavutil is the boundary between this module's container/codec
// header parsing and actual PCM samples. ADX and HCA sample decode is out
// of scope (spec.md's DSP boundary); callers that do have a decoder wire
// its output through Encode to get a playable .wav, or Decode a .wav back
// into PCM for the encode path. This wraps github.com/go-audio/wav and
// github.com/go-audio/audio rather than hand-rolling RIFF chunks, since the
// corpus already carries that dependency.
package wavutil

import (
	"bytes"
	"errors"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// memWriteSeeker adapts a growable byte buffer to io.WriteSeeker, which
// wav.NewEncoder requires; callers here never need an actual file.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.buf)
	default:
		return 0, errors.New("wavutil: invalid seek whence")
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("wavutil: negative seek position")
	}
	m.pos = next
	return int64(next), nil
}

// Encode writes samples (one flat slice, channels interleaved) to a
// complete .wav file, PCM encoded at the given sample rate/channel count
// and 16-bit depth.
func Encode(samples []int16, channels, sampleRate int) ([]byte, error) {
	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}

	w := &memWriteSeeker{}
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// Decode reads a .wav file back into its flat, interleaved 16-bit PCM
// samples, channel count and sample rate.
func Decode(wavBytes []byte) (samples []int16, channels, sampleRate int, err error) {
	dec := wav.NewDecoder(bytes.NewReader(wavBytes))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	samples = make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, buf.Format.NumChannels, buf.Format.SampleRate, nil
}

// ApplyVolume scales samples by volume (an HCA rva subchunk's linear gain)
// in place, clamping to int16 range rather than wrapping on overflow.
func ApplyVolume(samples []int16, volume float32) {
	for i, s := range samples {
		scaled := float32(s) * volume
		switch {
		case scaled > 32767:
			samples[i] = 32767
		case scaled < -32768:
			samples[i] = -32768
		default:
			samples[i] = int16(scaled)
		}
	}
}
