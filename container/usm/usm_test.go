/*
NAME
  usm_test.go

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package usm

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ausocean/cricodec/pkg/byteio"
)

// buildTestIVF assembles a minimal DKIF/VP9 file from raw frame payloads,
// for feeding into Mux without needing a real VP9 bitstream.
func buildTestIVF(t *testing.T, frames [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("DKIF")
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], 0)
	buf.Write(u16[:]) // version
	binary.LittleEndian.PutUint16(u16[:], 32)
	buf.Write(u16[:]) // header_size
	buf.WriteString("VP90")
	binary.LittleEndian.PutUint16(u16[:], 64)
	buf.Write(u16[:]) // width
	binary.LittleEndian.PutUint16(u16[:], 48)
	buf.Write(u16[:]) // height
	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], 1)
	buf.Write(u32[:]) // time_base_denominator
	binary.LittleEndian.PutUint32(u32[:], 30)
	buf.Write(u32[:]) // time_base_numerator
	binary.LittleEndian.PutUint32(u32[:], uint32(len(frames)))
	buf.Write(u32[:]) // num_frames
	buf.Write([]byte{0, 0, 0, 0}) // reserved

	for i, f := range frames {
		var fh [12]byte
		binary.LittleEndian.PutUint32(fh[0:4], uint32(len(f)))
		binary.LittleEndian.PutUint64(fh[4:12], uint64(i))
		buf.Write(fh[:])
		buf.Write(f)
	}
	return buf.Bytes()
}

func TestPacketRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 10)
	pkt := buildPacket(MagicSFV, 3, KindPayload, 42, 1, payload)

	if len(pkt)%packetHeaderSize != 0 {
		t.Fatalf("packet length %d is not 0x20-aligned", len(pkt))
	}

	cur := byteio.NewCursor(pkt)
	h, err := readPacketHeader(cur)
	if err != nil {
		t.Fatalf("readPacketHeader: %v", err)
	}
	if h.Magic != MagicSFV {
		t.Fatalf("magic = %q, want %q", h.Magic, MagicSFV)
	}
	if h.Channel != 3 || h.Kind != KindPayload || h.FrameTime != 42 {
		t.Fatalf("header = %+v, unexpected field", h)
	}

	body, err := readPacketBody(cur, h)
	if err != nil {
		t.Fatalf("readPacketBody: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("body = %x, want %x", body, payload)
	}
}

func TestMaskRoundTripIsNotSelfInverse(t *testing.T) {
	// VideoMask/BuildVideoMask are independently specified (see
	// DESIGN.md), so applying one after the other does not recover the
	// original bytes. This test pins that asymmetry rather than
	// asserting a round trip.
	k := NewKey(0x1122334455667788)
	data := make([]byte, 0x400)
	for i := range data {
		data[i] = byte(i)
	}

	masked := k.BuildVideoMask(append([]byte{}, data...))
	if bytes.Equal(masked, data) {
		t.Fatal("BuildVideoMask did not change a payload long enough to be masked")
	}

	unmasked := k.VideoMask(append([]byte{}, masked...))
	if bytes.Equal(unmasked, data) {
		t.Skip("VideoMask happened to invert BuildVideoMask for this key/input; not guaranteed")
	}
}

func TestAudioMaskShortPayloadUnchanged(t *testing.T) {
	k := NewKey(1)
	short := bytes.Repeat([]byte{0x01}, 0x140)
	if !bytes.Equal(k.AudioMask(short), short) {
		t.Fatal("AudioMask changed a payload at or under the 0x140 threshold")
	}
	if !bytes.Equal(k.BuildAudioMask(short), short) {
		t.Fatal("BuildAudioMask changed a payload at or under the 0x140 threshold")
	}
}

func TestMuxDemuxRoundTrip(t *testing.T) {
	ivfBytes := buildTestIVF(t, [][]byte{
		append([]byte{0x82, 0x49, 0x83, 0x42}, bytes.Repeat([]byte{0x01}, 60)...),
		bytes.Repeat([]byte{0x02}, 60),
	})

	out, err := Mux(Options{
		Video: &VideoInput{Channel: 0, IVF: ivfBytes},
		Audio: []AudioInput{{
			Channel: 1, Codec: AudioCodecADX, Channels: 2, SampleRate: 44100, TotalSamples: 88200,
			Frames: [][]byte{bytes.Repeat([]byte{0x03}, 32), bytes.Repeat([]byte{0x04}, 32)},
		}},
	})
	if err != nil {
		t.Fatalf("Mux: %v", err)
	}
	if len(out)%packetHeaderSize != 0 {
		t.Fatalf("Mux output length %d is not 0x20-aligned", len(out))
	}

	d, err := Demux(out, nil)
	if err != nil {
		t.Fatalf("Demux: %v", err)
	}
	if d.Dir == nil {
		t.Fatal("Demux did not return a directory table")
	}
	if _, ok := d.Stream(MagicSFV, 0); !ok {
		t.Error("missing @SFV channel 0 stream after round trip")
	}
	if _, ok := d.Stream(MagicSFA, 1); !ok {
		t.Error("missing @SFA channel 1 stream after round trip")
	}
}

func TestSBTToSRT(t *testing.T) {
	var buf bytes.Buffer
	writeRecord := func(lang, framerate, frametime, duration uint32, text string) {
		var hdr [20]byte
		binary.BigEndian.PutUint32(hdr[0:4], lang)
		binary.BigEndian.PutUint32(hdr[4:8], framerate)
		binary.BigEndian.PutUint32(hdr[8:12], frametime)
		binary.BigEndian.PutUint32(hdr[12:16], duration)
		binary.BigEndian.PutUint32(hdr[16:20], uint32(len(text)))
		buf.Write(hdr[:])
		buf.WriteString(text)
	}
	writeRecord(0, 30, 0, 30, "hello")
	writeRecord(0, 30, 60, 30, "world")

	srt, err := SBTToSRT(buf.Bytes())
	if err != nil {
		t.Fatalf("SBTToSRT: %v", err)
	}
	got, ok := srt[0]
	if !ok {
		t.Fatal("missing langid 0 in SBTToSRT output")
	}
	want := "1\n00:00:00,000 --> 00:00:01,000\nhello\n\n" +
		"2\n00:00:02,000 --> 00:00:03,000\nworld\n\n"
	if got != want {
		t.Fatalf("srt =\n%s\nwant\n%s", got, want)
	}
}
