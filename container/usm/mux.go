/*
NAME
  mux.go - builds a USM byte stream from a video track and zero or more
  audio tracks.

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

	"github.com/ausocean/cricodec/container/usm/ivf"
	"github.com/ausocean/cricodec/container/utf"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// VideoInput is one IVF/VP9 video track to mux into a USM.
type VideoInput struct {
	Channel uint8
	IVF     []byte // a complete DKIF/IVF file, as ivf.Parse expects.
}

// AudioInput is one audio track to mux into a USM, already framed into
// its codec's native block/packet boundaries (ADX blocks, all channels
// interleaved; or HCA frames).
type AudioInput struct {
	Channel      uint8
	Codec        uint8 // AudioCodecADX or AudioCodecHCA.
	Channels     uint8
	SampleRate   uint32
	TotalSamples uint32
	Header       []byte   // the codec's own file header; only persisted for HCA.
	Frames       [][]byte
}

// Options configures Mux.
type Options struct {
	Video *VideoInput // nil for an audio-only USM.
	Audio []AudioInput
	// Key derives the payload XOR masks. Leave nil to build an
	// unencrypted USM.
	Key *Key
}

// formatVersion is the fmtver value CRIWARE tooling stamps on a
// CRIUSF_DIR_STREAM row; this module only ever writes one fixed value.
const formatVersion = 16777984

type track struct {
	magic           string
	channel         uint8
	frames          [][]byte
	keyframes       []bool // video only.
	isVideo         bool
	durationSeconds float64
	maskFn          func([]byte) []byte
}

type trackStats struct {
	fileSize    int
	maxPacket   int
	keyframes   int
	avbps       uint32
	seekOffsets []uint64 // video only: byte offset within the content region.
	seekFrames  []uint32
}

// Mux interleaves opts.Video and opts.Audio into a complete USM byte
// stream: the CRIUSF_DIR_STREAM directory and per-track HDRINFO/SEEKINFO/
// HEADER metadata, then the interleaved payload packets, each region
// closed off by its #HEADER END/#METADATA END/#CONTENTS END sentinels.
func Mux(opts Options) ([]byte, error) {
	if opts.Video == nil && len(opts.Audio) == 0 {
		return nil, cerr.New(cerr.InvalidData, "usm: Mux needs at least one video or audio track", nil)
	}

	var tracks []track
	var videoHeader *ivf.File

	if opts.Video != nil {
		f, err := ivf.Parse(opts.Video.IVF)
		if err != nil {
			return nil, cerr.Wrap(err, "parsing USM video input")
		}
		frames, err := f.Frames()
		if err != nil {
			return nil, cerr.Wrap(err, "reading IVF frames")
		}
		videoHeader = f

		frameBytes := make([][]byte, len(frames))
		keyframes := make([]bool, len(frames))
		for i, fr := range frames {
			d := fr.Data
			if i == 0 {
				d = append(append([]byte{}, opts.Video.IVF[:f.HeaderSize]...), d...)
			}
			frameBytes[i] = d
			keyframes[i] = fr.Keyframe
		}

		var seconds float64
		if f.TimeBaseDenominator != 0 {
			seconds = float64(f.FrameCount) * float64(f.TimeBaseNum) / float64(f.TimeBaseDenominator)
		}
		key := opts.Key
		tracks = append(tracks, track{
			magic: MagicSFV, channel: opts.Video.Channel,
			frames: frameBytes, keyframes: keyframes, isVideo: true,
			durationSeconds: seconds,
			maskFn: func(b []byte) []byte {
				if key != nil {
					return key.BuildVideoMask(b)
				}
				return b
			},
		})
	}

	for _, a := range opts.Audio {
		a := a
		var seconds float64
		if a.SampleRate != 0 {
			seconds = float64(a.TotalSamples) / float64(a.SampleRate)
		}
		key := opts.Key
		tracks = append(tracks, track{
			magic: MagicSFA, channel: a.Channel, frames: a.Frames,
			durationSeconds: seconds,
			maskFn: func(b []byte) []byte {
				if key != nil && a.Codec == AudioCodecADX {
					return key.BuildAudioMask(b)
				}
				return b
			},
		})
	}

	content, stats := muxContent(tracks)
	for i := range stats {
		if tracks[i].durationSeconds > 0 {
			stats[i].avbps = uint32(float64(stats[i].fileSize) * 8 / tracks[i].durationSeconds)
		}
	}

	sentinelsLen := len(tracks) * (packetHeaderSize + len(contentsEndBody))

	dirTable, err := buildDirTable(tracks, stats, 0)
	if err != nil {
		return nil, err
	}
	header, err := buildHeaderRegion(tracks, stats, videoHeader, opts.Audio, dirTable)
	if err != nil {
		return nil, err
	}
	total := len(header) + len(content) + sentinelsLen

	// FileSize in row 0 depends on the header region's own size, so build
	// it twice: once with a placeholder to measure, then with the real
	// total. Patching only a u32 cell's value can't change the table's
	// storage layout, so the rebuilt header region is guaranteed to be
	// the same length.
	dirTable, err = buildDirTable(tracks, stats, uint64(total))
	if err != nil {
		return nil, err
	}
	header, err = buildHeaderRegion(tracks, stats, videoHeader, opts.Audio, dirTable)
	if err != nil {
		return nil, err
	}
	if len(header)+len(content)+sentinelsLen != total {
		return nil, cerr.New(cerr.InvalidData, "usm: header region size changed after FileSize patch", nil)
	}

	out := append([]byte{}, header...)
	out = append(out, content...)
	for _, t := range tracks {
		out = append(out, buildPacket(t.magic, t.channel, KindSectionEnd, 0, 0, contentsEndBody)...)
	}
	return out, nil
}

// muxContent interleaves every track's frames into payload packets,
// always picking the track whose emitted/total ratio is lowest so far -
// keeping every track's packets spread evenly across the content region
// rather than emitting one track entirely before the next.
func muxContent(tracks []track) ([]byte, []trackStats) {
	stats := make([]trackStats, len(tracks))
	remaining := make([]int, len(tracks))
	for i, t := range tracks {
		remaining[i] = len(t.frames)
	}

	var out bytes.Buffer
	for {
		done := true
		for _, r := range remaining {
			if r > 0 {
				done = false
				break
			}
		}
		if done {
			break
		}

		best := -1
		bestRatio := 2.0
		for i, t := range tracks {
			if remaining[i] == 0 {
				continue
			}
			total := len(t.frames)
			emitted := total - remaining[i]
			ratio := float64(emitted) / float64(total)
			if ratio < bestRatio {
				bestRatio = ratio
				best = i
			}
		}

		t := tracks[best]
		idx := len(t.frames) - remaining[best]
		payload := t.frames[idx]
		if t.maskFn != nil {
			payload = t.maskFn(payload)
		}

		offset := out.Len()
		pkt := buildPacket(t.magic, t.channel, KindPayload, uint32(idx), 1, payload)
		out.Write(pkt)

		stats[best].fileSize += len(pkt)
		if len(pkt) > stats[best].maxPacket {
			stats[best].maxPacket = len(pkt)
		}
		if t.isVideo && idx < len(t.keyframes) && t.keyframes[idx] {
			stats[best].keyframes++
			stats[best].seekOffsets = append(stats[best].seekOffsets, uint64(offset))
			stats[best].seekFrames = append(stats[best].seekFrames, uint32(idx))
		}
		remaining[best]--
	}
	return out.Bytes(), stats
}

func stmID(magic string) uint32 { return binary.BigEndian.Uint32([]byte(magic)) }

func u8Cell(v uint8) utf.Cell     { return utf.Cell{Type: utf.TypeU8, U: uint64(v)} }
func u32Cell(v uint32) utf.Cell   { return utf.Cell{Type: utf.TypeU32, U: uint64(v)} }
func u64Cell(v uint64) utf.Cell   { return utf.Cell{Type: utf.TypeU64, U: v} }
func strCell(v string) utf.Cell   { return utf.Cell{Type: utf.TypeString, Str: v} }
func bytesCell(v []byte) utf.Cell { return utf.Cell{Type: utf.TypeBytes, Bytes: v} }

func buildDirTable(tracks []track, stats []trackStats, totalFileSize uint64) (*utf.Table, error) {
	t := &utf.Table{
		Name: "CRIUSF_DIR_STREAM",
		Columns: []utf.Column{
			{Name: "FileName", Type: utf.TypeString},
			{Name: "FileSize", Type: utf.TypeU32},
			{Name: "FmtVer", Type: utf.TypeU32},
			{Name: "StmId", Type: utf.TypeU32},
			{Name: "ChNo", Type: utf.TypeU32},
			{Name: "MinChk", Type: utf.TypeU32},
			{Name: "MinBuf", Type: utf.TypeU32},
			{Name: "AvbPs", Type: utf.TypeU32},
		},
	}

	var totalAvbps uint32
	var maxMinbuf uint32
	var videoMinchk uint32
	for i, s := range stats {
		totalAvbps += s.avbps
		if mb := uint32(s.maxPacket + 4); mb > maxMinbuf {
			maxMinbuf = mb
		}
		if tracks[i].isVideo {
			videoMinchk = uint32(s.keyframes)
		}
	}

	t.Rows = append(t.Rows, []utf.Cell{
		strCell("<NULL>"), u32Cell(uint32(totalFileSize)), u32Cell(formatVersion),
		u32Cell(0), u32Cell(0), u32Cell(videoMinchk), u32Cell(maxMinbuf), u32Cell(totalAvbps),
	})
	for i, tr := range tracks {
		s := stats[i]
		t.Rows = append(t.Rows, []utf.Cell{
			strCell("<NULL>"), u32Cell(uint32(s.fileSize)), u32Cell(formatVersion),
			u32Cell(stmID(tr.magic)), u32Cell(uint32(tr.channel)),
			u32Cell(uint32(s.keyframes)), u32Cell(uint32(s.maxPacket+4)), u32Cell(s.avbps),
		})
	}
	return t, nil
}

func findAudioInput(inputs []AudioInput, channel uint8) AudioInput {
	for _, a := range inputs {
		if a.Channel == channel {
			return a
		}
	}
	return AudioInput{}
}

func videoHdrInfoTable(f *ivf.File, stats trackStats) *utf.Table {
	return &utf.Table{
		Name: "VIDEO_HDRINFO",
		Columns: []utf.Column{
			{Name: "Width", Type: utf.TypeU32},
			{Name: "Height", Type: utf.TypeU32},
			{Name: "TotalFrames", Type: utf.TypeU32},
			{Name: "FramerateN", Type: utf.TypeU32},
			{Name: "FramerateD", Type: utf.TypeU32},
			{Name: "Ixsize", Type: utf.TypeU32},
		},
		Rows: [][]utf.Cell{{
			u32Cell(uint32(f.Width)), u32Cell(uint32(f.Height)), u32Cell(f.FrameCount),
			u32Cell(f.TimeBaseDenominator), u32Cell(f.TimeBaseNum), u32Cell(uint32(stats.maxPacket + 4)),
		}},
	}
}

func audioHdrInfoTable(a AudioInput) *utf.Table {
	return &utf.Table{
		Name: "AUDIO_HDRINFO",
		Columns: []utf.Column{
			{Name: "audio_codec", Type: utf.TypeU8},
			{Name: "sampling_rate", Type: utf.TypeU32},
			{Name: "total_samples", Type: utf.TypeU32},
			{Name: "num_channels", Type: utf.TypeU8},
		},
		Rows: [][]utf.Cell{{
			u8Cell(a.Codec), u32Cell(a.SampleRate), u32Cell(a.TotalSamples), u8Cell(a.Channels),
		}},
	}
}

func videoSeekInfoTable(stats trackStats) *utf.Table {
	t := &utf.Table{
		Name: "VIDEO_SEEKINFO",
		Columns: []utf.Column{
			{Name: "OfsByte", Type: utf.TypeU64},
			{Name: "OfsFrame", Type: utf.TypeU32},
		},
	}
	for i, off := range stats.seekOffsets {
		t.Rows = append(t.Rows, []utf.Cell{u64Cell(off), u32Cell(stats.seekFrames[i])})
	}
	return t
}

func audioHeaderTable(header []byte) *utf.Table {
	return &utf.Table{
		Name:    "AUDIO_HEADER",
		Columns: []utf.Column{{Name: "HcaHeader", Type: utf.TypeBytes}},
		Rows:    [][]utf.Cell{{bytesCell(header)}},
	}
}

// buildHeaderRegion assembles the CRID directory packet (padded to the
// fixed 0x800-byte region every USM reserves for it), the HDRINFO packets
// and their #HEADER END sentinels, then the SEEKINFO/HEADER packets and
// their #METADATA END sentinels.
func buildHeaderRegion(tracks []track, stats []trackStats, videoHeader *ivf.File, audioInputs []AudioInput, dirTable *utf.Table) ([]byte, error) {
	var out bytes.Buffer

	dirBytes, err := utf.Build(dirTable)
	if err != nil {
		return nil, cerr.Wrap(err, "building CRIUSF_DIR_STREAM")
	}
	// The CRID packet's payload region is padded out to a fixed 0x800-byte
	// total packet size before building the packet, not after: chunk_size
	// must account for every byte Demux will see, padding included.
	const cridRegionSize = 0x800 - packetHeaderSize
	if len(dirBytes) > cridRegionSize {
		return nil, cerr.New(cerr.InvalidData, "usm: CRIUSF_DIR_STREAM too large for the fixed 0x800-byte region", nil)
	}
	cridPacket := buildPacket(MagicCRID, 0, KindHeader, 0, 0, padTo(dirBytes, cridRegionSize))
	if len(cridPacket) != 0x800 {
		return nil, cerr.New(cerr.InvalidData, "usm: CRIUSF_DIR_STREAM packet did not pad to the fixed 0x800-byte region", nil)
	}
	out.Write(cridPacket)

	videoIdx := -1
	for i, t := range tracks {
		if t.isVideo {
			videoIdx = i
		}
	}

	if videoIdx >= 0 {
		b, err := utf.Build(videoHdrInfoTable(videoHeader, stats[videoIdx]))
		if err != nil {
			return nil, cerr.Wrap(err, "building VIDEO_HDRINFO")
		}
		out.Write(buildPacket(MagicSFV, tracks[videoIdx].channel, KindHeader, 0, 0, b))
	}
	for _, t := range tracks {
		if t.isVideo {
			continue
		}
		a := findAudioInput(audioInputs, t.channel)
		b, err := utf.Build(audioHdrInfoTable(a))
		if err != nil {
			return nil, cerr.Wrap(err, "building AUDIO_HDRINFO")
		}
		out.Write(buildPacket(MagicSFA, t.channel, KindHeader, 0, 0, b))
	}
	for _, t := range tracks {
		out.Write(buildPacket(t.magic, t.channel, KindSectionEnd, 0, 0, headerEndBody))
	}

	if videoIdx >= 0 {
		b, err := utf.Build(videoSeekInfoTable(stats[videoIdx]))
		if err != nil {
			return nil, cerr.Wrap(err, "building VIDEO_SEEKINFO")
		}
		out.Write(buildPacket(MagicSFV, tracks[videoIdx].channel, KindMetadata, 0, 0, b))
	}
	for _, t := range tracks {
		if t.isVideo {
			continue
		}
		a := findAudioInput(audioInputs, t.channel)
		if a.Codec != AudioCodecHCA {
			continue
		}
		b, err := utf.Build(audioHeaderTable(a.Header))
		if err != nil {
			return nil, cerr.Wrap(err, "building AUDIO_HEADER")
		}
		out.Write(buildPacket(MagicSFA, t.channel, KindMetadata, 0, 0, b))
	}
	for _, t := range tracks {
		out.Write(buildPacket(t.magic, t.channel, KindSectionEnd, 0, 0, metadataEndBody))
	}

	return out.Bytes(), nil
}
