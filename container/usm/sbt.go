/*
NAME
  sbt.go - converts a demuxed @SBT subtitle stream to SRT text.

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
	"fmt"

	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// sbtRecordSize is the fixed (langid, framerate, frametime, duration,
// data_size) prefix of every @SBT record, each field a big-endian u32.
const sbtRecordSize = 5 * 4

type sbtRecord struct {
	LangID    uint32
	Framerate uint32
	Frametime uint32
	Duration  uint32
	Text      string
}

func parseSBT(data []byte) ([]sbtRecord, error) {
	cur := byteio.NewCursor(data)
	var records []sbtRecord
	for cur.Remaining() > 0 {
		if cur.Remaining() < sbtRecordSize {
			return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "truncated @SBT record header", nil)
		}
		r := sbtRecord{
			LangID:    cur.BE32(),
			Framerate: cur.BE32(),
			Frametime: cur.BE32(),
			Duration:  cur.BE32(),
		}
		size := cur.BE32()
		if int(size) > cur.Remaining() {
			return nil, cerr.At(cerr.InvalidData, int64(cur.Pos), "@SBT record data_size overruns input", nil)
		}
		text := cur.Take(int(size))
		r.Text = string(bytes.TrimRight(text, "\x00"))
		records = append(records, r)
	}
	return records, nil
}

// SBTToSRT converts a demuxed @SBT subtitle stream's raw bytes into SRT
// text, one string per langid found. Every langid's blocks are numbered
// independently from 1, in stream order.
func SBTToSRT(data []byte) (map[uint32]string, error) {
	records, err := parseSBT(data)
	if err != nil {
		return nil, cerr.Wrap(err, "parsing @SBT stream")
	}

	out := map[uint32]*bytes.Buffer{}
	counters := map[uint32]int{}
	order := []uint32{}
	for _, r := range records {
		if _, ok := out[r.LangID]; !ok {
			out[r.LangID] = &bytes.Buffer{}
			order = append(order, r.LangID)
		}
		if r.Framerate == 0 {
			return nil, cerr.New(cerr.InvalidData, "@SBT record has zero framerate", nil)
		}
		counters[r.LangID]++
		start := float64(r.Frametime) / float64(r.Framerate)
		end := float64(r.Frametime+r.Duration) / float64(r.Framerate)

		buf := out[r.LangID]
		fmt.Fprintf(buf, "%d\n%s --> %s\n%s\n\n", counters[r.LangID], srtTimestamp(start), srtTimestamp(end), r.Text)
	}

	result := make(map[uint32]string, len(out))
	for _, id := range order {
		result[id] = out[id].String()
	}
	return result, nil
}

// srtTimestamp formats seconds as SRT's HH:MM:SS,mmm timestamp.
func srtTimestamp(seconds float64) string {
	total := int64(seconds * 1000)
	ms := total % 1000
	total /= 1000
	s := total % 60
	total /= 60
	m := total % 60
	h := total / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
