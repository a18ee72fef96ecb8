/*
NAME
  crilayla.go - CRILAYLA LZ-style compression used inside CPK archives.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package crilayla implements CRI's CRILAYLA compressor/decompressor, a
// small LZ-style codec used to shrink individual files stored inside a CPK
// archive.
//
// Layout of a compressed blob:
//
//	bytes 0-7   magic "CRILAYLA"
//	bytes 8-11  uncompressed size (u32 LE)
//	bytes 12-15 compressed size (u32 LE)
//	bytes 16-   compressed body, followed by a verbatim 0x100-byte tail
//
// The compressed body is a bit stream read MSB-first starting from its last
// byte and moving backwards; decoding writes the output backwards from its
// end. See readLength's doc comment for the length grammar.
package crilayla

import (
	"bytes"
	"io"

	"github.com/icza/bitio"

	"github.com/ausocean/cricodec/pkg/cerr"
)

// Magic is the CRILAYLA chunk header.
var Magic = []byte("CRILAYLA")

const (
	headerSize = 16
	tailSize   = 0x100
	windowSize = 8192 // sliding window used by the compressor's match search.
)

// Decompress decompresses a CRILAYLA blob and returns the original bytes.
func Decompress(b []byte) ([]byte, error) {
	if len(b) < headerSize || !bytes.Equal(b[:8], Magic) {
		got := b
		if len(got) > 8 {
			got = got[:8]
		}
		return nil, cerr.Magic(0, Magic, got)
	}
	uncompSize := int(le32(b[8:12]))
	compSize := int(le32(b[12:16]))
	if len(b) < headerSize+compSize {
		return nil, cerr.At(cerr.InvalidData, int64(len(b)), "compressed size overruns input", nil)
	}
	body := b[headerSize : headerSize+compSize]

	// When the original input was no larger than the verbatim tail, Compress
	// stores it unencoded: uncompSize == compSize and body is the data as-is.
	if uncompSize <= tailSize {
		if len(body) < uncompSize {
			return nil, cerr.At(cerr.InvalidData, int64(headerSize), "compressed body shorter than declared size", nil)
		}
		out := make([]byte, uncompSize)
		copy(out, body[:uncompSize])
		return out, nil
	}

	if len(body) < tailSize {
		return nil, cerr.At(cerr.InvalidData, int64(headerSize), "compressed body shorter than tail", nil)
	}

	out := make([]byte, uncompSize)
	tail := body[len(body)-tailSize:]
	copy(out[uncompSize-tailSize:], tail)

	// The remainder (everything before the tail) is a bit stream read
	// MSB-to-LSB starting from its last byte, moving backwards. We present
	// that to bitio.Reader by feeding it a reverse view of the bytes.
	reversed := body[:len(body)-tailSize]
	br := bitio.NewReader(newReverseByteReader(reversed))

	writePos := uncompSize - tailSize // next output index to fill, moving down.
	for writePos > 0 {
		bit, err := br.ReadBool()
		if err != nil {
			return nil, cerr.At(cerr.InvalidData, int64(headerSize), "bit stream exhausted", err)
		}
		if !bit {
			lit, err := br.ReadByte()
			if err != nil {
				return nil, cerr.At(cerr.InvalidData, int64(headerSize), "bit stream exhausted reading literal", err)
			}
			writePos--
			out[writePos] = lit
			continue
		}

		offBits, err := br.ReadBits(13)
		if err != nil {
			return nil, cerr.At(cerr.InvalidData, int64(headerSize), "bit stream exhausted reading offset", err)
		}
		offset := int(offBits) + 3

		length, err := readLength(br)
		if err != nil {
			return nil, err
		}

		for i := 0; i < length && writePos > 0; i++ {
			writePos--
			srcPos := writePos + offset
			if srcPos >= uncompSize {
				return nil, cerr.At(cerr.InvalidData, int64(headerSize), "backreference out of range", nil)
			}
			out[writePos] = out[srcPos]
		}
	}
	return out, nil
}

// readLength reads the variable-length backreference length code: 2 bits as
// n; if n==3, 3 more bits; if that reaches 7, 5 more bits; if that reaches
// 31, repeated 8-bit extensions accumulate while each extension equals 255.
// The total length is n + 3 + the sum of any extensions.
func readLength(br *bitio.Reader) (int, error) {
	n, err := br.ReadBits(2)
	if err != nil {
		return 0, cerr.At(cerr.InvalidData, 0, "bit stream exhausted reading length level 0", err)
	}
	total := int(n)
	if n == 3 {
		n3, err := br.ReadBits(3)
		if err != nil {
			return 0, cerr.At(cerr.InvalidData, 0, "bit stream exhausted reading length level 1", err)
		}
		total += int(n3)
		if n3 == 7 {
			n5, err := br.ReadBits(5)
			if err != nil {
				return 0, cerr.At(cerr.InvalidData, 0, "bit stream exhausted reading length level 2", err)
			}
			total += int(n5)
			if n5 == 31 {
				for {
					n8, err := br.ReadBits(8)
					if err != nil {
						return 0, cerr.At(cerr.InvalidData, 0, "bit stream exhausted reading length extension", err)
					}
					total += int(n8)
					if n8 != 255 {
						break
					}
				}
			}
		}
	}
	return total + 3, nil
}

// le32 reads a little-endian uint32 from the first 4 bytes of b.
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// reverseByteReader presents a byte slice to bitio.Reader back-to-front,
// matching CRILAYLA's backward bit stream.
type reverseByteReader struct {
	buf []byte
	pos int // index of the next byte to hand out, decreasing.
}

func newReverseByteReader(buf []byte) *reverseByteReader {
	return &reverseByteReader{buf: buf, pos: len(buf) - 1}
}

func (r *reverseByteReader) Read(p []byte) (int, error) {
	if r.pos < 0 {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && r.pos >= 0 {
		p[n] = r.buf[r.pos]
		r.pos--
		n++
	}
	return n, nil
}
