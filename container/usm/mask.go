/*
NAME
  mask.go - the USM video/audio payload XOR masks and their key schedule.

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

import "encoding/binary"

// Key holds the three 32-byte masks a USM's 8-byte cipher key expands
// into. VideoMask1/VideoMask2 drive @SFV/@ALP payloads; AudioMask drives
// @SFA payloads, but only for ADX-coded streams.
type Key struct {
	videoMask1 [32]byte
	videoMask2 [32]byte
	audioMask  [32]byte
}

// NewKey expands an 8-byte cipher key into its three derived masks. The
// byte-arithmetic chain below (each line depends only on earlier ones)
// reproduces the reference key schedule; every addition, subtraction and
// XOR is byte-wide and wraps modulo 256, matching 8-bit arithmetic.
func NewKey(key uint64) *Key {
	var key1, key2 [4]byte
	binary.BigEndian.PutUint32(key1[:], uint32(key&0xFFFFFFFF))
	binary.BigEndian.PutUint32(key2[:], uint32(key>>32))

	var t [32]byte
	t[0x00] = key1[3]
	t[0x01] = key1[2]
	t[0x02] = key1[1]
	t[0x03] = key1[0] - 0x34
	t[0x04] = key2[3] + 0xF9
	t[0x05] = key2[2] ^ 0x13
	t[0x06] = key2[1] + 0x61
	t[0x07] = key1[3] ^ 0xFF
	t[0x08] = key1[1] + key1[2]
	t[0x09] = t[0x01] - t[0x07]
	t[0x0A] = t[0x02] ^ 0xFF
	t[0x0B] = t[0x01] ^ 0xFF
	t[0x0C] = t[0x0B] + t[0x09]
	t[0x0D] = t[0x08] - t[0x03]
	t[0x0E] = t[0x0D] ^ 0xFF
	t[0x0F] = t[0x0A] - t[0x0B]
	t[0x10] = t[0x08] - t[0x0F]
	t[0x11] = t[0x10] ^ t[0x07]
	t[0x12] = t[0x0F] ^ 0xFF
	t[0x13] = t[0x03] ^ 0x10
	t[0x14] = t[0x04] - 0x32
	t[0x15] = t[0x05] + 0xED
	t[0x16] = t[0x06] ^ 0xF3
	t[0x17] = t[0x13] - t[0x0F]
	t[0x18] = t[0x15] + t[0x07]
	t[0x19] = 0x21 - t[0x13]
	t[0x1A] = t[0x14] ^ t[0x17]
	t[0x1B] = t[0x16] + t[0x16]
	t[0x1C] = t[0x17] + 0x44
	t[0x1D] = t[0x03] + t[0x04]
	t[0x1E] = t[0x05] - t[0x16]
	t[0x1F] = t[0x1D] ^ t[0x13]

	k := &Key{videoMask1: t}
	for i, v := range t {
		k.videoMask2[i] = v ^ 0xFF
	}
	letters := [4]byte{'U', 'R', 'U', 'C'}
	for x := 0; x < 32; x++ {
		if x%2 == 1 {
			k.audioMask[x] = letters[(x>>1)%4]
		} else {
			k.audioMask[x] = k.videoMask2[x]
		}
	}
	return k
}

func qword(b []byte, i int) uint64       { return binary.LittleEndian.Uint64(b[i*8:]) }
func putQword(b []byte, i int, v uint64) { binary.LittleEndian.PutUint64(b[i*8:], v) }

// VideoMask reverses an @SFV/@ALP payload's mask: a rolling XOR (mask 2)
// over every 8-byte word from the 33rd onward, then a second XOR (mask 1)
// over the first 32 words that folds in the word 32 positions ahead
// (already unmasked by the first pass). Payloads of 0x200 bytes or less
// past the first 0x40-byte head are never masked.
func (k *Key) VideoMask(data []byte) []byte {
	if len(data) <= 0x40 {
		return data
	}
	head, tail := data[:0x40], append([]byte(nil), data[0x40:]...)
	size := len(tail)
	if size <= 0x200 {
		out := make([]byte, 0, len(head)+len(tail))
		out = append(out, head...)
		return append(out, tail...)
	}

	m2 := k.videoMask2
	idx := 0
	for i := 0x20; i < size/8; i++ {
		w := qword(tail, i) ^ binary.LittleEndian.Uint64(m2[(idx%4)*8:])
		putQword(tail, i, w)
		binary.LittleEndian.PutUint64(m2[(idx%4)*8:], w^binary.LittleEndian.Uint64(k.videoMask2[(idx%4)*8:]))
		idx++
	}

	m1 := k.videoMask1
	idx = 0
	for i := 0; i < 0x20; i++ {
		mv := binary.LittleEndian.Uint64(m1[(idx%4)*8:]) ^ qword(tail, i+0x20)
		binary.LittleEndian.PutUint64(m1[(idx%4)*8:], mv)
		putQword(tail, i, qword(tail, i)^mv)
		idx++
	}

	out := make([]byte, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}

// AudioMask reverses an @SFA payload's mask for ADX-coded audio: a fixed
// XOR by the 4-qword audio mask, repeated over every 8-byte word past the
// first 0x140 bytes.
func (k *Key) AudioMask(data []byte) []byte {
	if len(data) <= 0x140 {
		return data
	}
	head, tail := data[:0x140], append([]byte(nil), data[0x140:]...)
	for i := 0; i < len(tail)/8; i++ {
		w := qword(tail, i) ^ binary.LittleEndian.Uint64(k.audioMask[(i%4)*8:])
		putQword(tail, i, w)
	}
	out := make([]byte, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}

// BuildVideoMask applies the USMBuilder's own, independently specified
// @SFV/@ALP payload mask: byte-wide rather than qword-wide, mask 1 applied
// before mask 2, and cycling the full 32-byte mask width rather than 4
// qwords. VideoMask undoes it whenever the masked tail is a whole number of
// 8-byte words; a trailing partial word is masked here but left as-is by
// VideoMask.
func (k *Key) BuildVideoMask(data []byte) []byte {
	if len(data) <= 0x40 {
		return data
	}
	head, tail := data[:0x40], append([]byte(nil), data[0x40:]...)
	size := len(tail)
	if size <= 0x200 {
		out := make([]byte, 0, len(head)+len(tail))
		out = append(out, head...)
		return append(out, tail...)
	}

	m1 := k.videoMask1
	idx := 0
	for i := 0; i < 0x100; i++ {
		m1[idx] ^= tail[i+0x100]
		tail[i] ^= m1[idx]
		idx = (idx + 1) % 32
	}

	m2 := k.videoMask2
	idx = 0
	for i := 0x100; i < size; i++ {
		orig := tail[i]
		tail[i] ^= m2[idx]
		m2[idx] = orig ^ k.videoMask2[idx]
		idx = (idx + 1) % 32
	}

	out := make([]byte, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}

// BuildAudioMask applies the USMBuilder's own byte-wide @SFA mask, cycling
// the full 32-byte audio mask rather than AudioMask's 4 qwords.
func (k *Key) BuildAudioMask(data []byte) []byte {
	if len(data) <= 0x140 {
		return data
	}
	head, tail := data[:0x140], append([]byte(nil), data[0x140:]...)
	for i := range tail {
		tail[i] ^= k.audioMask[i%32]
	}
	out := make([]byte, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}
