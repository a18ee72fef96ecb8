/*
NAME
  hca_test.go

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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// checkPermutation covers property 7's structural requirement: table[0]
// is 0, table[0xFF] is 0xFF, and every byte value appears exactly once.
func checkPermutation(t Table) error {
	if t[0] != 0 {
		return fmt.Errorf("table[0] = %#x, want 0", t[0])
	}
	if t[0xFF] != 0xFF {
		return fmt.Errorf("table[0xFF] = %#x, want 0xFF", t[0xFF])
	}
	var seen [256]bool
	for _, v := range t {
		if seen[v] {
			return fmt.Errorf("value %#x repeated, table is not a permutation", v)
		}
		seen[v] = true
	}
	return nil
}

func TestStaticTablePermutation(t *testing.T) {
	table, err := BuildTable(1, 0, 0)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if err := checkPermutation(table); err != nil {
		t.Error(err)
	}
}

// TestKeyedTablePermutation covers property 7 across a spread of keys,
// including the degenerate zero key and the package's own default key.
func TestKeyedTablePermutation(t *testing.T) {
	keys := []uint64{0x1234567890ABCDEF, 0, 1, 0xFFFFFFFFFFFFFFFF, DefaultKey}
	for _, key := range keys {
		table, err := BuildTable(56, key, 0)
		if err != nil {
			t.Fatalf("BuildTable(key=%#x): %v", key, err)
		}
		if err := checkPermutation(table); err != nil {
			t.Errorf("key %#x: %v", key, err)
		}
	}
}

// TestKeyedTableSubkey covers property 7 with a non-zero subkey folded
// into the effective key.
func TestKeyedTableSubkey(t *testing.T) {
	table, err := BuildTable(56, 0x1234567890ABCDEF, 0xBEEF)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if err := checkPermutation(table); err != nil {
		t.Error(err)
	}
}

func TestEffectiveKeyZeroSubkeyIsIdentity(t *testing.T) {
	if got := effectiveKey(0x1234, 0); got != 0x1234 {
		t.Errorf("effectiveKey with zero subkey = %#x, want 0x1234", got)
	}
}

// TestTableInverse covers the claim in §4.5 that the encrypt table is the
// decrypt table's inverse permutation.
func TestTableInverse(t *testing.T) {
	table, err := BuildTable(56, 0xDEADBEEFCAFEF00D, 0)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	inv := table.Inverse()
	for b := 0; b < 256; b++ {
		if inv[table[b]] != byte(b) {
			t.Fatalf("inv[table[%d]] = %d, want %d", b, inv[table[b]], b)
		}
	}
}

// TestApplyRoundTrip covers property 8: encrypting (with the inverse table)
// then decrypting a frame body restores the original bytes and a valid
// CRC-16 footer.
func TestApplyRoundTrip(t *testing.T) {
	table, err := BuildTable(56, 0x0102030405060708, 0)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	inv := table.Inverse()

	orig := make([]byte, 64)
	for i := range orig {
		orig[i] = byte(i * 7)
	}
	// Stamp a valid CRC footer onto the plaintext frame first.
	plain := append([]byte{}, orig...)
	if err := Apply(plain, identityTable()); err != nil {
		t.Fatalf("Apply(identity): %v", err)
	}

	encrypted := append([]byte{}, plain...)
	if err := Apply(encrypted, inv); err != nil {
		t.Fatalf("Apply(encrypt): %v", err)
	}
	decrypted := append([]byte{}, encrypted...)
	if err := Apply(decrypted, table); err != nil {
		t.Fatalf("Apply(decrypt): %v", err)
	}
	if diff := cmp.Diff(plain, decrypted); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func sampleHeader() *Header {
	return &Header{
		Version: 0x0300,
		Fmt: Fmt{
			Channels:       2,
			SampleRate:     44100,
			FrameCount:     1000,
			EncoderDelay:   0,
			EncoderPadding: 0,
		},
		Comp: &Comp{
			FrameSize:        0x200,
			MinResolution:    1,
			MaxResolution:    15,
			TrackCount:       1,
			ChannelConfig:    0,
			TotalBandCount:   64,
			BaseBandCount:    64,
			StereoBandCount:  0,
			BandsPerHfrGroup: 0,
		},
		Loop: &Loop{StartFrame: 10, EndFrame: 990, StartDelay: 0, EndPadding: 0},
		Ath:  &Ath{Type: 1},
		Vbr:  &Vbr{MaxFrameSize: 0x200, NoiseLevel: 0},
		Rva:  &Rva{Volume: 1.0},
		Ciph: Ciph{Type: 56},
	}
}

// TestHeaderRoundTrip covers property 6's header analogue for HCA: parse
// must reproduce every field Encode wrote, across both the plain and
// obfuscated tag forms.
func TestHeaderRoundTrip(t *testing.T) {
	for _, obfuscated := range []bool{false, true} {
		want := sampleHeader()
		if obfuscated {
			want.Encrypted = true
		}
		encoded, err := Encode(want, obfuscated)
		if err != nil {
			t.Fatalf("Encode(obfuscated=%v): %v", obfuscated, err)
		}
		got, err := Parse(encoded)
		if err != nil {
			t.Fatalf("Parse(obfuscated=%v): %v", obfuscated, err)
		}
		want.HeaderSize = got.HeaderSize
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("header round trip mismatch obfuscated=%v (-want +got):\n%s", obfuscated, diff)
		}
	}
}

// TestHeaderMinimal covers a header with only the mandatory fmt/comp/ciph
// subchunks present.
func TestHeaderMinimal(t *testing.T) {
	want := &Header{
		Version: 0x0200,
		Fmt:     Fmt{Channels: 1, SampleRate: 22050, FrameCount: 5},
		Comp:    &Comp{FrameSize: 0x100, MinResolution: 1, MaxResolution: 15, TotalBandCount: 32, BaseBandCount: 32},
		Ciph:    Ciph{Type: 0},
	}
	encoded, err := Encode(want, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want.HeaderSize = got.HeaderSize
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

// TestHeaderCRCMismatch covers the CRC-16 validation path.
func TestHeaderCRCMismatch(t *testing.T) {
	h := sampleHeader()
	encoded, err := Encode(h, false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	encoded[len(encoded)-1] ^= 0xFF
	if _, err := Parse(encoded); err == nil {
		t.Fatal("expected CRC mismatch error")
	}
}

func TestParseInvalidMagic(t *testing.T) {
	_, err := Parse(make([]byte, 16))
	if err == nil {
		t.Fatal("expected error for invalid magic")
	}
}

func TestBuildTableUnsupportedCipher(t *testing.T) {
	if _, err := BuildTable(7, 0, 0); err == nil {
		t.Fatal("expected error for unsupported cipher type")
	}
}
