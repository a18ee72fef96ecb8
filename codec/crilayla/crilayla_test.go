/*
NAME
  crilayla_test.go

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package crilayla

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	tests := map[string][]byte{
		"empty":      {},
		"small":      []byte("hello, world"),
		"exact tail": bytes.Repeat([]byte{0x42}, tailSize),
		"repeating":  bytes.Repeat([]byte("A"), 0x10000),
	}

	rnd := rand.New(rand.NewSource(1))
	highEntropy := make([]byte, 5000)
	rnd.Read(highEntropy)
	tests["high entropy"] = highEntropy

	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			comp := Compress(want)
			got, err := Decompress(comp)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(want))
			}
		})
	}
}

func TestDecompressInvalidMagic(t *testing.T) {
	_, err := Decompress([]byte("not a crilayla blob but long enough"))
	if err == nil {
		t.Fatal("expected error for invalid magic")
	}
}
