/*
NAME
  wavutil_test.go

AUTHOR
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package wavutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := []int16{0, 100, -100, 32767, -32768, 12345, -12345}
	encoded, err := Encode(want, 1, 44100)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, channels, rate, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if channels != 1 {
		t.Errorf("channels = %d, want 1", channels)
	}
	if rate != 44100 {
		t.Errorf("sample rate = %d, want 44100", rate)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyVolumeClamps(t *testing.T) {
	samples := []int16{16000, -16000, 1000}
	ApplyVolume(samples, 3.0)
	want := []int16{32767, -32768, 3000}
	if diff := cmp.Diff(want, samples); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyVolumeIdentity(t *testing.T) {
	samples := []int16{100, -100, 0}
	ApplyVolume(samples, 1.0)
	want := []int16{100, -100, 0}
	if diff := cmp.Diff(want, samples); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
