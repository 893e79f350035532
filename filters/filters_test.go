package filters_test

import (
	"bytes"
	"encoding/ascii85"
	"testing"

	"github.com/fileskadis/fileskadis/filters"
)

func TestFlateRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("redactable content "), 200)
	enc, err := filters.FlateEncode(payload, 9)
	if err != nil {
		t.Fatalf("FlateEncode: %v", err)
	}
	if len(enc) >= len(payload) {
		t.Errorf("no compression: %d >= %d", len(enc), len(payload))
	}
	dec, err := filters.Flate{}.Decode(enc, filters.DefaultParms())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(dec, payload) {
		t.Error("round trip mismatch")
	}
}

func TestASCIIHex(t *testing.T) {
	out, err := filters.ASCIIHex{}.Decode([]byte("48 65 6C6C 6f>ignored"), filters.Parms{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "Hello" {
		t.Errorf("got %q", out)
	}
	// Odd digit count pads the final nibble with zero.
	out, err = filters.ASCIIHex{}.Decode([]byte("414>"), filters.Parms{})
	if err != nil {
		t.Fatalf("Decode odd: %v", err)
	}
	if !bytes.Equal(out, []byte{0x41, 0x40}) {
		t.Errorf("odd padding = %x", out)
	}
	if _, err := (filters.ASCIIHex{}).Decode([]byte("4G>"), filters.Parms{}); err == nil {
		t.Error("expected error for invalid digit")
	}
}

func TestASCII85(t *testing.T) {
	payload := []byte("Hello, world. This survives a base-85 round trip.")
	enc := make([]byte, ascii85.MaxEncodedLen(len(payload)))
	n := ascii85.Encode(enc, payload)
	enc = append(enc[:n], '~', '>')

	out, err := filters.ASCII85{}.Decode(enc, filters.Parms{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Errorf("got %q", out)
	}
}

func TestRunLength(t *testing.T) {
	// 2 → copy 3 literal bytes; 254 → repeat next byte 3 times; 128 → EOD.
	in := []byte{2, 'a', 'b', 'c', 254, 'x', 128, 'z'}
	out, err := filters.RunLength{}.Decode(in, filters.Parms{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != "abcxxx" {
		t.Errorf("got %q", out)
	}
	if _, err := (filters.RunLength{}).Decode([]byte{5, 'a'}, filters.Parms{}); err == nil {
		t.Error("expected error for truncated run")
	}
}

func TestPNGPredictorUp(t *testing.T) {
	// Two rows of 3 columns, 1 color, 8 bpc, both rows Up-filtered.
	raw := []byte{
		2, 10, 20, 30,
		2, 1, 2, 3,
	}
	enc, err := filters.FlateEncode(raw, 6)
	if err != nil {
		t.Fatalf("FlateEncode: %v", err)
	}
	out, err := filters.Flate{}.Decode(enc, filters.Parms{Predictor: 12, Colors: 1, BitsPerComponent: 8, Columns: 3})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []byte{10, 20, 30, 11, 22, 33}
	if !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestPipelineChain(t *testing.T) {
	payload := []byte("layered")
	flated, err := filters.FlateEncode(payload, 6)
	if err != nil {
		t.Fatalf("FlateEncode: %v", err)
	}
	hexed := make([]byte, 0, len(flated)*2+1)
	const digits = "0123456789ABCDEF"
	for _, b := range flated {
		hexed = append(hexed, digits[b>>4], digits[b&0xF])
	}
	hexed = append(hexed, '>')

	p := filters.Default()
	out, remaining, err := p.Decode(hexed, []string{"ASCIIHexDecode", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("remaining = %v", remaining)
	}
	if !bytes.Equal(out, payload) {
		t.Errorf("got %q", out)
	}
}

func TestPipelineStopsAtUnsupported(t *testing.T) {
	p := filters.Default()
	in := []byte{0xFF, 0xD8} // JPEG SOI; must pass through untouched
	out, remaining, err := p.Decode(in, []string{"DCTDecode"}, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, in) || len(remaining) != 1 || remaining[0] != "DCTDecode" {
		t.Errorf("out=%x remaining=%v", out, remaining)
	}
	if p.Supports([]string{"FlateDecode", "DCTDecode"}) {
		t.Error("Supports should be false for DCTDecode")
	}
}
