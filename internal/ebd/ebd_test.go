package ebd

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestEncodeSizeLaw(t *testing.T) {
	cases := []struct {
		w, h, depth int
	}{
		{1, 1, 1},
		{7, 3, 1},
		{8, 2, 1},
		{9, 2, 1},
		{5, 4, 2},
		{3, 3, 4},
		{153, 102, 8},
		{306, 1, 4},
	}
	for _, c := range cases {
		indices := make([]uint8, c.w*c.h)
		im, err := Encode(c.w, c.h, c.depth, indices)
		if err != nil {
			t.Fatalf("Encode %dx%d@%d: %v", c.w, c.h, c.depth, err)
		}
		want := (c.w*c.depth + 7) / 8 * c.h
		if len(im.Data) != want {
			t.Errorf("%dx%d@%d: got %d bytes, want %d", c.w, c.h, c.depth, len(im.Data), want)
		}
	}
}

func TestEncodePacksMSBFirst(t *testing.T) {
	// 1-bit: pixels 1,0,1,1 in a 4x1 image pack into 0b10110000.
	im, err := Encode(4, 1, 1, []uint8{1, 0, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if im.Data[0] != 0b1011_0000 {
		t.Errorf("got %08b", im.Data[0])
	}

	// 4-bit: 0xA, 0xB, 0xC in a 3x1 image pack as 0xAB 0xC0.
	im, err = Encode(3, 1, 4, []uint8{0xA, 0xB, 0xC})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(im.Data, []byte{0xAB, 0xC0}) {
		t.Errorf("got % X", im.Data)
	}
}

func TestEncodeRowPadding(t *testing.T) {
	// 3 pixels at 2bpp is one byte per row; second row must start at a
	// fresh byte.
	im, err := Encode(3, 2, 2, []uint8{1, 2, 3, 3, 2, 1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(im.Data, []byte{0b01_10_11_00, 0b11_10_01_00}) {
		t.Errorf("got % 08b", im.Data)
	}
}

func TestEncodeRejectsWideIndex(t *testing.T) {
	_, err := Encode(2, 1, 2, []uint8{3, 4})
	if !errors.Is(err, ErrInvalidPixelIndex) {
		t.Fatalf("expected ErrInvalidPixelIndex, got %v", err)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	if _, err := Encode(2, 2, 3, make([]uint8, 4)); err == nil {
		t.Error("depth 3 accepted")
	}
	if _, err := Encode(0, 2, 1, nil); err == nil {
		t.Error("zero width accepted")
	}
	if _, err := Encode(2, 2, 1, make([]uint8, 3)); err == nil {
		t.Error("short index buffer accepted")
	}
}

func TestRoundTrip(t *testing.T) {
	for _, depth := range []int{1, 2, 4, 8} {
		w, h := 13, 7
		max := 1<<depth - 1
		indices := make([]uint8, w*h)
		for i := range indices {
			indices[i] = uint8(i * 31 % (max + 1))
		}
		im, err := Encode(w, h, depth, indices)
		if err != nil {
			t.Fatalf("depth %d: %v", depth, err)
		}
		if !bytes.Equal(im.Decode(), indices) {
			t.Errorf("depth %d: round trip mismatch", depth)
		}
	}
}

func TestSerializeGolden(t *testing.T) {
	im, err := Encode(2, 2, 8, []uint8{0x00, 0x11, 0x22, 0x33})
	if err != nil {
		t.Fatal(err)
	}
	s := im.Serialize()
	if !strings.HasPrefix(s, "ebd:") {
		t.Fatalf("missing scheme: %q", s)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "ebd:"))
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{8, 0x00, 0x02, 0x00, 0x02, 0x00, 0x11, 0x22, 0x33}
	if !bytes.Equal(raw, want) {
		t.Errorf("payload % X, want % X", raw, want)
	}
}

func TestScanlineFirstRowVerbatim(t *testing.T) {
	row := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	got := Scanline(row, 8)
	want := append([]byte{0xFF}, row...)
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestScanlineUnchangedRow(t *testing.T) {
	data := append([]byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8}...)
	got := Scanline(data, 8)
	// First row verbatim, second row a single zero flag byte.
	want := append(append([]byte{0xFF}, data[:8]...), 0x00)
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestScanlinePartialChange(t *testing.T) {
	data := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		1, 2, 9, 4, 5, 6, 7, 10,
	}
	got := Scanline(data, 8)
	// Second row: bytes 2 and 7 changed -> flags 0b00100001, then 9, 10.
	want := append(append([]byte{0xFF}, data[:8]...), 0b0010_0001, 9, 10)
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestScanlineShortRows(t *testing.T) {
	data := []byte{
		1, 2, 3,
		1, 9, 3,
	}
	got := Scanline(data, 3)
	// Row one: three-byte group, flags 0b11100000. Row two: only byte 1
	// changed -> 0b01000000, 9.
	want := []byte{0b1110_0000, 1, 2, 3, 0b0100_0000, 9}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}
