package ebd

import (
	"encoding/base64"
	"encoding/binary"
)

// Scanline delta compression, after the Palm Inc. implementation. Each row
// is emitted as groups of eight bytes: a flag byte whose bits mark which of
// the following eight positions changed relative to the previous row,
// followed by only the changed bytes. The first row has no predecessor, so
// every flag bit is set and the row is copied whole. Short trailing groups
// pad the flag byte from the right.

// SerializeCompressed is the scanline variant of Serialize: the same
// five-byte header with the depth byte's high bit set, followed by the
// scanline-compressed pixel bytes.
func (im *Image) SerializeCompressed() string {
	packed := Scanline(im.Data, RowBytes(im.Width, im.Depth))
	buf := make([]byte, 5+len(packed))
	buf[0] = byte(im.Depth) | 0x80
	binary.BigEndian.PutUint16(buf[1:3], uint16(im.Width))
	binary.BigEndian.PutUint16(buf[3:5], uint16(im.Height))
	copy(buf[5:], packed)
	return "ebd:" + base64.StdEncoding.EncodeToString(buf)
}

// Scanline compresses packed image data row-delta-wise. rowBytes is the
// packed width of one row.
func Scanline(data []byte, rowBytes int) []byte {
	var buf []byte
	var prev []byte
	for off := 0; off < len(data); off += rowBytes {
		end := off + rowBytes
		if end > len(data) {
			end = len(data)
		}
		buf = appendScanlineRow(buf, data[off:end], prev)
		prev = data[off:end]
	}
	return buf
}

func appendScanlineRow(buf, row, prev []byte) []byte {
	for off := 0; off < len(row); off += 8 {
		group := row[off:]
		if len(group) > 8 {
			group = group[:8]
		}
		flags := byte(0)
		changed := make([]byte, 0, 8)
		for i, b := range group {
			if prev == nil || off+i >= len(prev) || prev[off+i] != b {
				flags |= 1 << (7 - i)
				changed = append(changed, b)
			}
		}
		// Pad short groups so flag bits stay left-aligned.
		buf = append(buf, flags)
		buf = append(buf, changed...)
	}
	return buf
}
