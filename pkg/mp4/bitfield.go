package mp4

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/icza/bitio"
)

func checkWidths(widths []uint8) error {
	total := 0
	for _, n := range widths {
		if n == 0 || n > 32 {
			return fmt.Errorf("%w: %v", ErrBitWidths, widths)
		}
		total += int(n)
	}
	if total != 32 {
		return fmt.Errorf("%w: %v sums to %d", ErrBitWidths, widths, total)
	}
	return nil
}

// Unpack splits a 32-bit word into fields of the given
// bit widths, most significant field first.
func Unpack(word uint32, widths ...uint8) ([]uint32, error) {
	if err := checkWidths(widths); err != nil {
		return nil, err
	}

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], word)
	br := bitio.NewReader(bytes.NewReader(buf[:]))

	fields := make([]uint32, len(widths))
	for i, n := range widths {
		fields[i] = uint32(br.TryReadBits(n))
	}
	if br.TryError != nil {
		return nil, br.TryError
	}
	return fields, nil
}

// Pack is the inverse of Unpack. Values that do not fit
// their field width return ErrFieldOverflow.
func Pack(values []uint32, widths ...uint8) (uint32, error) {
	if err := checkWidths(widths); err != nil {
		return 0, err
	}
	if len(values) != len(widths) {
		return 0, fmt.Errorf("%w: %d values for %d fields", ErrBitWidths, len(values), len(widths))
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4))
	w := bitio.NewWriter(buf)
	for i, n := range widths {
		limit := uint64(1)<<n - 1
		if uint64(values[i]) > limit {
			return 0, fmt.Errorf("%w: field %d: %d does not fit in %d bits",
				ErrFieldOverflow, i, values[i], n)
		}
		w.TryWriteBits(uint64(values[i]), n)
	}
	if w.TryError != nil {
		return 0, w.TryError
	}
	return binary.BigEndian.Uint32(buf.Bytes()), nil
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
