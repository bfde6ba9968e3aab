package mp4

import "github.com/icza/bitio"

// versionedLen returns the wire width of a field that
// is 64-bit in version 1 boxes and 32-bit otherwise.
func versionedLen(version uint8) uint64 {
	if version == 1 {
		return 8
	}
	return 4
}

func readVersioned(br *bitio.Reader, version uint8) uint64 {
	if version == 1 {
		return br.TryReadBits(64)
	}
	return br.TryReadBits(32)
}

// writeVersioned narrows v to its low 32 bits on version 0.
func writeVersioned(w *bitio.Writer, v uint64, version uint8) {
	if version == 1 {
		w.TryWriteBits(v, 64)
		return
	}
	w.TryWriteBits(v&0xffffffff, 32)
}

/************************* FullBox **************************/

// FullBox is ISOBMFF FullBox.
type FullBox struct {
	Version uint8   `json:"version"`
	Flags   [3]byte `json:"flags"`
}

// FieldSize returns the marshaled size in bytes.
func (b *FullBox) FieldSize() uint64 {
	return 4
}

// MarshalField box to writer.
func (b *FullBox) MarshalField(w *bitio.Writer) {
	w.TryWriteByte(b.Version)
	w.TryWrite(b.Flags[:])
}

func (b *FullBox) unmarshalField(br *bitio.Reader) {
	b.Version = br.TryReadByte()
	b.Flags[0] = br.TryReadByte()
	b.Flags[1] = br.TryReadByte()
	b.Flags[2] = br.TryReadByte()
}
