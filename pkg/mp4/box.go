// Package mp4 decodes and encodes ISO base media file format boxes.
package mp4

import (
	"fmt"
	"io"

	"github.com/icza/bitio"
)

// BoxType is mpeg box type.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// MarshalText implements encoding.TextMarshaler.
func (t BoxType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Box types known to this package.
var (
	TypeFree = BoxType{'f', 'r', 'e', 'e'}
	TypeMehd = BoxType{'m', 'e', 'h', 'd'}
	TypeMoov = BoxType{'m', 'o', 'o', 'v'}
	TypeMvex = BoxType{'m', 'v', 'e', 'x'}
	TypeSidx = BoxType{'s', 'i', 'd', 'x'}
	TypeSkip = BoxType{'s', 'k', 'i', 'p'}
	TypeTrex = BoxType{'t', 'r', 'e', 'x'}
	TypeUUID = BoxType{'u', 'u', 'i', 'd'}
)

// ImmutableBox is common interface of box.
type ImmutableBox interface {
	// Type returns the BoxType.
	Type() BoxType

	// Size returns the marshaled payload size in bytes, header excluded.
	// The size must be known before marshaling
	// since the box header contains the size.
	Size() uint64

	// Marshal box payload to writer.
	Marshal(w *bitio.Writer) error
}

// Box is a box that can also be decoded.
type Box interface {
	ImmutableBox

	// Unmarshal decodes the payload described by h. The stream is
	// positioned right after the header when Unmarshal is called.
	Unmarshal(d *Decoder, h Header) error
}

// validator is implemented by boxes with invariants that
// must hold before any byte is written.
type validator interface {
	Validate() error
}

// WireSize returns the total marshaled size including the header.
func WireSize(b ImmutableBox) uint64 {
	size := b.Size()
	return HeaderLen(b.Type(), size) + size
}

// WriteSingleBox write a single box.
func WriteSingleBox(w *bitio.Writer, b ImmutableBox) (uint64, error) {
	if v, ok := b.(validator); ok {
		if err := v.Validate(); err != nil {
			return 0, fmt.Errorf("%v: %w", b.Type(), err)
		}
	}

	size := WireSize(b)
	if err := WriteHeader(w, b.Type(), size, nil); err != nil {
		return 0, err
	}
	if err := b.Marshal(w); err != nil {
		return 0, err
	}
	return size, w.TryError
}

// Encode writes b to out and returns the number of bytes written.
func Encode(out io.Writer, b ImmutableBox) (uint64, error) {
	w := bitio.NewWriter(out)
	n, err := WriteSingleBox(w, b)
	if err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return n, nil
}
