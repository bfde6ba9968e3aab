package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/icza/bitio"
)

// Header lengths.
const (
	SmallHeaderLen = 8
	LargeHeaderLen = 16
	UserTypeLen    = 16
)

// Header is the box header.
//
//	size     uint32  // 1: largesize follows, 0: box extends to end of stream.
//	type     [4]byte
//	largesize uint64 // if size == 1
//	usertype [16]byte // if type == 'uuid'
type Header struct {
	Type BoxType `json:"type"`

	// Size is the declared size, header included.
	Size uint64 `json:"size"`

	// HeaderLen is the number of header bytes on the wire.
	HeaderLen uint64 `json:"headerLen"`

	// Offset is the stream position of the first header byte.
	Offset uint64 `json:"offset"`

	UserType []byte `json:"userType,omitempty"`
}

// PayloadSize returns the declared size minus the header.
func (h Header) PayloadSize() uint64 {
	return h.Size - h.HeaderLen
}

// End returns the stream position right after the box.
func (h Header) End() uint64 {
	return h.Offset + h.Size
}

func (h Header) String() string {
	return fmt.Sprintf("%v offset=%d size=%d", h.Type, h.Offset, h.Size)
}

// HeaderLen returns the header length used to write
// a box of the given type and payload size.
func HeaderLen(typ BoxType, payload uint64) uint64 {
	n := uint64(SmallHeaderLen)
	if typ == TypeUUID {
		n += UserTypeLen
	}
	if payload+n > math.MaxUint32 {
		n += LargeHeaderLen - SmallHeaderLen
	}
	return n
}

// ReadHeader reads a box header at the current stream position.
// io.EOF is returned unwrapped if the stream ends before the first byte.
// A box that extends past the end of the stream is a framing error.
func ReadHeader(r io.ReadSeeker) (Header, error) {
	h, err := readHeader(r)
	if err != nil {
		return Header{}, err
	}
	streamEnd, err := streamLen(r)
	if err != nil {
		return Header{}, err
	}
	if h.End() > uint64(streamEnd) {
		return Header{}, fmt.Errorf("%w: %v at %d: size %d extends past end of stream at %d",
			ErrFraming, h.Type, h.Offset, h.Size, streamEnd)
	}
	return h, nil
}

// streamLen returns the length of the stream and
// leaves the stream position unchanged.
func streamLen(r io.Seeker) (int64, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := r.Seek(pos, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// readHeader reads a header without comparing its size to the stream length.
func readHeader(r io.ReadSeeker) (Header, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return Header{}, err
	}

	var buf [UserTypeLen]byte
	if _, err := io.ReadFull(r, buf[:SmallHeaderLen]); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("%w: header at %d: %v", ErrFraming, pos, err)
	}

	h := Header{
		Offset:    uint64(pos),
		HeaderLen: SmallHeaderLen,
	}
	size := uint64(binary.BigEndian.Uint32(buf[0:4]))
	copy(h.Type[:], buf[4:8])

	switch size {
	case 1:
		if _, err := io.ReadFull(r, buf[:8]); err != nil {
			return Header{}, fmt.Errorf("%w: %v largesize at %d: %v", ErrFraming, h.Type, pos, err)
		}
		size = binary.BigEndian.Uint64(buf[:8])
		h.HeaderLen = LargeHeaderLen
	case 0:
		end, err := streamLen(r)
		if err != nil {
			return Header{}, err
		}
		size = uint64(end - pos)
	}

	if h.Type == TypeUUID {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Header{}, fmt.Errorf("%w: usertype at %d: %v", ErrFraming, pos, err)
		}
		h.UserType = append([]byte(nil), buf[:]...)
		h.HeaderLen += UserTypeLen
	}

	if size < h.HeaderLen {
		return Header{}, fmt.Errorf("%w: %v at %d: size %d is smaller than its header",
			ErrFraming, h.Type, pos, size)
	}
	if size > math.MaxInt64-uint64(pos) {
		return Header{}, fmt.Errorf("%w: %v at %d: size %d overflows the stream offset",
			ErrFraming, h.Type, pos, size)
	}
	h.Size = size
	return h, nil
}

// WriteHeader writes a box header, size includes the header.
// The largesize form is used when size does not fit in 32 bits.
func WriteHeader(w *bitio.Writer, typ BoxType, size uint64, userType []byte) error {
	if userType != nil && len(userType) != UserTypeLen {
		return fmt.Errorf("%w: usertype must be %d bytes", ErrFraming, UserTypeLen)
	}

	if size > math.MaxUint32 {
		w.TryWriteBits(1, 32)
		w.TryWrite(typ[:])
		w.TryWriteBits(size, 64)
	} else {
		w.TryWriteBits(size, 32)
		w.TryWrite(typ[:])
	}

	if typ == TypeUUID {
		var ut [UserTypeLen]byte
		copy(ut[:], userType)
		w.TryWrite(ut[:])
	}
	return w.TryError
}
