// Package memfile provides an in-memory seekable byte stream.
package memfile

import (
	"errors"
	"io"
)

// File is an in-memory io.ReadWriteSeeker.
type File struct {
	buf []byte
	pos int
}

// New returns a File holding a copy of b, positioned at the start.
func New(b []byte) *File {
	return &File{buf: append([]byte(nil), b...)}
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	if f.pos >= len(f.buf) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += n
	return n, nil
}

// Write implements io.Writer.
func (f *File) Write(p []byte) (int, error) {
	// If the offset is past the end of the buffer, grow the buffer with null bytes.
	if extra := f.pos - len(f.buf); extra > 0 {
		f.buf = append(f.buf, make([]byte, extra)...)
	}

	// Overwrite what we can, append the rest.
	n := copy(f.buf[f.pos:], p)
	f.buf = append(f.buf, p[n:]...)

	f.pos += len(p)
	return len(p), nil
}

// ErrNegativeResultPos negative result pos.
var ErrNegativeResultPos = errors.New("negative result pos")

// ErrInvalidWhence invalid whence.
var ErrInvalidWhence = errors.New("invalid whence")

// Seek implements io.Seeker. Seeking past the end is allowed.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = int64(f.pos) + offset
	case io.SeekEnd:
		newPos = int64(len(f.buf)) + offset
	default:
		return 0, ErrInvalidWhence
	}
	if newPos < 0 {
		return 0, ErrNegativeResultPos
	}
	f.pos = int(newPos)
	return newPos, nil
}

// Bytes returns the underlying byte slice.
func (f *File) Bytes() []byte {
	return f.buf
}

// Len returns the buffer length.
func (f *File) Len() int {
	return len(f.buf)
}
