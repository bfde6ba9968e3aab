package mp4

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/icza/bitio"
	"github.com/stretchr/testify/require"
)

func TestReadHeader(t *testing.T) {
	userType := []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	}
	testCases := []struct {
		name string
		bin  []byte
		want Header
	}{
		{
			name: "compact",
			bin: []byte{
				0x00, 0x00, 0x00, 0x0c, // size
				'f', 'r', 'e', 'e', // type
				0x00, 0x00, 0x00, 0x00, // payload
			},
			want: Header{Type: TypeFree, Size: 12, HeaderLen: 8},
		},
		{
			name: "largesize",
			bin: []byte{
				0x00, 0x00, 0x00, 0x01, // size
				'f', 'r', 'e', 'e', // type
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x14, // largesize
				0x00, 0x00, 0x00, 0x00, // payload
			},
			want: Header{Type: TypeFree, Size: 20, HeaderLen: 16},
		},
		{
			name: "to end of stream",
			bin: []byte{
				0x00, 0x00, 0x00, 0x00, // size
				'f', 'r', 'e', 'e', // type
				0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // payload
			},
			want: Header{Type: TypeFree, Size: 14, HeaderLen: 8},
		},
		{
			name: "uuid",
			bin: join([]byte{
				0x00, 0x00, 0x00, 0x1c, // size
				'u', 'u', 'i', 'd', // type
			}, userType, []byte{
				0x00, 0x00, 0x00, 0x00, // payload
			}),
			want: Header{Type: TypeUUID, Size: 28, HeaderLen: 24, UserType: userType},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := bytes.NewReader(tc.bin)
			h, err := ReadHeader(r)
			require.NoError(t, err)
			require.Equal(t, tc.want, h)
			require.Equal(t, uint64(len(tc.bin)), h.End())

			// Stream is left at the start of the payload.
			pos, err := r.Seek(0, io.SeekCurrent)
			require.NoError(t, err)
			require.Equal(t, int64(h.HeaderLen), pos)
		})
	}
}

func TestReadHeaderOffset(t *testing.T) {
	r := bytes.NewReader(join(testTrex1, testMehdV0))
	_, err := r.Seek(int64(len(testTrex1)), io.SeekStart)
	require.NoError(t, err)

	h, err := ReadHeader(r)
	require.NoError(t, err)
	require.Equal(t, uint64(32), h.Offset)
	require.Equal(t, uint64(48), h.End())
	require.Equal(t, uint64(8), h.PayloadSize())
	require.Equal(t, "mehd offset=32 size=16", h.String())
}

func TestReadHeaderErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader(nil))
		require.Equal(t, io.EOF, err)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x08, 'f'}))
		require.ErrorIs(t, err, ErrFraming)
	})
	t.Run("truncated largesize", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{
			0x00, 0x00, 0x00, 0x01, 'f', 'r', 'e', 'e', 0x00, 0x00,
		}))
		require.ErrorIs(t, err, ErrFraming)
	})
	t.Run("truncated usertype", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{
			0x00, 0x00, 0x00, 0x18, 'u', 'u', 'i', 'd', 0x00,
		}))
		require.ErrorIs(t, err, ErrFraming)
	})
	t.Run("size smaller than header", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{
			0x00, 0x00, 0x00, 0x04, 'f', 'r', 'e', 'e',
		}))
		require.ErrorIs(t, err, ErrFraming)
	})
	t.Run("largesize smaller than header", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{
			0x00, 0x00, 0x00, 0x01, 'f', 'r', 'e', 'e',
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x08,
		}))
		require.ErrorIs(t, err, ErrFraming)
	})
}

func TestReadHeaderBounds(t *testing.T) {
	t.Run("past end of stream", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{
			0x00, 0x00, 0x00, 0x10, // size
			'f', 'r', 'e', 'e', // type
			0x00, 0x00, 0x00, 0x00, // payload
		}))
		require.ErrorIs(t, err, ErrFraming)
	})
	t.Run("largesize past end of stream", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{
			0x00, 0x00, 0x00, 0x01, // size
			'f', 'r', 'e', 'e', // type
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x18, // largesize
		}))
		require.ErrorIs(t, err, ErrFraming)
	})
	t.Run("largesize overflows offset", func(t *testing.T) {
		bin := join(testUnknown, []byte{
			0x00, 0x00, 0x00, 0x01, // size
			'z', 'z', 'z', 'z', // type
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xf4, // largesize
		})
		r := bytes.NewReader(bin)
		_, err := r.Seek(int64(len(testUnknown)), io.SeekStart)
		require.NoError(t, err)

		_, err = readHeader(r)
		require.ErrorIs(t, err, ErrFraming)
	})
	t.Run("largesize at max int64", func(t *testing.T) {
		h, err := readHeader(bytes.NewReader([]byte{
			0x00, 0x00, 0x00, 0x01, // size
			'z', 'z', 'z', 'z', // type
			0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, // largesize
		}))
		require.NoError(t, err)
		require.Equal(t, uint64(math.MaxInt64), h.End())
	})
	t.Run("walk ends", func(t *testing.T) {
		bin := join(testUnknown, []byte{
			0x00, 0x00, 0x00, 0x01, // size
			'z', 'z', 'z', 'z', // type
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xf4, // largesize
		})
		d := NewDecoder(bytes.NewReader(bin))

		h, err := d.ReadHeader()
		require.NoError(t, err)
		require.Equal(t, BoxType{'a', 'b', 'c', 'd'}, h.Type)
		require.NoError(t, d.Skip(h))

		_, err = d.ReadHeader()
		require.ErrorIs(t, err, ErrFraming)
	})
}

func TestHeaderLen(t *testing.T) {
	require.Equal(t, uint64(8), HeaderLen(TypeFree, 0))
	require.Equal(t, uint64(8), HeaderLen(TypeFree, math.MaxUint32-8))
	require.Equal(t, uint64(16), HeaderLen(TypeFree, math.MaxUint32-7))
	require.Equal(t, uint64(24), HeaderLen(TypeUUID, 4))
	require.Equal(t, uint64(32), HeaderLen(TypeUUID, math.MaxUint32))
}

func TestWriteHeader(t *testing.T) {
	t.Run("compact", func(t *testing.T) {
		var buf bytes.Buffer
		w := bitio.NewWriter(&buf)
		require.NoError(t, WriteHeader(w, TypeSidx, 44, nil))
		require.Equal(t, sidxSample[:8], buf.Bytes())
	})
	t.Run("largesize", func(t *testing.T) {
		var buf bytes.Buffer
		w := bitio.NewWriter(&buf)
		require.NoError(t, WriteHeader(w, TypeFree, 1<<32+16, nil))
		require.Equal(t, []byte{
			0x00, 0x00, 0x00, 0x01, // size
			'f', 'r', 'e', 'e', // type
			0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x10, // largesize
		}, buf.Bytes())

		h, err := readHeader(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		require.Equal(t, uint64(1<<32+16), h.Size)
		require.Equal(t, uint64(LargeHeaderLen), h.HeaderLen)

		// The payload is not in the stream.
		_, err = ReadHeader(bytes.NewReader(buf.Bytes()))
		require.ErrorIs(t, err, ErrFraming)
	})
	t.Run("uuid", func(t *testing.T) {
		var buf bytes.Buffer
		w := bitio.NewWriter(&buf)
		require.NoError(t, WriteHeader(w, TypeUUID, 24, nil))
		require.Len(t, buf.Bytes(), 24)

		err := WriteHeader(w, TypeUUID, 24, []byte{1, 2})
		require.ErrorIs(t, err, ErrFraming)
	})
}
