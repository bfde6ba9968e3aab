package mp4

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/icza/bitio"
)

// Registry maps box types to constructors. It is read-only after creation.
type Registry struct {
	ctors map[BoxType]func() Box
}

// NewRegistry returns a registry holding a copy of ctors.
func NewRegistry(ctors map[BoxType]func() Box) *Registry {
	r := &Registry{ctors: make(map[BoxType]func() Box, len(ctors))}
	for typ, ctor := range ctors {
		r.ctors[typ] = ctor
	}
	return r
}

// New returns a zero box of the given type.
func (r *Registry) New(typ BoxType) (Box, bool) {
	ctor, exist := r.ctors[typ]
	if !exist {
		return nil, false
	}
	return ctor(), true
}

// Has reports whether typ is registered.
func (r *Registry) Has(typ BoxType) bool {
	_, exist := r.ctors[typ]
	return exist
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []BoxType {
	types := make([]BoxType, 0, len(r.ctors))
	for typ := range r.ctors {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].String() < types[j].String()
	})
	return types
}

// DefaultRegistry contains every box type implemented by this package.
var DefaultRegistry = NewRegistry(map[BoxType]func() Box{
	TypeFree: func() Box { return &Free{} },
	TypeMehd: func() Box { return &Mehd{} },
	TypeMvex: func() Box { return &Mvex{} },
	TypeSidx: func() Box { return &Sidx{} },
	TypeSkip: func() Box { return &Free{} },
	TypeTrex: func() Box { return &Trex{} },
})

// SkipHandler is called for every child box a container skips.
type SkipHandler func(parent BoxType, child Header)

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithRegistry sets the registry used by DecodeBody.
func WithRegistry(r *Registry) DecoderOption {
	return func(d *Decoder) {
		d.registry = r
	}
}

// WithSkipHandler sets a handler for skipped child boxes.
func WithSkipHandler(fn SkipHandler) DecoderOption {
	return func(d *Decoder) {
		d.onSkip = fn
	}
}

// Decoder decodes boxes from a seekable stream.
// After a failed decode the stream position is undefined.
type Decoder struct {
	r        io.ReadSeeker
	registry *Registry
	onSkip   SkipHandler
}

// NewDecoder creates a new decoder.
func NewDecoder(r io.ReadSeeker, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		r:        r,
		registry: DefaultRegistry,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ReadHeader reads the next box header.
func (d *Decoder) ReadHeader() (Header, error) {
	return ReadHeader(d.r)
}

// ReadBox reads the next header and decodes the box.
func (d *Decoder) ReadBox() (Box, Header, error) {
	h, err := d.ReadHeader()
	if err != nil {
		return nil, Header{}, err
	}
	b, err := d.DecodeBody(h)
	if err != nil {
		return nil, Header{}, err
	}
	return b, h, nil
}

// DecodeBody decodes the payload of a box whose header was just read
// and leaves the stream at the declared end of the box.
func (d *Decoder) DecodeBody(h Header) (Box, error) {
	b, exist := d.registry.New(h.Type)
	if !exist {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedVariant, h.Type)
	}
	if err := d.unmarshal(b, h); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *Decoder) unmarshal(b Box, h Header) error {
	if err := b.Unmarshal(d, h); err != nil {
		return fmt.Errorf("%v: %w", h.Type, err)
	}
	return d.Skip(h)
}

// Skip moves the stream to the declared end of the box.
func (d *Decoder) Skip(h Header) error {
	_, err := d.r.Seek(int64(h.End()), io.SeekStart)
	return err
}

// SkipChild skips a child that the parent container does not recognize.
func (d *Decoder) SkipChild(parent BoxType, child Header) error {
	if d.onSkip != nil {
		d.onSkip(parent, child)
	}
	return d.Skip(child)
}

// Children calls fn for each child header of the parent box until the
// declared size of the parent is consumed. A child that claims more bytes
// than the parent has left fails with ErrBudgetExceeded before fn is called.
// Trailing bytes too short to hold a header are ignored.
func (d *Decoder) Children(parent Header, fn func(child Header) error) error {
	end := parent.End()
	for {
		pos, err := d.r.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		if uint64(pos) >= end || end-uint64(pos) < SmallHeaderLen {
			break
		}
		remaining := end - uint64(pos)

		// The parent is already bounded by the stream,
		// the child only needs to fit in the parent.
		child, err := readHeader(d.r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %v: stream ended at %d, box ends at %d",
					ErrFraming, parent.Type, pos, end)
			}
			return err
		}
		if child.Size > remaining {
			return fmt.Errorf("%w: %v child %v claims %d bytes, %d left",
				ErrBudgetExceeded, parent.Type, child.Type, child.Size, remaining)
		}

		if err := fn(child); err != nil {
			return err
		}
		if err := d.Skip(child); err != nil {
			return err
		}
	}
	return d.Skip(parent)
}

// payload returns a bit reader limited to the payload of h.
func (d *Decoder) payload(h Header) *bitio.Reader {
	return bitio.NewReader(io.LimitReader(d.r, int64(h.PayloadSize())))
}

func fieldErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: truncated payload: %v", ErrFraming, err)
}
