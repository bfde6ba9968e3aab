package mp4

import (
	"fmt"
	"io"

	"github.com/icza/bitio"
)

/*************************** free ****************************/

// Free is ISOBMFF free or skip box type. The payload is kept as is.
type Free struct {
	Tag  BoxType `json:"-"`
	Data []byte  `json:"data,omitempty"`
}

// Type returns the BoxType.
func (b *Free) Type() BoxType {
	if b.Tag == (BoxType{}) {
		return TypeFree
	}
	return b.Tag
}

// Size returns the marshaled size in bytes.
func (b *Free) Size() uint64 {
	return uint64(len(b.Data))
}

// Marshal box to writer.
func (b *Free) Marshal(w *bitio.Writer) error {
	w.TryWrite(b.Data)
	return w.TryError
}

// Unmarshal box from decoder.
func (b *Free) Unmarshal(d *Decoder, h Header) error {
	b.Tag = h.Type
	data, err := io.ReadAll(io.LimitReader(d.r, int64(h.PayloadSize())))
	if err != nil {
		return err
	}
	if uint64(len(data)) != h.PayloadSize() {
		return fmt.Errorf("%w: got %d of %d payload bytes", ErrFraming, len(data), h.PayloadSize())
	}
	if len(data) != 0 {
		b.Data = data
	}
	return nil
}

func (b *Free) String() string {
	return fmt.Sprintf("size=%d", len(b.Data))
}

/*************************** mehd ****************************/

// Mehd is ISOBMFF mehd box type.
type Mehd struct {
	FullBox
	FragmentDuration uint64 `json:"fragmentDuration"`
}

// Type returns the BoxType.
func (*Mehd) Type() BoxType {
	return TypeMehd
}

// Size returns the marshaled size in bytes.
func (b *Mehd) Size() uint64 {
	return b.FullBox.FieldSize() + versionedLen(b.Version)
}

// Marshal box to writer.
func (b *Mehd) Marshal(w *bitio.Writer) error {
	b.FullBox.MarshalField(w)
	writeVersioned(w, b.FragmentDuration, b.Version)
	return w.TryError
}

// Unmarshal box from decoder.
func (b *Mehd) Unmarshal(d *Decoder, h Header) error {
	br := d.payload(h)
	b.FullBox.unmarshalField(br)
	b.FragmentDuration = readVersioned(br, b.Version)
	return fieldErr(br.TryError)
}

func (b *Mehd) String() string {
	return fmt.Sprintf("version=%d fragment_duration=%d", b.Version, b.FragmentDuration)
}

/*************************** mvex ****************************/

// Mvex is ISOBMFF mvex box type. It holds an optional mehd
// and at least one trex, written in that order.
type Mvex struct {
	Mehd *Mehd  `json:"mehd,omitempty"`
	Trex []*Trex `json:"trex"`
}

// Type returns the BoxType.
func (*Mvex) Type() BoxType {
	return TypeMvex
}

// Size returns the marshaled size in bytes.
func (b *Mvex) Size() uint64 {
	var total uint64
	if b.Mehd != nil {
		total += WireSize(b.Mehd)
	}
	for _, trex := range b.Trex {
		total += WireSize(trex)
	}
	return total
}

// Validate checks that at least one trex is present.
func (b *Mvex) Validate() error {
	if len(b.Trex) == 0 {
		return fmt.Errorf("%w: %v", ErrMissingRequiredChild, TypeTrex)
	}
	return nil
}

// Marshal box to writer.
func (b *Mvex) Marshal(w *bitio.Writer) error {
	if b.Mehd != nil {
		if _, err := WriteSingleBox(w, b.Mehd); err != nil {
			return err
		}
	}
	for _, trex := range b.Trex {
		if _, err := WriteSingleBox(w, trex); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal box from decoder. A second mehd replaces the first,
// unknown children are skipped.
func (b *Mvex) Unmarshal(d *Decoder, h Header) error {
	err := d.Children(h, func(child Header) error {
		switch child.Type {
		case TypeMehd:
			mehd := &Mehd{}
			if err := d.unmarshal(mehd, child); err != nil {
				return err
			}
			b.Mehd = mehd
		case TypeTrex:
			trex := &Trex{}
			if err := d.unmarshal(trex, child); err != nil {
				return err
			}
			b.Trex = append(b.Trex, trex)
		default:
			return d.SkipChild(TypeMvex, child)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return b.Validate()
}

func (b *Mvex) String() string {
	return fmt.Sprintf("mehd=%t trex=%d", b.Mehd != nil, len(b.Trex))
}

/*************************** sidx ****************************/

// Sidx reference types.
const (
	SidxReferenceMedia = 0
	SidxReferenceIndex = 1
)

// SidxReference is a single sidx entry.
//
//	reference_type      1 bit
//	referenced_size     31 bits
//	subsegment_duration 32 bits
//	starts_with_SAP     1 bit
//	SAP_type            3 bits
//	SAP_delta_time      28 bits
type SidxReference struct {
	ReferenceType      uint8  `json:"referenceType"`
	ReferencedSize     uint32 `json:"referencedSize"`
	SubsegmentDuration uint32 `json:"subsegmentDuration"`
	StartsWithSAP      bool   `json:"startsWithSAP"`
	SAPType            uint8  `json:"sapType"`
	SAPDeltaTime       uint32 `json:"sapDeltaTime"`
}

const sidxReferenceSize = 12

func (r *SidxReference) pack() (uint32, uint32, error) {
	typeAndSize, err := Pack([]uint32{uint32(r.ReferenceType), r.ReferencedSize}, 1, 31)
	if err != nil {
		return 0, 0, fmt.Errorf("reference type and size: %w", err)
	}
	sap, err := Pack([]uint32{
		boolToUint32(r.StartsWithSAP),
		uint32(r.SAPType),
		r.SAPDeltaTime,
	}, 1, 3, 28)
	if err != nil {
		return 0, 0, fmt.Errorf("stream access point: %w", err)
	}
	return typeAndSize, sap, nil
}

func (r *SidxReference) unpack(typeAndSize uint32, sap uint32) error {
	fields, err := Unpack(typeAndSize, 1, 31)
	if err != nil {
		return err
	}
	r.ReferenceType = uint8(fields[0])
	r.ReferencedSize = fields[1]

	fields, err = Unpack(sap, 1, 3, 28)
	if err != nil {
		return err
	}
	r.StartsWithSAP = fields[0] == 1
	r.SAPType = uint8(fields[1])
	r.SAPDeltaTime = fields[2]
	return nil
}

// Sidx is ISOBMFF sidx box type.
type Sidx struct {
	FullBox
	ReferenceID              uint32          `json:"referenceID"`
	Timescale                uint32          `json:"timescale"`
	EarliestPresentationTime uint64          `json:"earliestPresentationTime"`
	FirstOffset              uint64          `json:"firstOffset"`
	References               []SidxReference `json:"references"`
}

// Type returns the BoxType.
func (*Sidx) Type() BoxType {
	return TypeSidx
}

// Size returns the marshaled size in bytes.
func (b *Sidx) Size() uint64 {
	return b.FullBox.FieldSize() +
		8 + // reference ID, timescale.
		2*versionedLen(b.Version) +
		4 + // reserved, reference count.
		sidxReferenceSize*uint64(len(b.References))
}

// Validate checks that every reference fits its bit fields.
func (b *Sidx) Validate() error {
	if len(b.References) > 0xffff {
		return fmt.Errorf("%w: %d references", ErrFieldOverflow, len(b.References))
	}
	for i := range b.References {
		if _, _, err := b.References[i].pack(); err != nil {
			return fmt.Errorf("reference %d: %w", i, err)
		}
	}
	return nil
}

// Marshal box to writer.
func (b *Sidx) Marshal(w *bitio.Writer) error {
	b.FullBox.MarshalField(w)
	w.TryWriteBits(uint64(b.ReferenceID), 32)
	w.TryWriteBits(uint64(b.Timescale), 32)
	writeVersioned(w, b.EarliestPresentationTime, b.Version)
	writeVersioned(w, b.FirstOffset, b.Version)
	w.TryWriteBits(0, 16) // Reserved.
	w.TryWriteBits(uint64(len(b.References)), 16)
	for i := range b.References {
		typeAndSize, sap, err := b.References[i].pack()
		if err != nil {
			return fmt.Errorf("reference %d: %w", i, err)
		}
		w.TryWriteBits(uint64(typeAndSize), 32)
		w.TryWriteBits(uint64(b.References[i].SubsegmentDuration), 32)
		w.TryWriteBits(uint64(sap), 32)
	}
	return w.TryError
}

// Unmarshal box from decoder. Exactly reference_count entries are
// read, anything after them inside the box is ignored.
func (b *Sidx) Unmarshal(d *Decoder, h Header) error {
	br := d.payload(h)
	b.FullBox.unmarshalField(br)
	b.ReferenceID = uint32(br.TryReadBits(32))
	b.Timescale = uint32(br.TryReadBits(32))
	b.EarliestPresentationTime = readVersioned(br, b.Version)
	b.FirstOffset = readVersioned(br, b.Version)
	br.TryReadBits(16) // Reserved.
	count := int(br.TryReadBits(16))
	if br.TryError != nil {
		return fieldErr(br.TryError)
	}

	b.References = nil
	for i := 0; i < count; i++ {
		typeAndSize := uint32(br.TryReadBits(32))
		duration := uint32(br.TryReadBits(32))
		sap := uint32(br.TryReadBits(32))
		if br.TryError != nil {
			return fmt.Errorf("reference %d/%d: %w", i, count, fieldErr(br.TryError))
		}

		ref := SidxReference{SubsegmentDuration: duration}
		if err := ref.unpack(typeAndSize, sap); err != nil {
			return err
		}
		b.References = append(b.References, ref)
	}
	return nil
}

func (b *Sidx) String() string {
	return fmt.Sprintf("version=%d reference_id=%d timescale=%d"+
		" earliest_presentation_time=%d first_offset=%d references=%d",
		b.Version, b.ReferenceID, b.Timescale,
		b.EarliestPresentationTime, b.FirstOffset, len(b.References))
}

// Segment is a sidx reference resolved to an absolute byte range.
type Segment struct {
	// Index is true if the range holds another sidx.
	Index         bool   `json:"index"`
	Offset        uint64 `json:"offset"`
	Size          uint64 `json:"size"`
	Start         uint64 `json:"start"` // Presentation time in timescale units.
	Duration      uint64 `json:"duration"`
	StartsWithSAP bool   `json:"startsWithSAP"`
}

// Segments resolves the references. sidxEnd is the
// stream position of the first byte after the sidx box.
func (b *Sidx) Segments(sidxEnd uint64) []Segment {
	segments := make([]Segment, 0, len(b.References))
	offset := sidxEnd + b.FirstOffset
	start := b.EarliestPresentationTime
	for _, ref := range b.References {
		segments = append(segments, Segment{
			Index:         ref.ReferenceType == SidxReferenceIndex,
			Offset:        offset,
			Size:          uint64(ref.ReferencedSize),
			Start:         start,
			Duration:      uint64(ref.SubsegmentDuration),
			StartsWithSAP: ref.StartsWithSAP,
		})
		offset += uint64(ref.ReferencedSize)
		start += uint64(ref.SubsegmentDuration)
	}
	return segments
}

/*************************** trex ****************************/

// Trex is ISOBMFF trex box type.
type Trex struct {
	FullBox
	TrackID                       uint32 `json:"trackID"`
	DefaultSampleDescriptionIndex uint32 `json:"defaultSampleDescriptionIndex"`
	DefaultSampleDuration         uint32 `json:"defaultSampleDuration"`
	DefaultSampleSize             uint32 `json:"defaultSampleSize"`
	DefaultSampleFlags            uint32 `json:"defaultSampleFlags"`
}

// Type returns the BoxType.
func (*Trex) Type() BoxType {
	return TypeTrex
}

// Size returns the marshaled size in bytes.
func (b *Trex) Size() uint64 {
	return 24
}

// Marshal box to writer.
func (b *Trex) Marshal(w *bitio.Writer) error {
	b.FullBox.MarshalField(w)
	w.TryWriteBits(uint64(b.TrackID), 32)
	w.TryWriteBits(uint64(b.DefaultSampleDescriptionIndex), 32)
	w.TryWriteBits(uint64(b.DefaultSampleDuration), 32)
	w.TryWriteBits(uint64(b.DefaultSampleSize), 32)
	w.TryWriteBits(uint64(b.DefaultSampleFlags), 32)
	return w.TryError
}

// Unmarshal box from decoder.
func (b *Trex) Unmarshal(d *Decoder, h Header) error {
	br := d.payload(h)
	b.FullBox.unmarshalField(br)
	b.TrackID = uint32(br.TryReadBits(32))
	b.DefaultSampleDescriptionIndex = uint32(br.TryReadBits(32))
	b.DefaultSampleDuration = uint32(br.TryReadBits(32))
	b.DefaultSampleSize = uint32(br.TryReadBits(32))
	b.DefaultSampleFlags = uint32(br.TryReadBits(32))
	return fieldErr(br.TryError)
}

func (b *Trex) String() string {
	return fmt.Sprintf("track_id=%d default_sample_description_index=%d"+
		" default_sample_duration=%d default_sample_size=%d default_sample_flags=0x%08x",
		b.TrackID, b.DefaultSampleDescriptionIndex,
		b.DefaultSampleDuration, b.DefaultSampleSize, b.DefaultSampleFlags)
}
