package mp4

import "errors"

// Decode and encode errors.
var (
	// ErrFraming truncated header, or a size inconsistent with the stream.
	ErrFraming = errors.New("framing error")

	// ErrBudgetExceeded child box claims more bytes than its parent has left.
	ErrBudgetExceeded = errors.New("child box larger than remaining parent size")

	// ErrMissingRequiredChild container is missing a mandatory child.
	ErrMissingRequiredChild = errors.New("missing required child box")

	// ErrUnsupportedVariant no codec is registered for the box type.
	ErrUnsupportedVariant = errors.New("unsupported box")

	// ErrFieldOverflow value does not fit its bit width.
	ErrFieldOverflow = errors.New("field overflow")

	// ErrBitWidths invalid bit-field partition.
	ErrBitWidths = errors.New("invalid bit widths")
)
