package rope

import "errors"

// ErrLineOutOfBounds and ErrSliceRangeOutOfBounds are wrapped by
// internal/errors into the Mirror's typed MirrorError at the Mirror layer;
// the rope itself stays dependency-free and returns plain sentinel errors.
var (
	ErrLineOutOfBounds       = errors.New("rope: line out of bounds")
	ErrSliceRangeOutOfBounds = errors.New("rope: slice range out of bounds")
)
