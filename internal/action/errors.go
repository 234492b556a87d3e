package action

import "errors"

var (
	// ErrInvalidObservation indicates an observation failed the boundary check.
	ErrInvalidObservation = errors.New("action: invalid observation")

	// ErrDimensionMismatch indicates a vector whose length disagrees with the layout.
	ErrDimensionMismatch = errors.New("action: dimension mismatch")

	// ErrInvalidChunk indicates an empty chunk or one containing NaN/Inf.
	ErrInvalidChunk = errors.New("action: invalid chunk")

	// ErrUnknownLayout indicates a layout name with no registered definition.
	ErrUnknownLayout = errors.New("action: unknown layout")
)
