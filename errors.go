package cube

import "errors"

// Error taxonomy per spec; these are sentinels, not types, so callers use
// errors.Is against them. Context is attached at the call site with
// errors.Join, the same pattern gsf/errors.go uses for its TileDB wrapping.
var (
	// ErrBadConfig reports a Parameters field out of its documented range.
	// Fatal to grid construction.
	ErrBadConfig = errors.New("cube: parameter out of documented range")

	// ErrOutOfBounds reports a node coordinate, interpolation point, or
	// rectangle outside the grid. The operation is skipped, not fatal.
	ErrOutOfBounds = errors.New("cube: coordinate outside grid bounds")

	// ErrNotFound reports nominate/remove finding no hypothesis within
	// the 0.01 m match tolerance.
	ErrNotFound = errors.New("cube: no hypothesis within match tolerance")

	// ErrAmbiguousMatch reports remove() matching more than one hypothesis
	// within the 0.01 m tolerance; the removal is not performed.
	ErrAmbiguousMatch = errors.New("cube: multiple hypotheses within match tolerance")

	// ErrOutOfMemory reports an allocation failure. Fatal to the current
	// call; grid state remains consistent.
	ErrOutOfMemory = errors.New("cube: allocation failed")

	// ErrSerialization reports a short read, unexpected EOF, or an
	// inconsistent count while reading a persisted grid or node.
	ErrSerialization = errors.New("cube: serialization error")

	// ErrNoCorner reports an interpolation query where a surrounding
	// corner's predicted depth is the in-band invalid marker (NaN).
	ErrNoCorner = errors.New("cube: interpolation corner has no predicted depth")
)

// NoData and NoGuide (spec §7) are not exposed as errors: NoData is
// reported as the no-data sentinel value, and NoGuide is handled
// internally as a fallback to PRIOR disambiguation. Neither is ever
// surfaced to a caller.
