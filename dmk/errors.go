package dmk

import "errors"

// Error kinds surfaced at the package boundary (spec.md §7).
var (
	// ErrGeometry marks an out-of-range cylinder/head/mode/size combination,
	// such as formatting an MFM track on a single-density image.
	ErrGeometry = errors.New("dmk: geometry error")

	// ErrNotFound marks a sector lookup that exhausted every IDAM slot on
	// the current track without a CRC-valid match.
	ErrNotFound = errors.New("dmk: sector not found")

	// ErrBadCRC marks a CRC mismatch reading a data field whose ID field
	// was otherwise located successfully.
	ErrBadCRC = errors.New("dmk: CRC mismatch")

	// ErrNoPosition marks an operation that requires a current track but
	// was attempted before any successful Seek.
	ErrNoPosition = errors.New("dmk: no current track (seek required)")

	// ErrNotWritable marks a write attempted against a handle opened
	// read-only.
	ErrNotWritable = errors.New("dmk: image not writable")
)

// internalError panics with a message identifying a violated invariant —
// cursor overflow past track_length, or similar conditions the format
// explicitly disallows for well-formed track layouts. Callers must never
// recover from this; it indicates a bug in the caller or a corrupt track
// buffer, not a reportable I/O failure.
func internalError(msg string) {
	panic("dmk: internal error: " + msg)
}
