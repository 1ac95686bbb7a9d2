package dmk

import "fmt"

// Mode identifies the on-track encoding of a sector.
type Mode int

const (
	// ModeFM is the IBM 3740 single-density encoding.
	ModeFM Mode = iota
	// ModeMFM is the IBM System/34 double-density encoding.
	ModeMFM
	// ModeRX02 is DEC's double-density hybrid (single-density IDs,
	// double-density data fields).
	ModeRX02
	// ModeM2FM is the Intel double-density encoding.
	ModeM2FM
)

// String returns the canonical short name of the encoding mode.
func (m Mode) String() string {
	switch m {
	case ModeFM:
		return "FM"
	case ModeMFM:
		return "MFM"
	case ModeRX02:
		return "RX02"
	case ModeM2FM:
		return "M2FM"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MaxSector is the number of IDAM pointer slots tracked per track.
const MaxSector = 64

// SectorInfo is the logical identity and encoding descriptor of one sector.
type SectorInfo struct {
	Cylinder  uint8
	Head      uint8
	Sector    uint8
	SizeCode  uint8 // payload length is 128 << SizeCode
	Mode      Mode
	WriteData bool  // if false, format_track writes only the ID field
	DataValue uint8 // fill byte used when formatting, conventionally 0xE5
}

// Size returns the sector payload length in bytes for this SizeCode.
func (s SectorInfo) Size() int {
	return 128 << s.SizeCode
}

// SizeCodeFor returns the DMK size code for a given payload length, or an
// error if the length isn't one of the four supported sizes.
func SizeCodeFor(size int) (uint8, error) {
	switch size {
	case 128:
		return 0, nil
	case 256:
		return 1, nil
	case 512:
		return 2, nil
	case 1024:
		return 3, nil
	default:
		return 0, fmt.Errorf("dmk: unsupported sector size %d", size)
	}
}

// Matches reports whether the sector identity fields (C,H,R,N) of s equal
// those of other, ignoring Mode/WriteData/DataValue.
func (s SectorInfo) Matches(other SectorInfo) bool {
	return s.Cylinder == other.Cylinder &&
		s.Head == other.Head &&
		s.Sector == other.Sector &&
		s.SizeCode == other.SizeCode
}
