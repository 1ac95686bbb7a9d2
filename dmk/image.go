package dmk

import (
	"fmt"
	"os"
)

// header layout constants (spec.md §3, dmk.h).
const (
	headerLength = 16

	flagSSBit   = 4
	flagSDBit   = 6
	flagRX02Bit = 5

	flagSSMask   = 1 << flagSSBit
	flagSDMask   = 1 << flagSDBit
	flagRX02Mask = 1 << flagRX02Bit

	idamPointerMFMBit  = 15
	idamPointerMFMMask = uint16(1) << idamPointerMFMBit
	idamPointerMask    = idamPointerMFMMask - 1
)

// TrackState holds one track's in-memory body and IDAM pointer table.
type TrackState struct {
	resident bool
	dirty    bool

	idamPointer [MaxSector]uint16
	mfmSector   [MaxSector]bool

	buf []byte
}

// Geometry describes the physical layout of a DMK image.
type Geometry struct {
	DoubleSided   bool
	Cylinders     int
	DoubleDensity bool
	RPM           int // 300 or 360
	RateKbps      int // 125, 250, 300, or 500
	TrackLength   int
}

// sides returns 2 for double-sided images, 1 otherwise.
func (g Geometry) sides() int {
	if g.DoubleSided {
		return 2
	}
	return 1
}

// computeTrackLength derives track_length from rate and rpm per spec.md §3
// invariant 4: track_length = (rate_kbps * 7500) / rpm.
func computeTrackLength(rateKbps, rpm int) int {
	return (rateKbps * 7500) / rpm
}

// Handle represents an open DMK image. All mutable state for the image
// lives here; there is no package-level state (spec.md §9 re-architecture
// note on eliminating globals).
type Handle struct {
	f         *os.File
	newImage  bool
	writable  bool
	geometry  Geometry
	track     []TrackState // indexed by sides()*cylinder + head
	curCyl    int
	curHead   int
	curTrack  *TrackState
	curMode   Mode
	crc       uint16
	p         int
	nextIDSlot int // ReadID iteration cursor into curTrack.idamPointer
}

// trackIndex maps (cylinder, head) to the flat track-table index.
func (h *Handle) trackIndex(cylinder, head int) int {
	return h.geometry.sides()*cylinder + head
}

// CreateImage creates a new DMK image for writing. The track length is
// always derived from rpm and rateKbps (spec.md §3 invariant 4); there is
// no parameter for passing a track length in directly.
func CreateImage(path string, doubleSided bool, cylinders int, doubleDensity bool, rpm, rateKbps int) (*Handle, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("dmk: create %s: %w", path, err)
	}

	geometry := Geometry{
		DoubleSided:   doubleSided,
		Cylinders:     cylinders,
		DoubleDensity: doubleDensity,
		RPM:           rpm,
		RateKbps:      rateKbps,
		TrackLength:   computeTrackLength(rateKbps, rpm),
	}

	h := &Handle{
		f:        f,
		newImage: true,
		writable: true,
		geometry: geometry,
		track:    make([]TrackState, cylinders*geometry.sides()),
		curCyl:   -1,
		curHead:  -1,
	}
	return h, nil
}

// OpenImage opens an existing DMK image, reading its 16-byte header to
// recover geometry. If writable is true the file is held open for
// read+write; operations that mutate the image return ErrNotWritable
// otherwise.
func OpenImage(path string, writable bool) (*Handle, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("dmk: open %s: %w", path, err)
	}

	var hdr [headerLength]byte
	if _, err := readFull(f, hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("dmk: read header of %s: %w", path, err)
	}

	trackCount := int(hdr[1])
	trackLength := int(hdr[2]) | int(hdr[3])<<8
	flags := hdr[4]

	geometry := Geometry{
		DoubleSided:   flags&flagSSMask == 0,
		Cylinders:     trackCount,
		DoubleDensity: flags&flagSDMask == 0,
		TrackLength:   trackLength,
	}

	h := &Handle{
		f:        f,
		writable: writable,
		geometry: geometry,
		track:    make([]TrackState, trackCount*geometry.sides()),
		curCyl:   -1,
		curHead:  -1,
	}
	return h, nil
}

// Geometry returns the image's current geometry.
func (h *Handle) Geometry() Geometry {
	return h.geometry
}

// trackFileOffset computes the on-disk byte offset of a track's IDAM
// table + body, per spec.md §3's per-track layout.
func (h *Handle) trackFileOffset(cylinder, head int) int64 {
	slotSize := int64(2*MaxSector) + int64(h.geometry.TrackLength)
	return headerLength + int64(h.trackIndex(cylinder, head))*slotSize
}

// Seek positions the image at (cylinder, head), materializing the
// TrackState on first visit: a virgin image's track is filled with 0xFF
// and an empty IDAM table, an existing image's track is read from disk.
// Calling Seek again with the same coordinates is a no-op (spec.md §8
// seek idempotence).
func (h *Handle) Seek(cylinder, head int) error {
	if cylinder >= h.geometry.Cylinders || cylinder < 0 {
		return fmt.Errorf("%w: cylinder %d out of range [0,%d)", ErrGeometry, cylinder, h.geometry.Cylinders)
	}
	if head != 0 && !h.geometry.DoubleSided {
		return fmt.Errorf("%w: head %d invalid on single-sided image", ErrGeometry, head)
	}

	if cylinder == h.curCyl && head == h.curHead {
		return nil // already there
	}

	idx := h.trackIndex(cylinder, head)
	track := &h.track[idx]

	if !track.resident {
		track.buf = make([]byte, h.geometry.TrackLength)

		if h.newImage {
			for i := range track.buf {
				track.buf[i] = 0xff
			}
		} else {
			if _, err := h.f.Seek(h.trackFileOffset(cylinder, head), 0); err != nil {
				return fmt.Errorf("dmk: seek image file: %w", err)
			}

			var idamRaw [2 * MaxSector]byte
			if _, err := readFull(h.f, idamRaw[:]); err != nil {
				return fmt.Errorf("dmk: read IDAM table: %w", err)
			}
			for i := 0; i < MaxSector; i++ {
				entry := uint16(idamRaw[2*i]) | uint16(idamRaw[2*i+1])<<8
				if entry&idamPointerMFMMask != 0 {
					track.mfmSector[i] = true
					entry &= idamPointerMask
				}
				track.idamPointer[i] = entry
			}

			if _, err := readFull(h.f, track.buf); err != nil {
				return fmt.Errorf("dmk: read track body: %w", err)
			}
		}

		track.resident = true
	}

	h.curCyl = cylinder
	h.curHead = head
	h.curTrack = track
	h.nextIDSlot = 0
	return nil
}

// Close flushes every resident-and-dirty track plus the header (for a
// newly created image) and releases the backing file.
func (h *Handle) Close() error {
	if !h.writable {
		return h.f.Close()
	}

	if h.newImage {
		var hdr [headerLength]byte
		hdr[0] = 0x00 // unprotected
		hdr[1] = byte(h.geometry.Cylinders)
		hdr[2] = byte(h.geometry.TrackLength)
		hdr[3] = byte(h.geometry.TrackLength >> 8)
		if !h.geometry.DoubleSided {
			hdr[4] |= flagSSMask
		}
		if !h.geometry.DoubleDensity {
			hdr[4] |= flagSDMask
		}

		if _, err := h.f.Seek(0, 0); err != nil {
			return fmt.Errorf("dmk: seek to header: %w", err)
		}
		if _, err := h.f.Write(hdr[:]); err != nil {
			return fmt.Errorf("dmk: write header: %w", err)
		}
	}

	for cylinder := 0; cylinder < h.geometry.Cylinders; cylinder++ {
		for head := 0; head < h.geometry.sides(); head++ {
			track := &h.track[h.trackIndex(cylinder, head)]
			if !track.resident || !track.dirty {
				continue
			}

			if _, err := h.f.Seek(h.trackFileOffset(cylinder, head), 0); err != nil {
				return fmt.Errorf("dmk: seek to track %d/%d: %w", cylinder, head, err)
			}

			var idamRaw [2 * MaxSector]byte
			for i := 0; i < MaxSector; i++ {
				entry := track.idamPointer[i]
				if track.mfmSector[i] {
					entry |= idamPointerMFMMask
				}
				idamRaw[2*i] = byte(entry)
				idamRaw[2*i+1] = byte(entry >> 8)
			}
			if _, err := h.f.Write(idamRaw[:]); err != nil {
				return fmt.Errorf("dmk: write IDAM table for track %d/%d: %w", cylinder, head, err)
			}

			if _, err := h.f.Write(track.buf); err != nil {
				return fmt.Errorf("dmk: write track body for track %d/%d: %w", cylinder, head, err)
			}
			track.dirty = false
		}
	}

	return h.f.Close()
}

// readFull reads exactly len(buf) bytes or returns an error, matching the
// original library's single fread-and-bail idiom.
func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total < len(buf) {
		return total, fmt.Errorf("short read: got %d of %d bytes", total, len(buf))
	}
	return total, nil
}
