package dmk

import "fmt"

// Gap byte-counts, shared between FormatTrack and readDataField/writeDataField
// so the two can never drift apart (spec.md §9: the original library kept
// these as separate literal constants in two places and they came unstuck
// over time).
const (
	fmGap1          = 6  // pre-ID gap
	fmGap2          = 11 // post-ID gap, 0xFF portion
	fmGap2Zeros     = 6  // post-ID gap, 0x00 sync portion
	fmGap3          = 27 // post-data trailer
	fmPreIndexFF    = 40
	fmPreIndexNull  = 6
	fmPreIndexTrail = 26

	mfmGap1          = 12 // pre-ID gap, 0x00 sync portion
	mfmGap2          = 22 // post-ID gap, 0x4E portion
	mfmGap2Zeros     = 12 // post-ID gap, 0x00 sync portion
	mfmGap3          = 54 // post-data trailer
	mfmPreIndexFF    = 80
	mfmPreIndexNull  = 12
	mfmPreIndexTrail = 50
)

const (
	fillByteFM  = 0xff
	fillByteMFM = 0x4e
	syncByteMFM = 0xa1
)

const (
	markIndex  = 0xfc
	markIDAM   = 0xfe
	markDAM    = 0xfb
	markDDAM   = 0xf8
	markIAMMFM = 0xc2
)

// idFieldSpan is the number of logical bytes read by findAddressMark after
// the cursor lands on the marker byte: marker, cylinder, head, sector,
// size code, CRC high, CRC low.
const idFieldSpan = 7

// skipBytes advances the cursor past n logical bytes without validating
// their content or touching the CRC accumulator's eventual reset — the
// bytes are still fed through readBytes so doubling and bounds checks
// apply uniformly, but the result is discarded.
func (h *Handle) skipBytes(n int) {
	h.readBytes(n)
}

// FormatTrack lays out a fresh track at the handle's current position:
// index gap, then one ID field + data field per entry in sectors, in the
// order given. The IDAM pointer table and per-sector MFM flag are rebuilt
// from scratch. mode must be ModeFM or ModeMFM; ModeMFM requires the image
// to be double-density (spec.md §4.2 invariant).
func (h *Handle) FormatTrack(mode Mode, sectors []SectorInfo) error {
	if h.curTrack == nil {
		return ErrNoPosition
	}
	if !h.writable {
		return ErrNotWritable
	}
	if mode == ModeRX02 || mode == ModeM2FM {
		return fmt.Errorf("%w: %s format not supported", ErrGeometry, mode)
	}
	if mode == ModeMFM && !h.geometry.DoubleDensity {
		return fmt.Errorf("%w: MFM format requires a double-density image", ErrGeometry)
	}
	if len(sectors) > MaxSector {
		return fmt.Errorf("%w: %d sectors exceeds maximum of %d", ErrGeometry, len(sectors), MaxSector)
	}

	h.curTrack.idamPointer = [MaxSector]uint16{}
	h.curTrack.mfmSector = [MaxSector]bool{}
	h.p = 0
	h.nextIDSlot = 0
	h.curMode = mode

	if mode == ModeFM {
		h.writeFill(fmPreIndexFF, fillByteFM)
		h.writeFill(fmPreIndexNull, 0x00)
		h.writeFill(1, markIndex)
		h.writeFill(fmPreIndexTrail, fillByteFM)
	} else {
		h.writeFill(mfmPreIndexFF, fillByteMFM)
		h.writeFill(mfmPreIndexNull, 0x00)
		h.writeFill(3, markIAMMFM)
		h.writeFill(1, markIndex)
		h.writeFill(mfmPreIndexTrail, fillByteMFM)
	}

	for i, s := range sectors {
		if mode == ModeFM {
			h.writeFill(fmGap1, 0x00)
		} else {
			h.writeFill(mfmGap1, 0x00)
			h.initCRC()
			h.writeFill(3, syncByteMFM)
		}

		if mode == ModeFM {
			h.curTrack.idamPointer[i] = uint16(h.p)
			h.initCRC()
		} else {
			h.curTrack.idamPointer[i] = uint16(h.p)
		}
		h.curTrack.mfmSector[i] = mode == ModeMFM

		h.writeFill(1, markIDAM)
		h.writeBytes([]byte{s.Cylinder, s.Head, s.Sector, s.SizeCode})
		h.writeCRC()

		if s.WriteData {
			fill := make([]byte, s.Size())
			for j := range fill {
				fill[j] = s.DataValue
			}
			h.writeDataField(SectorInfo{Mode: mode}, markDAM, fill)
		} else {
			// No data field requested: reserve its span with gap filler so
			// the track's total length comes out the same either way.
			if mode == ModeFM {
				h.writeFill(fmGap2, fillByteFM)
				h.writeFill(fmGap2Zeros, 0x00)
				h.writeFill(1+s.Size()+2, fillByteFM)
			} else {
				h.writeFill(mfmGap2, fillByteMFM)
				h.writeFill(mfmGap2Zeros, 0x00)
				h.writeFill(3+1+s.Size()+2, fillByteMFM)
			}
		}

		if mode == ModeFM {
			h.writeFill(fmGap3, fillByteFM)
		} else {
			h.writeFill(mfmGap3, fillByteMFM)
		}
	}

	fill := byte(fillByteFM)
	if mode == ModeMFM {
		fill = fillByteMFM
	}
	for h.p < h.geometry.TrackLength {
		h.writeFill(1, fill)
	}

	h.curTrack.dirty = true
	return nil
}

// findAddressMark scans the current track's IDAM table for an ID field
// whose (C,H,R,N) matches want, validating each candidate's CRC before
// accepting it. On success the cursor is left immediately after the ID
// field's CRC bytes (spec.md §4.3) and the full recovered SectorInfo is
// returned.
//
// The original library compared the marker byte against 0xFB (the data
// address mark) instead of 0xFE (the ID address mark); every candidate
// therefore failed and find_address_mark never matched anything. This
// compares against 0xFE.
//
// want's Cylinder and Head are taken from the handle's current seek
// position rather than whatever the caller supplied: a lookup only ever
// scans the currently-seeked track, so the physical coordinates are
// always known here and don't need to round-trip through the caller.
// Sector and SizeCode come from want as given, and the candidate ID must
// match all four fields (spec.md §4.3, `find_address_mark`'s full (C,H,R,N)
// comparison in `_examples/original_source/libdmk.c`) via SectorInfo.Matches.
func (h *Handle) findAddressMark(want SectorInfo) (SectorInfo, bool) {
	if h.curTrack == nil {
		return SectorInfo{}, false
	}
	want.Cylinder = byte(h.curCyl)
	want.Head = byte(h.curHead)

	for slot := 0; slot < MaxSector; slot++ {
		ptr := h.curTrack.idamPointer[slot]
		if ptr == 0 {
			break
		}

		mfm := h.curTrack.mfmSector[slot]
		span := idFieldSpan
		if !mfm && h.geometry.DoubleDensity {
			span *= 2
		}
		if int(ptr)+span > h.geometry.TrackLength {
			continue
		}

		h.p = int(ptr)
		if mfm {
			h.curMode = ModeMFM
		} else {
			h.curMode = ModeFM
		}

		h.initCRC()
		if mfm {
			h.feedCRC(syncByteMFM)
			h.feedCRC(syncByteMFM)
			h.feedCRC(syncByteMFM)
		}

		marker := h.readByte()
		if marker != markIDAM {
			continue
		}

		cyl := h.readByte()
		head := h.readByte()
		sec := h.readByte()
		sizeCode := h.readByte()
		if !h.checkCRC() {
			continue
		}

		candidate := SectorInfo{Cylinder: cyl, Head: head, Sector: sec, SizeCode: sizeCode}
		if !want.Matches(candidate) {
			continue
		}

		mode := ModeFM
		if mfm {
			mode = ModeMFM
		}
		return SectorInfo{
			Cylinder: cyl,
			Head:     head,
			Sector:   sec,
			SizeCode: sizeCode,
			Mode:     mode,
		}, true
	}

	return SectorInfo{}, false
}

// readNextID advances the per-track ReadID iterator and returns the next
// recorded ID field in physical (interleave) order, without regard to
// sector number. The iterator resets to the first slot on a Seek that
// moves to another track and on FormatTrack. This is the behavior dmk2raw's sector-enumeration loop
// needs and that the original library's dmk_read_id stubbed out entirely
// (it unconditionally returned 0).
//
// An ID whose CRC validates but whose embedded Cylinder/Head don't match
// the handle's current seek position is skipped rather than surfaced: a
// mismatch there means the slot's pointer landed on an ID field left over
// from stale or corrupted table data, not an ID field that actually
// belongs to the track being read (spec.md §4.3's full (C,H,R,N) identity
// check, same reasoning as findAddressMark's).
func (h *Handle) readNextID() (SectorInfo, error) {
	if h.curTrack == nil {
		return SectorInfo{}, ErrNoPosition
	}

	for h.nextIDSlot < MaxSector {
		slot := h.nextIDSlot
		h.nextIDSlot++

		ptr := h.curTrack.idamPointer[slot]
		if ptr == 0 {
			break
		}

		mfm := h.curTrack.mfmSector[slot]
		span := idFieldSpan
		if !mfm && h.geometry.DoubleDensity {
			span *= 2
		}
		if int(ptr)+span > h.geometry.TrackLength {
			continue
		}

		h.p = int(ptr)
		if mfm {
			h.curMode = ModeMFM
		} else {
			h.curMode = ModeFM
		}

		h.initCRC()
		if mfm {
			h.feedCRC(syncByteMFM)
			h.feedCRC(syncByteMFM)
			h.feedCRC(syncByteMFM)
		}

		marker := h.readByte()
		if marker != markIDAM {
			continue
		}

		cyl := h.readByte()
		head := h.readByte()
		sec := h.readByte()
		sizeCode := h.readByte()
		ok := h.checkCRC()

		if ok && (cyl != byte(h.curCyl) || head != byte(h.curHead)) {
			continue
		}

		mode := ModeFM
		if mfm {
			mode = ModeMFM
		}
		info := SectorInfo{
			Cylinder: cyl,
			Head:     head,
			Sector:   sec,
			SizeCode: sizeCode,
			Mode:     mode,
		}
		if !ok {
			return info, ErrBadCRC
		}
		return info, nil
	}

	return SectorInfo{}, ErrNotFound
}

// ReadID returns the next sector header on the current track in physical
// order, along with a reported CRC failure on the header itself (the
// caller can choose to surface or ignore a bad-ID-CRC result; it is
// returned rather than silently skipped since even a damaged header can
// tell a disk-imaging tool where the gap landed).
func (h *Handle) ReadID() (SectorInfo, error) {
	return h.readNextID()
}

// readDataField consumes the data field that immediately follows an ID
// field located by findAddressMark: the post-ID gap, then (for MFM) the
// three 0xA1 sync bytes, then the data address mark, then size bytes of
// payload, then the trailing CRC.
//
// The original library never skipped the post-ID gap at all — its own
// write_sector carried a "$$$ skip ahead a few bytes" comment instead of
// skipping it — which would read gap filler as if it were sector payload.
// This skips exactly the gap bytes format_track wrote.
func (h *Handle) readDataField(info SectorInfo) ([]byte, byte, bool) {
	if info.Mode == ModeMFM {
		h.skipBytes(mfmGap2 + mfmGap2Zeros)
		h.initCRC()
		h.skipBytes(3) // 0xA1 sync, consumed for real: feeds CRC via readBytes
	} else {
		h.skipBytes(fmGap2 + fmGap2Zeros)
		h.initCRC()
	}

	marker := h.readByte()
	data := h.readBytes(info.Size())
	ok := h.checkCRC()
	return data, marker, ok
}

// writeDataField emits the post-ID gap, data address mark, payload, and
// trailing CRC for a sector whose ID field has just been written by
// FormatTrack or located by findAddressMark.
func (h *Handle) writeDataField(info SectorInfo, marker byte, data []byte) {
	if info.Mode == ModeMFM {
		h.writeFill(mfmGap2, fillByteMFM)
		h.writeFill(mfmGap2Zeros, 0x00)
		h.initCRC()
		h.writeFill(3, syncByteMFM)
	} else {
		h.writeFill(fmGap2, fillByteFM)
		h.writeFill(fmGap2Zeros, 0x00)
		h.initCRC()
	}

	h.writeFill(1, marker)
	h.writeBytes(data)
	h.writeCRC()
}

// ReadSector locates sector by number and size code on the current track
// and returns its payload. sizeCode must match the size code recorded in
// the sector's ID field (spec.md §4.3's full (C,H,R,N) identity match,
// with C,H supplied implicitly from the current seek position); callers
// that don't already know it can get it from a prior ReadID. Both the ID
// field and the data field CRCs are verified; a data CRC failure is
// reported as ErrBadCRC rather than returning the corrupt payload silently.
func (h *Handle) ReadSector(sector int, sizeCode uint8) ([]byte, SectorInfo, error) {
	if h.curTrack == nil {
		return nil, SectorInfo{}, ErrNoPosition
	}

	info, found := h.findAddressMark(SectorInfo{Sector: byte(sector), SizeCode: sizeCode})
	if !found {
		return nil, SectorInfo{}, fmt.Errorf("%w: sector %d", ErrNotFound, sector)
	}

	data, _, ok := h.readDataField(info)
	if !ok {
		return nil, info, ErrBadCRC
	}
	return data, info, nil
}

// WriteSector locates sector by number on the current track and
// overwrites its data field in place. The ID field's cylinder/head/size
// code are preserved from what format_track recorded; only the payload
// and its CRC change.
//
// The original library's dmk_write_sector ignored find_address_mark's
// return value (a trailing `;` turned the guarding `if` into an empty
// statement, so the function always fell through to write_data_field even
// after a failed lookup). This returns ErrNotFound instead of writing
// into whatever the cursor happened to be left pointing at.
func (h *Handle) WriteSector(info SectorInfo, data []byte) error {
	if h.curTrack == nil {
		return ErrNoPosition
	}
	if !h.writable {
		return ErrNotWritable
	}
	if len(data) != info.Size() {
		return fmt.Errorf("%w: data length %d does not match size code %d (%d bytes)", ErrGeometry, len(data), info.SizeCode, info.Size())
	}

	found, ok := h.findAddressMark(info)
	if !ok {
		return fmt.Errorf("%w: sector %d", ErrNotFound, info.Sector)
	}

	h.writeDataField(found, markDAM, data)
	return nil
}
