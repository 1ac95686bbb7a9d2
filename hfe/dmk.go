package hfe

import (
	"fmt"
	"sort"

	"github.com/retrofloppy/dmk/dmk"
	"github.com/retrofloppy/dmk/mfm"
)

// dmkBitRateFallback is used when a DMK image doesn't carry an explicit bit
// rate (OpenImage only recovers cylinder count, track length and the
// single/double density flags from the 16-byte header, per spec.md §3 - RPM
// and rate are write-time-only fields). 300 RPM is assumed, matching the
// vast majority of 5.25" and 3.5" DD/HD images in the wild, and the bit rate
// is then recovered from track_length via the same relation CreateImage uses
// to go the other way (track_length = rate_kbps * 7500 / rpm).
const dmkBitRateFallback = 300

// readDMK reads a DMK image and returns it as an in-memory bitstream-level
// Disk. Each track's sectors are recovered through the DMK sector-level API
// (ReadID/ReadSector) and re-encoded as an IBM PC format MFM bitstream via
// the mfm package, the same primitive hfe/verify.go uses to check a write.
//
// Only 512-byte, contiguously-numbered (1..N) MFM sectors are supported:
// that is what mfm.Writer.EncodeTrackIBMPC can produce and what
// mfm.Reader.ReadSectorIBMPC expects to find.
func readDMK(filename string) (*Disk, error) {
	h, err := dmk.OpenImage(filename, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open DMK image: %w", err)
	}
	defer h.Close()

	geom := h.Geometry()
	if !geom.DoubleDensity {
		return nil, fmt.Errorf("DMK image is single density: only double-density (MFM) images convert to HFE")
	}

	sides := 1
	if geom.DoubleSided {
		sides = 2
	}

	rateKbps := geom.TrackLength * dmkBitRateFallback / 7500
	if rateKbps == 0 {
		rateKbps = 250
	}

	disk := &Disk{
		Header: Header{
			NumberOfTrack:       uint8(geom.Cylinders),
			NumberOfSide:        uint8(sides),
			TrackEncoding:       ENC_ISOIBM_MFM,
			BitRate:             uint16(rateKbps),
			FloppyRPM:           dmkBitRateFallback,
			FloppyInterfaceMode: IFM_IBMPC_DD,
			WriteProtected:      0xFF,
			WriteAllowed:        0xFF,
			SingleStep:          0xFF,
			Track0S0AltEncoding: 0xFF,
			Track0S0Encoding:    ENC_ISOIBM_MFM,
			Track0S1AltEncoding: 0xFF,
			Track0S1Encoding:    ENC_ISOIBM_MFM,
		},
		Tracks: make([]TrackData, geom.Cylinders),
	}

	maxHalfBits := rateKbps * 1000 * 60 / dmkBitRateFallback * 2

	for cyl := 0; cyl < geom.Cylinders; cyl++ {
		for head := 0; head < sides; head++ {
			if err := h.Seek(cyl, head); err != nil {
				return nil, fmt.Errorf("failed to seek to track %d.%d: %w", cyl, head, err)
			}

			sectorNums := make([]int, 0, dmk.MaxSector)
			sizeCodes := make(map[int]uint8, dmk.MaxSector)
			seen := make(map[int]bool)
			for {
				info, err := h.ReadID()
				if err != nil {
					break
				}
				if !seen[int(info.Sector)] {
					seen[int(info.Sector)] = true
					sectorNums = append(sectorNums, int(info.Sector))
					sizeCodes[int(info.Sector)] = info.SizeCode
				}
			}
			sort.Ints(sectorNums)

			sectorData := make([][]byte, len(sectorNums))
			for i, num := range sectorNums {
				data, _, err := h.ReadSector(num, sizeCodes[num])
				if err != nil {
					return nil, fmt.Errorf("failed to read sector %d of track %d.%d: %w", num, cyl, head, err)
				}
				sectorData[i] = data
			}

			writer := mfm.NewWriter(maxHalfBits)
			bits := writer.EncodeTrackIBMPC(sectorData, cyl, head, len(sectorNums))

			if head == 0 {
				disk.Tracks[cyl].Side0 = bits
			} else {
				disk.Tracks[cyl].Side1 = bits
			}
		}
	}

	return disk, nil
}

// writeDMK writes an in-memory bitstream-level Disk to a DMK image, the
// inverse of readDMK: each track's IBM PC format MFM bitstream is decoded
// sector-by-sector via the mfm package and replayed through FormatTrack and
// WriteSector to build a fresh DMK track.
func writeDMK(filename string, disk *Disk) error {
	if disk.Header.TrackEncoding != ENC_ISOIBM_MFM {
		return fmt.Errorf("unsupported track encoding: %d (only ISOIBM_MFM converts to DMK)", disk.Header.TrackEncoding)
	}

	numCyl := int(disk.Header.NumberOfTrack)
	doubleSided := disk.Header.NumberOfSide > 1

	rpm := int(disk.Header.FloppyRPM)
	if rpm == 0 {
		rpm = dmkBitRateFallback
	}
	rateKbps := int(disk.Header.BitRate)

	h, err := dmk.CreateImage(filename, doubleSided, numCyl, true, rpm, rateKbps)
	if err != nil {
		return fmt.Errorf("failed to create DMK image: %w", err)
	}

	sides := 1
	if doubleSided {
		sides = 2
	}

	sizeCode, err := dmk.SizeCodeFor(512)
	if err != nil {
		return fmt.Errorf("internal error computing sector size code: %w", err)
	}

	for cyl := 0; cyl < numCyl; cyl++ {
		for head := 0; head < sides; head++ {
			var sideData []byte
			if head == 0 {
				sideData = disk.Tracks[cyl].Side0
			} else {
				sideData = disk.Tracks[cyl].Side1
			}
			if len(sideData) == 0 {
				h.Close()
				return fmt.Errorf("empty track %d.%d", cyl, head)
			}

			count := mfm.NewReader(sideData).CountSectorsIBMPC()
			if count == 0 {
				h.Close()
				return fmt.Errorf("no sectors found on track %d.%d", cyl, head)
			}

			reader := mfm.NewReader(sideData)
			sectors := make(map[int][]byte, count)
			for len(sectors) < count {
				num, data, err := reader.ReadSectorIBMPC(cyl, head)
				if err != nil {
					break
				}
				sectors[num] = data
			}

			infos := make([]dmk.SectorInfo, count)
			for s := 0; s < count; s++ {
				infos[s] = dmk.SectorInfo{
					Cylinder: uint8(cyl),
					Head:     uint8(head),
					Sector:   uint8(s + 1),
					SizeCode: sizeCode,
					Mode:     dmk.ModeMFM,
				}
			}

			if err := h.Seek(cyl, head); err != nil {
				h.Close()
				return fmt.Errorf("failed to seek to track %d.%d: %w", cyl, head, err)
			}
			if err := h.FormatTrack(dmk.ModeMFM, infos); err != nil {
				h.Close()
				return fmt.Errorf("failed to format track %d.%d: %w", cyl, head, err)
			}

			for s := 0; s < count; s++ {
				data, found := sectors[s]
				if !found {
					h.Close()
					return fmt.Errorf("missing sector %d of track %d.%d", s, cyl, head)
				}
				info := dmk.SectorInfo{Sector: uint8(s + 1), SizeCode: sizeCode}
				if err := h.WriteSector(info, data); err != nil {
					h.Close()
					return fmt.Errorf("failed to write sector %d of track %d.%d: %w", s, cyl, head, err)
				}
			}
		}
	}

	return h.Close()
}
