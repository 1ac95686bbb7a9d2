package hfe

import (
	"path/filepath"
	"testing"

	"github.com/retrofloppy/dmk/dmk"
)

func buildTestDMK(t *testing.T, cylinders, sectorsPerTrack int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dmk")
	h, err := dmk.CreateImage(path, false, cylinders, true, 300, 250)
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	defer h.Close()

	sizeCode, err := dmk.SizeCodeFor(512)
	if err != nil {
		t.Fatalf("SizeCodeFor: %v", err)
	}

	for cyl := 0; cyl < cylinders; cyl++ {
		sectors := make([]dmk.SectorInfo, sectorsPerTrack)
		for s := range sectors {
			sectors[s] = dmk.SectorInfo{
				Cylinder: uint8(cyl),
				Head:     0,
				Sector:   uint8(s + 1),
				SizeCode: sizeCode,
				Mode:     dmk.ModeMFM,
			}
		}
		if err := h.Seek(cyl, 0); err != nil {
			t.Fatalf("Seek(%d,0): %v", cyl, err)
		}
		if err := h.FormatTrack(dmk.ModeMFM, sectors); err != nil {
			t.Fatalf("FormatTrack(%d): %v", cyl, err)
		}
		for s := 0; s < sectorsPerTrack; s++ {
			payload := make([]byte, 512)
			for i := range payload {
				payload[i] = byte(cyl + s + i)
			}
			info := dmk.SectorInfo{Sector: uint8(s + 1), SizeCode: sizeCode}
			if err := h.WriteSector(info, payload); err != nil {
				t.Fatalf("WriteSector(cyl=%d,sector=%d): %v", cyl, s+1, err)
			}
		}
	}
	return path
}

func TestReadDMKRecoversSectorData(t *testing.T) {
	path := buildTestDMK(t, 3, 9)

	disk, err := readDMK(path)
	if err != nil {
		t.Fatalf("readDMK: %v", err)
	}
	if int(disk.Header.NumberOfTrack) != 3 {
		t.Fatalf("NumberOfTrack = %d, want 3", disk.Header.NumberOfTrack)
	}
	if disk.Header.NumberOfSide != 1 {
		t.Fatalf("NumberOfSide = %d, want 1", disk.Header.NumberOfSide)
	}
	if disk.Header.TrackEncoding != ENC_ISOIBM_MFM {
		t.Fatalf("TrackEncoding = %d, want ENC_ISOIBM_MFM", disk.Header.TrackEncoding)
	}
	if len(disk.Tracks) != 3 {
		t.Fatalf("len(Tracks) = %d, want 3", len(disk.Tracks))
	}
	for cyl := range disk.Tracks {
		if len(disk.Tracks[cyl].Side0) == 0 {
			t.Fatalf("track %d has empty Side0 bitstream", cyl)
		}
	}
}

func TestReadDMKRejectsSingleDensity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fm.dmk")
	h, err := dmk.CreateImage(path, false, 1, false, 300, 250)
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	sectors := make([]dmk.SectorInfo, 5)
	for s := range sectors {
		sectors[s] = dmk.SectorInfo{Cylinder: 0, Head: 0, Sector: uint8(s + 1), SizeCode: 1, Mode: dmk.ModeFM}
	}
	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(dmk.ModeFM, sectors); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := readDMK(path); err == nil {
		t.Fatalf("readDMK on a single-density image should fail")
	}
}

func TestWriteDMKRoundTripsSectorData(t *testing.T) {
	srcPath := buildTestDMK(t, 2, 9)

	disk, err := readDMK(srcPath)
	if err != nil {
		t.Fatalf("readDMK: %v", err)
	}

	dstPath := filepath.Join(t.TempDir(), "roundtrip.dmk")
	if err := writeDMK(dstPath, disk); err != nil {
		t.Fatalf("writeDMK: %v", err)
	}

	reopened, err := dmk.OpenImage(dstPath, false)
	if err != nil {
		t.Fatalf("OpenImage: %v", err)
	}
	defer reopened.Close()

	geom := reopened.Geometry()
	if geom.Cylinders != 2 {
		t.Fatalf("reopened Cylinders = %d, want 2", geom.Cylinders)
	}
	if err := reopened.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	sizeCode, err := dmk.SizeCodeFor(512)
	if err != nil {
		t.Fatalf("SizeCodeFor(512): %v", err)
	}
	data, info, err := reopened.ReadSector(1, sizeCode)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if info.Sector != 1 {
		t.Fatalf("ReadSector info.Sector = %d, want 1", info.Sector)
	}
	for i := range data {
		if data[i] != byte(0+0+i) {
			t.Fatalf("byte %d = %#02x, want %#02x", i, data[i], byte(i))
		}
	}
}

func TestWriteDMKRejectsNonMFMEncoding(t *testing.T) {
	disk := &Disk{
		Header: Header{
			NumberOfTrack: 1,
			NumberOfSide:  1,
			TrackEncoding: ENC_ISOIBM_FM,
		},
		Tracks: make([]TrackData, 1),
	}
	path := filepath.Join(t.TempDir(), "bad.dmk")
	if err := writeDMK(path, disk); err == nil {
		t.Fatalf("writeDMK with non-MFM TrackEncoding should fail")
	}
}
