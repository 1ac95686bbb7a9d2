package dmk

import (
	"errors"
	"testing"
)

func TestReadIDIteratesInPhysicalOrder(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	// Interleaved sector numbers, so physical order differs from numeric order.
	sectors := []SectorInfo{
		{Cylinder: 0, Sector: 1, SizeCode: 1, Mode: ModeFM, WriteData: true},
		{Cylinder: 0, Sector: 3, SizeCode: 1, Mode: ModeFM, WriteData: true},
		{Cylinder: 0, Sector: 2, SizeCode: 1, Mode: ModeFM, WriteData: true},
	}
	if err := h.FormatTrack(ModeFM, sectors); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}

	want := []uint8{1, 3, 2}
	for i, w := range want {
		info, err := h.ReadID()
		if err != nil {
			t.Fatalf("ReadID #%d: %v", i, err)
		}
		if info.Sector != w {
			t.Fatalf("ReadID #%d: sector = %d, want %d", i, info.Sector, w)
		}
	}
	if _, err := h.ReadID(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadID past the last sector: err = %v, want ErrNotFound", err)
	}
}

func TestReadIDResetsOnSeek(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeFM, basicSectors(ModeFM, 0, 3)); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}
	if _, err := h.ReadID(); err != nil {
		t.Fatalf("ReadID: %v", err)
	}

	if err := h.Seek(1, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeFM, basicSectors(ModeFM, 1, 3)); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}

	info, err := h.ReadID()
	if err != nil {
		t.Fatalf("ReadID after reseek: %v", err)
	}
	if info.Sector != 1 {
		t.Fatalf("ReadID after reseek: sector = %d, want 1 (iterator should have reset)", info.Sector)
	}
}

func TestWriteSectorRejectsWrongLength(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeFM, basicSectors(ModeFM, 0, 5)); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}
	if err := h.WriteSector(SectorInfo{Sector: 1, SizeCode: 1, Mode: ModeFM}, make([]byte, 10)); err == nil {
		t.Fatalf("WriteSector with mismatched payload length should fail")
	}
}

func TestReadSectorBadCRCDetected(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeFM, basicSectors(ModeFM, 0, 3)); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}

	info, found := h.findAddressMark(SectorInfo{Sector: 2, SizeCode: 1})
	if !found {
		t.Fatalf("findAddressMark(2) should succeed")
	}
	// Corrupt one payload byte directly in the track buffer, bypassing the
	// CRC-maintaining write path, to simulate on-disk bit rot.
	dataStart := h.p + fmGap2 + fmGap2Zeros + 1
	h.curTrack.buf[dataStart] ^= 0xff

	if _, _, err := h.ReadSector(2, 1); !errors.Is(err, ErrBadCRC) {
		t.Fatalf("ReadSector after corrupting payload: err = %v, want ErrBadCRC", err)
	}
	_ = info
}

func TestFormatTrackRejectsTooManySectors(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeFM, basicSectors(ModeFM, 0, MaxSector+1)); err == nil {
		t.Fatalf("FormatTrack with more than MaxSector entries should fail")
	}
}
