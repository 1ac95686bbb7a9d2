package dmk

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestImage(t *testing.T, doubleDensity bool) (*Handle, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dmk")
	h, err := CreateImage(path, false, 2, doubleDensity, 300, 250)
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	return h, path
}

func basicSectors(mode Mode, cylinder int, count int) []SectorInfo {
	sectors := make([]SectorInfo, count)
	for i := range sectors {
		sectors[i] = SectorInfo{
			Cylinder:  uint8(cylinder),
			Head:      0,
			Sector:    uint8(i + 1),
			SizeCode:  1, // 256 bytes
			Mode:      mode,
			WriteData: true,
			DataValue: 0xe5,
		}
	}
	return sectors
}

func TestSeekRejectsOutOfRangeCylinder(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(2, 0); err == nil {
		t.Fatalf("Seek(2,0) on a 2-cylinder image should fail")
	}
	if err := h.Seek(1, 0); err != nil {
		t.Fatalf("Seek(1,0): %v", err)
	}
}

func TestSeekIdempotent(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	track := h.curTrack
	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek (idempotent): %v", err)
	}
	if h.curTrack != track {
		t.Fatalf("re-Seek to same coordinates should not rematerialize the track")
	}
}

func TestFormatTrackRejectsMFMOnSingleDensityImage(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeMFM, basicSectors(ModeMFM, 0, 5)); err == nil {
		t.Fatalf("FormatTrack(MFM) on a single-density image should fail")
	}
}

func TestFormatAndReadRoundTripFM(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	sectors := basicSectors(ModeFM, 0, 10)
	if err := h.FormatTrack(ModeFM, sectors); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}
	if h.p != h.geometry.TrackLength {
		t.Fatalf("after FormatTrack, p = %d, want track_length %d", h.p, h.geometry.TrackLength)
	}

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := h.WriteSector(SectorInfo{Sector: 5, SizeCode: 1, Mode: ModeFM}, payload); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	got, info, err := h.ReadSector(5, 1)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if info.Cylinder != 0 || info.Sector != 5 {
		t.Fatalf("ReadSector returned info %+v", info)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %#02x, want %#02x", i, got[i], payload[i])
		}
	}
}

func TestFormatAndReadRoundTripMFM(t *testing.T) {
	h, _ := newTestImage(t, true)
	defer h.Close()

	if err := h.Seek(1, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	sectors := basicSectors(ModeMFM, 1, 9)
	if err := h.FormatTrack(ModeMFM, sectors); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}

	payload := []byte("the quick brown fox jumps over the lazy dog!!!")
	full := make([]byte, 256)
	copy(full, payload)

	if err := h.WriteSector(SectorInfo{Sector: 3, SizeCode: 1, Mode: ModeMFM}, full); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	got, _, err := h.ReadSector(3, 1)
	if err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if string(got[:len(payload)]) != string(payload) {
		t.Fatalf("got %q, want %q", got[:len(payload)], payload)
	}
}

func TestReadSectorNotFound(t *testing.T) {
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeFM, basicSectors(ModeFM, 0, 5)); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}
	if _, _, err := h.ReadSector(99, 1); err == nil {
		t.Fatalf("ReadSector(99) should fail, no such sector")
	}
}

func TestWriteSectorFailsCleanlyWhenSectorMissing(t *testing.T) {
	// Regression guard for the stray-semicolon defect: a failed
	// find_address_mark must prevent write_data_field from running at all.
	h, _ := newTestImage(t, false)
	defer h.Close()

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeFM, basicSectors(ModeFM, 0, 5)); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}

	before := make([]byte, len(h.curTrack.buf))
	copy(before, h.curTrack.buf)

	data := make([]byte, 256)
	if err := h.WriteSector(SectorInfo{Sector: 99, SizeCode: 1, Mode: ModeFM}, data); err == nil {
		t.Fatalf("WriteSector for a missing sector should fail")
	}

	for i := range before {
		if before[i] != h.curTrack.buf[i] {
			t.Fatalf("track buffer mutated despite failed WriteSector, first diff at byte %d", i)
		}
	}
}

func TestCloseAndReopenRoundTrip(t *testing.T) {
	h, path := newTestImage(t, false)

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := h.FormatTrack(ModeFM, basicSectors(ModeFM, 0, 10)); err != nil {
		t.Fatalf("FormatTrack: %v", err)
	}
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(200 + i)
	}
	if err := h.WriteSector(SectorInfo{Sector: 1, SizeCode: 1, Mode: ModeFM}, payload); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h2, err := OpenImage(path, false)
	if err != nil {
		t.Fatalf("OpenImage: %v", err)
	}
	defer h2.Close()

	if h2.Geometry().Cylinders != 2 {
		t.Fatalf("reopened geometry cylinders = %d, want 2", h2.Geometry().Cylinders)
	}
	if err := h2.Seek(0, 0); err != nil {
		t.Fatalf("Seek after reopen: %v", err)
	}
	got, _, err := h2.ReadSector(1, 1)
	if err != nil {
		t.Fatalf("ReadSector after reopen: %v", err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %#02x, want %#02x", i, got[i], payload[i])
		}
	}
}

func TestOpenImageRejectsMissingFile(t *testing.T) {
	if _, err := OpenImage(filepath.Join(os.TempDir(), "does-not-exist.dmk"), false); err == nil {
		t.Fatalf("OpenImage of a missing file should fail")
	}
}
