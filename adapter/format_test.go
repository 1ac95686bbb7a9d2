package adapter

import (
	"path/filepath"
	"testing"

	"github.com/retrofloppy/dmk/config"
	"github.com/retrofloppy/dmk/dmk"
)

func TestFormatBlankDMKProducesReadableImage(t *testing.T) {
	preset := config.Preset{
		Name:            "test-preset",
		Cyls:            2,
		Heads:           1,
		RPM:             300,
		RateKbps:        250,
		DoubleDensity:   true,
		SectorsPerTrack: 9,
	}

	path := filepath.Join(t.TempDir(), "blank.dmk")
	if err := formatBlankDMK(path, preset); err != nil {
		t.Fatalf("formatBlankDMK: %v", err)
	}

	h, err := dmk.OpenImage(path, false)
	if err != nil {
		t.Fatalf("OpenImage: %v", err)
	}
	defer h.Close()

	geom := h.Geometry()
	if geom.Cylinders != preset.Cyls {
		t.Fatalf("Cylinders = %d, want %d", geom.Cylinders, preset.Cyls)
	}
	if geom.DoubleSided {
		t.Fatalf("DoubleSided = true, want false for a 1-head preset")
	}

	if err := h.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	sizeCode, err := dmk.SizeCodeFor(512)
	if err != nil {
		t.Fatalf("SizeCodeFor(512): %v", err)
	}
	data, info, err := h.ReadSector(1, sizeCode)
	if err != nil {
		t.Fatalf("ReadSector(1): %v", err)
	}
	if info.Sector != 1 {
		t.Fatalf("info.Sector = %d, want 1", info.Sector)
	}
	for i, b := range data {
		if b != 0xe5 {
			t.Fatalf("byte %d = %#02x, want 0xe5 fill", i, b)
		}
	}
}

func TestFormatBlankDMKFailsOnMissingParent(t *testing.T) {
	preset := config.Preset{Cyls: 1, Heads: 1, RPM: 300, RateKbps: 250, DoubleDensity: true, SectorsPerTrack: 9}
	if err := formatBlankDMK(filepath.Join(t.TempDir(), "missing-dir", "blank.dmk"), preset); err == nil {
		t.Fatalf("formatBlankDMK into a nonexistent directory should fail")
	}
}
