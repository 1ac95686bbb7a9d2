package config

import (
	"os"
	"path/filepath"
	"testing"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestInitializeCreatesConfigFromEmbeddedDefault(t *testing.T) {
	home := withTempHome(t)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := os.Stat(filepath.Join(home, ".floppy")); err != nil {
		t.Fatalf(".floppy config file was not created: %v", err)
	}
	if PresetName == "" {
		t.Fatalf("PresetName not populated after Initialize")
	}
	if Cyls <= 0 || Heads <= 0 || RPM <= 0 || RateKbps <= 0 || SectorsPerTrack <= 0 {
		t.Fatalf("Initialize left a non-positive geometry field: %+v", PresetMap[PresetName])
	}
	if len(Presets) == 0 {
		t.Fatalf("Presets list is empty")
	}
}

func TestGetPresetReturnsKnownPreset(t *testing.T) {
	withTempHome(t)
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	name := Presets[0]
	preset, err := GetPreset(name)
	if err != nil {
		t.Fatalf("GetPreset(%q): %v", name, err)
	}
	if preset.Name != name {
		t.Fatalf("GetPreset(%q).Name = %q", name, preset.Name)
	}
}

func TestGetPresetRejectsUnknownName(t *testing.T) {
	withTempHome(t)
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := GetPreset("does-not-exist"); err == nil {
		t.Fatalf("GetPreset of an unknown preset should fail")
	}
}

func TestInitializeRejectsInvalidPreset(t *testing.T) {
	home := withTempHome(t)
	configFile := filepath.Join(home, ".floppy")
	contents := []byte(`default = "bogus"

[[preset]]
name = "bogus"
cyls = 0
heads = 2
rpm = 300
ratekbps = 250
doubledensity = true
sectorspertrack = 9
`)
	if err := os.WriteFile(configFile, contents, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Initialize(); err == nil {
		t.Fatalf("Initialize should reject a preset with cyls = 0")
	}
}

func TestInitializeRejectsMissingDefault(t *testing.T) {
	home := withTempHome(t)
	configFile := filepath.Join(home, ".floppy")
	contents := []byte(`default = "nope"

[[preset]]
name = "pc-360k"
cyls = 40
heads = 2
rpm = 300
ratekbps = 250
doubledensity = true
sectorspertrack = 9
`)
	if err := os.WriteFile(configFile, contents, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Initialize(); err == nil {
		t.Fatalf("Initialize should reject a default name absent from the preset array")
	}
}
