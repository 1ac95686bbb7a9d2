package dmk

import "testing"

func TestSizeCodeForKnownSizes(t *testing.T) {
	cases := []struct {
		size int
		code uint8
	}{
		{128, 0},
		{256, 1},
		{512, 2},
		{1024, 3},
	}
	for _, c := range cases {
		code, err := SizeCodeFor(c.size)
		if err != nil {
			t.Fatalf("SizeCodeFor(%d): %v", c.size, err)
		}
		if code != c.code {
			t.Fatalf("SizeCodeFor(%d) = %d, want %d", c.size, code, c.code)
		}
		if (SectorInfo{SizeCode: code}).Size() != c.size {
			t.Fatalf("SectorInfo{SizeCode: %d}.Size() = %d, want %d", code, SectorInfo{SizeCode: code}.Size(), c.size)
		}
	}
}

func TestSizeCodeForRejectsUnsupportedSize(t *testing.T) {
	if _, err := SizeCodeFor(1337); err == nil {
		t.Fatalf("SizeCodeFor(1337) should fail")
	}
}

func TestModeString(t *testing.T) {
	cases := map[Mode]string{
		ModeFM:   "FM",
		ModeMFM:  "MFM",
		ModeRX02: "RX02",
		ModeM2FM: "M2FM",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Fatalf("Mode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}

func TestSectorInfoMatches(t *testing.T) {
	a := SectorInfo{Cylinder: 3, Head: 1, Sector: 7, SizeCode: 1, Mode: ModeMFM, WriteData: true}
	b := SectorInfo{Cylinder: 3, Head: 1, Sector: 7, SizeCode: 1, Mode: ModeFM, WriteData: false}
	if !a.Matches(b) {
		t.Fatalf("expected Matches to ignore Mode/WriteData/DataValue")
	}
	c := SectorInfo{Cylinder: 3, Head: 1, Sector: 8, SizeCode: 1}
	if a.Matches(c) {
		t.Fatalf("expected Matches to compare Sector")
	}
}
