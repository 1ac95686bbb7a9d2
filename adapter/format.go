package adapter

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/retrofloppy/dmk/config"
	"github.com/retrofloppy/dmk/dmk"
	"github.com/retrofloppy/dmk/hfe"
	"github.com/spf13/cobra"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Format the floppy disk",
	Long:  "Format the floppy disk connected via USB adapter by selecting a geometry preset.",
	Run: func(cmd *cobra.Command, args []string) {
		if floppyAdapter == nil {
			cobra.CheckErr(fmt.Errorf("adapter not available"))
		}

		// Get list of preset names from config
		presetNames := config.Presets
		if len(presetNames) == 0 {
			cobra.CheckErr(fmt.Errorf("no geometry presets available"))
		}

		// Display menu with tags
		fmt.Printf("Available geometry presets:\n")
		for i, name := range presetNames {
			tag := indexToTag(i)
			fmt.Printf("  %s. %s\n", tag, name)
		}
		fmt.Print("\nSelect format (default 1): ")

		// Get user selection
		reader := bufio.NewReader(os.Stdin)
		selection, err := reader.ReadString('\n')
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read selection: %w", err))
		}
		selection = strings.TrimSpace(selection)

		// Default to first option if empty
		selectedIndex := 0
		if selection != "" {
			var err error
			selectedIndex, err = tagToIndex(selection, len(presetNames))
			if err != nil {
				cobra.CheckErr(fmt.Errorf("invalid selection: %w", err))
			}
		}

		if selectedIndex < 0 || selectedIndex >= len(presetNames) {
			cobra.CheckErr(fmt.Errorf("invalid selection index: %d", selectedIndex))
		}

		selectedName := presetNames[selectedIndex]
		fmt.Printf("\nSelected: %s\n", selectedName)

		preset, err := config.GetPreset(selectedName)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to get preset %q: %w", selectedName, err))
		}

		// Build a blank DMK image for this geometry in a temp file, then
		// read it back through the hfe package's DMK bridge so the rest of
		// this command (drive-matching, progress reporting, adapter write)
		// runs the same code path as the "write" command.
		tmpFile, err := os.CreateTemp("", "floppy-format-*.dmk")
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to create temporary file: %w", err))
		}
		tmpFilename := tmpFile.Name()
		tmpFile.Close()
		defer os.Remove(tmpFilename)

		if err := formatBlankDMK(tmpFilename, preset); err != nil {
			cobra.CheckErr(fmt.Errorf("failed to build blank image for preset %q: %w", selectedName, err))
		}

		// Read file using hfe.Read (same as write command)
		disk, err := hfe.Read(tmpFilename)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to read image file: %w", err))
		}

		// Match image versus drive (same as write command)
		if int(disk.Header.BitRate) > config.RateKbps {
			cobra.CheckErr(fmt.Errorf("Image with bit rate %d kbps is incompatible with preset %s",
				disk.Header.BitRate, config.PresetName))
		}
		if int(disk.Header.NumberOfSide) > config.Heads {
			cobra.CheckErr(fmt.Errorf("Image with %d sides is incompatible with preset %s",
				disk.Header.NumberOfSide, config.PresetName))
		}

		// Get number of tracks to write (but no more than extra 2 tracks)
		numCylinders := int(disk.Header.NumberOfTrack)
		if numCylinders > config.Cyls+2 {
			numCylinders = config.Cyls + 2
		}
		fmt.Printf("Writing %d tracks, %d side(s)\n", numCylinders, disk.Header.NumberOfSide)
		fmt.Printf("Bit Rate: %d kbps\n", disk.Header.BitRate)
		fmt.Printf("Rotation Speed: %d RPM\n", disk.Header.FloppyRPM)
		fmt.Printf("\n")

		// Prompt user to insert diskette (same as write command)
		fmt.Print("Insert TARGET diskette in drive\nand press Enter when ready...")
		_, _ = reader.ReadString('\n')
		fmt.Printf("\n")

		// Write floppy disk using adapter interface (same as write command)
		err = floppyAdapter.Write(disk, numCylinders)
		if err != nil {
			cobra.CheckErr(fmt.Errorf("failed to write floppy disk: %w", err))
		}
		fmt.Printf("\n")
		fmt.Printf("Diskette formatted as '%s'.\n", selectedName)
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}

// formatBlankDMK creates a fresh DMK image at path with preset's geometry
// and lays out every track with a contiguous, unused sector set (filled
// with 0xE5, the conventional DMK/CP/M format fill byte).
func formatBlankDMK(path string, preset config.Preset) error {
	h, err := dmk.CreateImage(path, preset.Heads > 1, preset.Cyls, preset.DoubleDensity, preset.RPM, preset.RateKbps)
	if err != nil {
		return fmt.Errorf("failed to create DMK image: %w", err)
	}

	mode := dmk.ModeFM
	if preset.DoubleDensity {
		mode = dmk.ModeMFM
	}
	sizeCode, err := dmk.SizeCodeFor(512)
	if err != nil {
		h.Close()
		return fmt.Errorf("internal error computing sector size code: %w", err)
	}

	for cyl := 0; cyl < preset.Cyls; cyl++ {
		for head := 0; head < preset.Heads; head++ {
			sectors := make([]dmk.SectorInfo, preset.SectorsPerTrack)
			for s := range sectors {
				sectors[s] = dmk.SectorInfo{
					Cylinder:  uint8(cyl),
					Head:      uint8(head),
					Sector:    uint8(s + 1),
					SizeCode:  sizeCode,
					Mode:      mode,
					WriteData: true,
					DataValue: 0xe5,
				}
			}

			if err := h.Seek(cyl, head); err != nil {
				h.Close()
				return fmt.Errorf("failed to seek to track %d.%d: %w", cyl, head, err)
			}
			if err := h.FormatTrack(mode, sectors); err != nil {
				h.Close()
				return fmt.Errorf("failed to format track %d.%d: %w", cyl, head, err)
			}
		}
	}

	return h.Close()
}

// indexToTag converts an index (0-based) to a tag string (1-9, a-z)
func indexToTag(index int) string {
	if index < 9 {
		return fmt.Sprintf("%d", index+1)
	}
	return string(rune('a' + index - 9))
}

// tagToIndex converts a tag string (1-9, a-z) to an index (0-based)
func tagToIndex(tag string, maxIndex int) (int, error) {
	if len(tag) == 0 {
		return 0, nil
	}

	tag = strings.ToLower(tag)
	if len(tag) != 1 {
		return -1, fmt.Errorf("tag must be a single character")
	}

	c := tag[0]
	if c >= '1' && c <= '9' {
		index := int(c - '1')
		if index >= maxIndex {
			return -1, fmt.Errorf("tag %s is out of range", tag)
		}
		return index, nil
	}

	if c >= 'a' && c <= 'z' {
		index := 9 + int(c-'a')
		if index >= maxIndex {
			return -1, fmt.Errorf("tag %s is out of range", tag)
		}
		return index, nil
	}

	return -1, fmt.Errorf("invalid tag: %s (must be 1-9 or a-z)", tag)
}
