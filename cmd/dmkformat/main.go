// Command dmkformat creates a blank DMK image and formats every track with
// a plain, unskewed sector layout.
package main

import (
	"fmt"
	"os"

	"github.com/retrofloppy/dmk/dmk"
	"github.com/spf13/cobra"
)

var (
	cylinders     int
	sectorCount   int
	sectorSize    int
	doubleSided   bool
	doubleDensity bool
	rpm           int
	rateKbps      int
)

var rootCmd = &cobra.Command{
	Use:   "dmkformat OUTFILE",
	Short: "Create and format a blank DMK floppy image",
	Long:  "dmkformat creates a new DMK image file and formats every track with sequentially numbered sectors, in the style of the original qbarnes/dmklib dmkformat tool.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.Flags().IntVar(&cylinders, "cylinders", 77, "number of cylinders")
	rootCmd.Flags().IntVar(&sectorCount, "sectors", 26, "sectors per track")
	rootCmd.Flags().IntVar(&sectorSize, "size", 128, "sector payload size (128, 256, 512, or 1024)")
	rootCmd.Flags().BoolVar(&doubleSided, "ds", false, "double-sided image")
	rootCmd.Flags().BoolVar(&doubleDensity, "dd", false, "double-density (MFM) image")
	rootCmd.Flags().IntVar(&rpm, "rpm", 360, "drive rotation speed")
	rootCmd.Flags().IntVar(&rateKbps, "rate", 250, "data rate in kbps")
}

func run(path string) error {
	sizeCode, err := dmk.SizeCodeFor(sectorSize)
	if err != nil {
		return fmt.Errorf("dmkformat: %w", err)
	}

	mode := dmk.ModeFM
	if doubleDensity {
		mode = dmk.ModeMFM
	}

	h, err := dmk.CreateImage(path, doubleSided, cylinders, doubleDensity, rpm, rateKbps)
	if err != nil {
		return fmt.Errorf("dmkformat: error creating %s: %w", path, err)
	}
	defer h.Close()

	sides := 1
	if doubleSided {
		sides = 2
	}

	for cylinder := 0; cylinder < cylinders; cylinder++ {
		for head := 0; head < sides; head++ {
			if err := h.Seek(cylinder, head); err != nil {
				return fmt.Errorf("dmkformat: error seeking to cylinder %d head %d: %w", cylinder, head, err)
			}

			sectors := make([]dmk.SectorInfo, sectorCount)
			for i := range sectors {
				sectors[i] = dmk.SectorInfo{
					Cylinder:  uint8(cylinder),
					Head:      uint8(head),
					Sector:    uint8(i + 1),
					SizeCode:  sizeCode,
					Mode:      mode,
					WriteData: true,
					DataValue: 0xe5,
				}
			}

			if err := h.FormatTrack(mode, sectors); err != nil {
				return fmt.Errorf("dmkformat: error formatting cylinder %d head %d: %w", cylinder, head, err)
			}
		}
	}

	fmt.Printf("formatted %s: %d cylinders, %d side(s), %d sectors/track, %s\n", path, cylinders, sides, sectorCount, mode)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
