// Command dmkdump prints every sector ID field found on a DMK image,
// cylinder by cylinder, head by head, along with its CRC status. It is
// the Go counterpart of the original qbarnes/dmklib dumpids tool, which
// drove a Linux floppy-controller ioctl directly; this instead walks the
// IDAM table of an already-captured DMK image.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/retrofloppy/dmk/dmk"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dmkdump FILE",
	Short: "Dump sector IDs and CRC status from a DMK image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func run(path string) error {
	h, err := dmk.OpenImage(path, false)
	if err != nil {
		return fmt.Errorf("dmkdump: error opening %s: %w", path, err)
	}
	defer h.Close()

	geometry := h.Geometry()
	sides := 1
	if geometry.DoubleSided {
		sides = 2
	}

	fmt.Printf("%s: %d cylinders, %d side(s), %s density, track length %d\n",
		path, geometry.Cylinders, sides, densityLabel(geometry), geometry.TrackLength)

	for cylinder := 0; cylinder < geometry.Cylinders; cylinder++ {
		for head := 0; head < sides; head++ {
			if err := h.Seek(cylinder, head); err != nil {
				return fmt.Errorf("dmkdump: error seeking to cylinder %d head %d: %w", cylinder, head, err)
			}

			for {
				info, err := h.ReadID()
				if errors.Is(err, dmk.ErrNotFound) {
					break
				}
				idStatus := "ok"
				if errors.Is(err, dmk.ErrBadCRC) {
					idStatus = "BAD CRC"
				}

				dataStatus := "skipped (bad ID)"
				if err == nil {
					if _, _, dataErr := h.ReadSector(int(info.Sector), info.SizeCode); dataErr == nil {
						dataStatus = "ok"
					} else if errors.Is(dataErr, dmk.ErrBadCRC) {
						dataStatus = "BAD CRC"
					} else {
						dataStatus = fmt.Sprintf("error: %v", dataErr)
					}
				}

				fmt.Printf("cyl %02d head %d sector %02d size %4d mode %-4s id %s data %s\n",
					info.Cylinder, info.Head, info.Sector, info.Size(), info.Mode, idStatus, dataStatus)
			}
		}
	}
	return nil
}

func densityLabel(g dmk.Geometry) string {
	if g.DoubleDensity {
		return "double"
	}
	return "single"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
