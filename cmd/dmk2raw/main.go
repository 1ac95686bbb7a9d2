// Command dmk2raw extracts every sector of a DMK image, in ascending
// sector-number order per track, into a flat raw sector dump — the Go
// counterpart of the original qbarnes/dmklib dmk2raw tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/retrofloppy/dmk/dmk"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dmk2raw INFILE OUTFILE",
	Short: "Extract a DMK image's sectors to a flat raw dump",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(args[0], args[1]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func run(inPath, outPath string) error {
	h, err := dmk.OpenImage(inPath, false)
	if err != nil {
		return fmt.Errorf("dmk2raw: error opening input DMK file: %w", err)
	}
	defer h.Close()

	outf, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("dmk2raw: error opening output raw file: %w", err)
	}
	defer outf.Close()

	geometry := h.Geometry()
	sides := 1
	if geometry.DoubleSided {
		sides = 2
	}

	for cylinder := 0; cylinder < geometry.Cylinders; cylinder++ {
		for head := 0; head < sides; head++ {
			if err := h.Seek(cylinder, head); err != nil {
				return fmt.Errorf("dmk2raw: error seeking to cylinder %d head %d: %w", cylinder, head, err)
			}

			infos, err := collectTrackIDs(h)
			if err != nil {
				return fmt.Errorf("dmk2raw: error reading sector IDs on cylinder %d head %d: %w", cylinder, head, err)
			}
			if len(infos) == 0 {
				fmt.Printf("cyl %d head %d: no sectors found\n", cylinder, head)
				continue
			}

			min, max := infos[0].Sector, infos[0].Sector
			bySector := make(map[uint8]dmk.SectorInfo, len(infos))
			for _, info := range infos {
				bySector[info.Sector] = info
				if info.Sector < min {
					min = info.Sector
				}
				if info.Sector > max {
					max = info.Sector
				}
			}
			fmt.Printf("cyl %d head %d: sector count %d, from %d to %d\n", cylinder, head, len(infos), min, max)
			if int(max-min)+1 != len(infos) {
				return fmt.Errorf("dmk2raw: cylinder %d head %d: sectors discontiguous", cylinder, head)
			}

			for sector := min; sector <= max; sector++ {
				info := bySector[sector]
				data, _, err := h.ReadSector(int(info.Sector), info.SizeCode)
				if err != nil {
					fmt.Printf("error reading cyl %d head %d sector %d: %v\n", cylinder, head, sector, err)
					continue
				}
				fmt.Printf("cyl %d head %d sector %d size code %d\n", info.Cylinder, info.Head, info.Sector, info.SizeCode)
				if _, err := outf.Write(data); err != nil {
					return fmt.Errorf("dmk2raw: error writing raw file: %w", err)
				}
			}
		}
	}

	return nil
}

// collectTrackIDs replays the original dmk2raw loop of repeated
// dmk_read_id calls, stopping when the iterator wraps back to the first
// sector seen or runs out of IDAM slots.
//
// The original tool additionally called dmk_format_track unconditionally
// after dumping each track, which would have destructively reformatted
// the very image it was meant to be extracting from read-only — almost
// certainly leftover debug code, not intended destructive behavior for a
// conversion tool. This does not reformat anything.
func collectTrackIDs(h *dmk.Handle) ([]dmk.SectorInfo, error) {
	var infos []dmk.SectorInfo
	for i := 0; i < dmk.MaxSector; i++ {
		info, err := h.ReadID()
		if errors.Is(err, dmk.ErrNotFound) {
			break
		}
		if err != nil && !errors.Is(err, dmk.ErrBadCRC) {
			return nil, err
		}
		if i > 0 && info.Sector == infos[0].Sector {
			break
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
