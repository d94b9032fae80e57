package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/djs55/vhddisk/vhd"
)

var writeSectorCmd = &cobra.Command{
	Use:                   "write-sector FILE SECTOR [DATAFILE]",
	Short:                 "Write one 512-byte sector, reading from DATAFILE or stdin",
	Args:                  cobra.RangeArgs(2, 3),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := vhd.Load(args[0])
		if err != nil {
			return fmt.Errorf("load %s: %w", args[0], err)
		}
		defer f.Close()

		var sector uint64
		if _, err := fmt.Sscanf(args[1], "%d", &sector); err != nil {
			return fmt.Errorf("invalid sector %q", args[1])
		}

		in := os.Stdin
		if len(args) == 3 {
			file, err := os.Open(args[2])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[2], err)
			}
			defer file.Close()
			in = file
		}

		buf := make([]byte, vhd.SectorSize)
		if _, err := io.ReadFull(in, buf); err != nil && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("read sector data: %w", err)
		}

		if err := f.WriteSector(sector, buf); err != nil {
			return fmt.Errorf("write sector %d: %w", sector, err)
		}
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush: %w", err)
		}

		fmt.Printf("wrote sector %d of %s\n", sector, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeSectorCmd)
}
