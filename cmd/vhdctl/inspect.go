package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/djs55/vhddisk/vhd"
)

var inspectCmd = &cobra.Command{
	Use:                   "inspect FILE",
	Short:                 "Print a VHD file's footer/header summary",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := vhd.Load(args[0])
		if err != nil {
			return fmt.Errorf("load %s: %w", args[0], err)
		}
		defer f.Close()

		s := f.Inspect()
		want := vhd.ComputeCHS(s.CurrentSize / vhd.SectorSize)
		geometryNote := ""
		if want != s.Geometry {
			geometryNote = fmt.Sprintf(" (expected %d/%d/%d)", want.Cylinders, want.Heads, want.SectorsPerTrack)
		}

		if isatty.IsTerminal(os.Stdout.Fd()) {
			fmt.Printf("%-18s %s\n", "path", s.Path)
			fmt.Printf("%-18s %s\n", "type", s.DiskType)
			fmt.Printf("%-18s %d\n", "original size", s.OriginalSize)
			fmt.Printf("%-18s %d\n", "current size", s.CurrentSize)
			fmt.Printf("%-18s %d/%d/%d%s\n", "geometry (c/h/s)", s.Geometry.Cylinders, s.Geometry.Heads, s.Geometry.SectorsPerTrack, geometryNote)
			if s.BlockSize != 0 {
				fmt.Printf("%-18s %d\n", "block size", s.BlockSize)
				fmt.Printf("%-18s %d\n", "allocated blocks", s.AllocatedBlocks)
			}
			if s.ParentPath != "" {
				fmt.Printf("%-18s %s\n", "parent", s.ParentPath)
			}
			return nil
		}

		fmt.Printf("path=%s type=%s original_size=%d current_size=%d geometry=%d/%d/%d%s block_size=%d allocated_blocks=%d parent=%q\n",
			s.Path, s.DiskType, s.OriginalSize, s.CurrentSize, s.Geometry.Cylinders, s.Geometry.Heads, s.Geometry.SectorsPerTrack, geometryNote, s.BlockSize, s.AllocatedBlocks, s.ParentPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
