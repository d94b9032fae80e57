package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/djs55/vhddisk/vhd"
)

var (
	createSize      string
	createBlockSize uint32
	createParent    string
	createFixed     bool
)

var createCmd = &cobra.Command{
	Use:                   "create FILE",
	Short:                 "Create a new dynamic, differencing, or fixed VHD",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		id := uuid.New()
		var rawUUID [16]byte
		copy(rawUUID[:], id[:])

		opts := vhd.CreateOptions{BlockSize: createBlockSize}

		if createParent != "" {
			f, err := vhd.CreateNewDifference(path, createParent, rawUUID, opts)
			if err != nil {
				return fmt.Errorf("create differencing disk: %w", err)
			}
			defer f.Close()
			fmt.Printf("created differencing disk %s (parent %s)\n", path, createParent)
			return nil
		}

		size, err := parseSize(createSize)
		if err != nil {
			return fmt.Errorf("--size: %w", err)
		}

		if createFixed {
			return fmt.Errorf("fixed disk creation is not implemented by this tool; fixed disks are read/write-only via the %q and %q commands", "inspect", "write-sector")
		}

		f, err := vhd.CreateNewDynamic(path, size, rawUUID, opts)
		if err != nil {
			return fmt.Errorf("create dynamic disk: %w", err)
		}
		defer f.Close()
		fmt.Printf("created dynamic disk %s (%d bytes, block size %d)\n", path, f.Footer.CurrentSize, f.Header.BlockSize)
		return nil
	},
}

// parseSize accepts a plain byte count or a K/M/G/T-suffixed size (e.g.
// "64M", "10G").
func parseSize(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("size is required")
	}
	mult := uint64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
	case 'm', 'M':
		mult = 1 << 20
	case 'g', 'G':
		mult = 1 << 30
	case 't', 'T':
		mult = 1 << 40
	}
	numPart := s
	if mult != 1 {
		numPart = s[:len(s)-1]
	}
	var value uint64
	if _, err := fmt.Sscanf(numPart, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return value * mult, nil
}

func init() {
	createCmd.Flags().StringVar(&createSize, "size", "", "disk size, e.g. 64M, 10G (ignored for --parent)")
	createCmd.Flags().Uint32Var(&createBlockSize, "block-size", 0, "block size in bytes (default 2 MiB)")
	createCmd.Flags().StringVar(&createParent, "parent", "", "create a differencing disk against this parent VHD")
	createCmd.Flags().BoolVar(&createFixed, "fixed", false, "create a fixed disk (not yet supported)")
	rootCmd.AddCommand(createCmd)
}
