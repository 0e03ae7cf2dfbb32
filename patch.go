package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/treemana/quickdot/log"
	"github.com/treemana/quickdot/wire"
)

type patchFlags struct {
	decrement uint32
	output    string
	hex       bool
	atomic    bool
}

func newPatchCmd() *cobra.Command {
	f := new(patchFlags)
	cmd := &cobra.Command{
		Use:   "patch [file]",
		Short: "Subtract seconds from every TTL of a raw DNS response.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}

			packet, err := readPacket(cmd.InOrStdin(), path, f.hex)
			if err != nil {
				return err
			}

			if f.atomic {
				err = wire.PatchAllTTLsAtomic(packet, f.decrement)
			} else {
				err = wire.PatchAllTTLs(packet, f.decrement)
			}
			if err != nil {
				return fmt.Errorf("patch ttl: %w", err)
			}

			log.Sugar.Debugf("patched %d bytes, decrement=%d atomic=%t", len(packet), f.decrement, f.atomic)
			return writePacket(cmd.OutOrStdout(), f.output, packet, f.hex)
		},
	}

	fs := cmd.Flags()
	fs.Uint32VarP(&f.decrement, "decrement", "d", 0, "seconds to subtract")
	fs.StringVarP(&f.output, "output", "o", "", "output file, stdout when empty")
	fs.BoolVar(&f.hex, "hex", false, "read and write hex text")
	fs.BoolVar(&f.atomic, "atomic", false, "patch every record or none, OPT records are left alone")
	return cmd
}
