package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/dbg-bridge/internal/trace"
)

func NewTraceCommand() *cobra.Command {
	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "Works with recorded wire traces",
	}

	dumpCmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "Prints a trace file as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := trace.Open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			n, err := trace.Dump(r, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("trace %s: record %d: %w", args[0], n+1, err)
			}
			return nil
		},
	}

	traceCmd.AddCommand(dumpCmd)
	return traceCmd
}
