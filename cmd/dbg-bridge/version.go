package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/dbg-bridge/internal/version"
)

func NewVersionCommand() *cobra.Command {
	var check bool

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dbg-bridge version %s\n", version.Version)
			if !check {
				return nil
			}

			info := version.NewChecker().Check(cmd.Context())
			if info.Error != "" {
				return fmt.Errorf("update check failed: %s", info.Error)
			}
			if msg := info.UpdateMessage(); msg != "" {
				fmt.Fprintln(out, msg)
			} else {
				fmt.Fprintln(out, "dbg-bridge is up to date")
			}
			return nil
		},
	}

	versionCmd.Flags().BoolVar(&check, "check", false, "Check GitHub for a newer release")
	return versionCmd
}
