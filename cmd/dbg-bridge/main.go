package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/logging"
)

func main() {
	log := logging.New("dbg-bridge")

	rootCmd, err := NewRootCmd(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = rootCmd.Execute()
	log.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func NewRootCmd(log *logging.Logger) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "dbg-bridge",
		Short: "Bridges a debugger frontend and a remote debug agent",
		Long: `dbg-bridge relays a line-delimited JSON debug protocol between a remote
debug agent and a local debug engine.

The host side connects to the remote agent and listens for the engine. The
engine side connects to the host, keeps the thread, frame and variable
state, and serves it to MCP clients on stdio.`,
		SilenceUsage: true,
	}
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	log.AddLevelFlag(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		NewHostCommand(log),
		NewEngineCommand(log),
		NewTraceCommand(),
		NewVersionCommand(),
	)
	return rootCmd, nil
}

// loadConfig reads the configuration file. The file's verbosity applies
// unless -v was given on the command line.
func loadConfig(cmd *cobra.Command, log *logging.Logger, path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("verbosity"); f != nil && !f.Changed && cfg.Verbosity != 0 {
		log.SetVerbosity(cfg.Verbosity)
	}
	return cfg, nil
}
