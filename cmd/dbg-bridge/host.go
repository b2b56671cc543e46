package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/hostbridge"
	"github.com/ctagard/dbg-bridge/internal/logging"
	"github.com/ctagard/dbg-bridge/internal/trace"
)

type hostFlagData struct {
	configPath string
	remote     string
	listenPort int
	portFile   string
	traceFile  string
}

func NewHostCommand(log *logging.Logger) *cobra.Command {
	var flags hostFlagData

	hostCmd := &cobra.Command{
		Use:   "host",
		Short: "Runs the host side of the bridge",
		Long: `Connects to the remote debug agent, sends the configured breakpoints and
relays traffic with the engine connected to the listen port.

The command ends when the remote agent disconnects or on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHost(cmd, log, flags)
		},
	}

	fs := hostCmd.Flags()
	fs.StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML or JSON configuration file")
	fs.StringVar(&flags.remote, "remote", "", "Remote agent address as host:port")
	fs.IntVar(&flags.listenPort, "listen-port", -1, "Preferred engine port; a random port is used when it is taken (0 picks one)")
	fs.StringVar(&flags.portFile, "port-file", "", "Write the bound engine port to this file")
	fs.StringVar(&flags.traceFile, "trace", "", "Record the relayed lines to this trace file")
	return hostCmd
}

func runHost(cmd *cobra.Command, log *logging.Logger, flags hostFlagData) error {
	cfg, err := loadConfig(cmd, log, flags.configPath)
	if err != nil {
		return err
	}

	if flags.remote != "" {
		host, port, ok := config.ParseHostPort(flags.remote)
		if !ok {
			return fmt.Errorf("--remote must be host:port, got %q", flags.remote)
		}
		cfg.Remote.Host = host
		cfg.Remote.Port = port
	}
	if flags.listenPort >= 0 {
		cfg.Listener.PreferredPort = flags.listenPort
	}
	if flags.portFile != "" {
		cfg.Listener.PortFile = flags.portFile
	}
	if flags.traceFile != "" {
		cfg.TraceFile = flags.traceFile
	}

	opts := hostbridge.Options{
		Config: cfg,
		OnListening: func(port int) {
			fmt.Fprintf(cmd.OutOrStdout(), "engine port %d\n", port)
		},
	}
	if cfg.TraceFile != "" {
		rec, err := trace.Create(log.Logger, cfg.TraceFile)
		if err != nil {
			return err
		}
		defer rec.Close()
		opts.Recorder = rec
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return hostbridge.New(log.Logger, opts).Run(ctx)
}
