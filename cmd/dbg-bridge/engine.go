package main

import (
	"fmt"

	"github.com/google/go-dap"
	"github.com/spf13/cobra"

	"github.com/ctagard/dbg-bridge/internal/config"
	"github.com/ctagard/dbg-bridge/internal/engine"
	"github.com/ctagard/dbg-bridge/internal/logging"
	"github.com/ctagard/dbg-bridge/internal/mcp"
	"github.com/ctagard/dbg-bridge/internal/trace"
	"github.com/ctagard/dbg-bridge/internal/transport"
)

const (
	engineEventHistory = 256
	engineConnectTries = 10
)

type engineFlagData struct {
	configPath string
	connect    string
	mode       string
	sourceRoot string
	traceFile  string
}

func NewEngineCommand(log *logging.Logger) *cobra.Command {
	var flags engineFlagData

	engineCmd := &cobra.Command{
		Use:   "engine",
		Short: "Runs the engine side of the bridge and serves MCP tools on stdio",
		Long: `Connects to the host bridge and serves the debugging state through MCP
tools on stdin/stdout. Logs go to stderr.

In readonly mode only the inspection tools are registered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEngine(cmd, log, flags)
		},
	}

	fs := engineCmd.Flags()
	fs.StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML or JSON configuration file")
	fs.StringVar(&flags.connect, "connect", "", "Host bridge engine port as host:port")
	fs.StringVar(&flags.mode, "mode", "", "Capability mode: 'readonly' or 'full'")
	fs.StringVar(&flags.sourceRoot, "source-root", "", "Directory relative source paths are resolved against (default: working directory)")
	fs.StringVar(&flags.traceFile, "trace", "", "Record the lines exchanged with the host bridge to this trace file")
	return engineCmd
}

func runEngine(cmd *cobra.Command, log *logging.Logger, flags engineFlagData) error {
	cfg, err := loadConfig(cmd, log, flags.configPath)
	if err != nil {
		return err
	}

	if flags.connect != "" {
		if _, _, ok := config.ParseHostPort(flags.connect); !ok {
			return fmt.Errorf("--connect must be host:port, got %q", flags.connect)
		}
		cfg.Engine.Connect = flags.connect
	}
	switch config.CapabilityMode(flags.mode) {
	case "":
	case config.ModeReadOnly, config.ModeFull:
		cfg.Mode = config.CapabilityMode(flags.mode)
	default:
		return fmt.Errorf("--mode must be 'readonly' or 'full', got %q", flags.mode)
	}
	if flags.traceFile != "" {
		cfg.TraceFile = flags.traceFile
	}

	timeout := cfg.Engine.ConnectTimeout.Std()
	channelOpts := []transport.Option{
		transport.WithRetry(transport.ConnectBackOff(engineConnectTries, timeout)),
	}
	if cfg.TraceFile != "" {
		rec, err := trace.Create(log.Logger, cfg.TraceFile)
		if err != nil {
			return err
		}
		defer rec.Close()
		channelOpts = append(channelOpts, transport.WithRecorder(rec.For(trace.SourceHost)))
	}

	events := engine.NewEventLog(engineEventHistory)
	logEvent := engine.FrontendFunc(func(event dap.Message) {
		if e, ok := event.(dap.EventMessage); ok {
			log.V(1).Info("Frontend notification", "event", e.GetEvent().Event)
		}
	})
	eng := engine.New(log.Logger, engine.Options{
		Address:        cfg.Engine.Connect,
		ConnectTimeout: timeout,
		SourceRoot:     flags.sourceRoot,
		Frontend:       engine.MultiFrontend{events, logEvent},
		ChannelOptions: channelOpts,
	})
	defer eng.Close()

	if err := eng.Start(cmd.Context()); err != nil {
		log.Error(err, "Host bridge unavailable; tools report NOT_CONNECTED", "address", cfg.Engine.Connect)
	}

	server := mcp.NewServer(log.Logger, cfg, eng, events)
	log.Info("Serving MCP tools on stdio", "mode", string(cfg.Mode), "tools", len(server.ToolNames()))
	return server.ServeStdio()
}
