package main

import (
	"github.com/spf13/cobra"

	"wisp/internal/config"
	"wisp/internal/daemon"
	"wisp/internal/logging"
)

var (
	daemonTransport string
	daemonAddr      string
	daemonScipIndex string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the wisp daemon",
	Long: `Start the daemon for the workspace. In stdio mode it serves the process
stdin/stdout; in tcp mode it listens for editor connections. The daemon
runs until it receives SIGINT or SIGTERM, then drains in-flight work.`,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&daemonTransport, "transport", "", "Transport mode: stdio or tcp (default: from config)")
	daemonCmd.Flags().StringVar(&daemonAddr, "addr", "", "Listen address for tcp mode (default: from config)")
	daemonCmd.Flags().StringVar(&daemonScipIndex, "scip-index", "", "SCIP index to seed the workspace from")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manifest, err := config.LoadManifest(cfg.WorkspaceRoot)
	if err != nil {
		return err
	}
	cfg.ApplyManifest(manifest)

	if daemonTransport != "" {
		cfg.Transport.Mode = daemonTransport
	}
	if daemonAddr != "" {
		cfg.Transport.Addr = daemonAddr
	}
	if daemonScipIndex != "" {
		cfg.Scip.IndexPath = daemonScipIndex
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// In stdio mode stdout carries frames, so logs must stay on stderr and
	// machine-readable.
	logFormat := logging.Format(cfg.Logging.Format)
	if cfg.Transport.Mode == "stdio" {
		logFormat = logging.JSONFormat
	}
	log := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: logFormat,
	})

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	return d.Run()
}
