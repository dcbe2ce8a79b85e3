package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statusOutput string
	statusToken  string
	statusAddr   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's status",
	Long: `Query a running daemon over its tcp endpoint and print its lifecycle
state, workspace model counters, pool occupancy, and request metrics.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format (text, json, yaml)")
	statusCmd.Flags().StringVar(&statusToken, "token", "", "Auth token for daemons with auth enabled")
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Daemon address (default: from config)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	addr := statusAddr
	if addr == "" {
		addr = cfg.Transport.Addr
	}

	c, err := dialDaemon(addr, statusToken)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.call("daemon/status", nil)
	if err != nil {
		return err
	}

	out, err := renderOutput(result, statusOutput)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
