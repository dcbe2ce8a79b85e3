package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"wisp/internal/config"
	"wisp/internal/version"
)

var workspaceFlag string

var rootCmd = &cobra.Command{
	Use:   "wisp",
	Short: "Wisp - Workspace Intelligence Service",
	Long: `Wisp is a long-running daemon that keeps an in-memory model of a code
workspace and answers editor queries (completion, rename, call hierarchy,
symbol search) over a framed JSON-RPC stream.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("wisp version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "",
		"Workspace root (default: current directory)")
}

// resolveWorkspace picks the workspace root from the flag or the working
// directory, normalized to an absolute path.
func resolveWorkspace() (string, error) {
	root := workspaceFlag
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	return filepath.Abs(root)
}

// loadConfig resolves the workspace and loads its configuration.
func loadConfig() (*config.Config, error) {
	root, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}
	return config.Load(root)
}
