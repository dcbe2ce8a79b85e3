package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"wisp/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage workspace configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Write the default config and a starter manifest",
	Long: `Create .wisp/config.json with the default daemon settings and a starter
wisp.toml manifest at the workspace root. Existing manifests are left alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configShowOutput string

func init() {
	configShowCmd.Flags().StringVarP(&configShowOutput, "output", "o", "json", "Output format (text, json, yaml)")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := resolveWorkspace()
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig(root)
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", filepath.Join(root, ".wisp", "config.json"))

	name := filepath.Base(root)
	if len(args) == 1 {
		name = args[0]
	}
	if err := config.WriteStarterManifest(root, name); err != nil {
		// An existing manifest is fine; init stays idempotent.
		fmt.Printf("Skipped manifest: %v\n", err)
		return nil
	}
	fmt.Printf("Wrote %s\n", filepath.Join(root, config.ManifestName))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manifest, err := config.LoadManifest(cfg.WorkspaceRoot)
	if err != nil {
		return err
	}
	cfg.ApplyManifest(manifest)

	out, err := renderOutput(cfg, configShowOutput)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
