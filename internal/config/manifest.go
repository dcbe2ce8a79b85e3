package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"
)

// ManifestName is the workspace-local manifest file.
const ManifestName = "wisp.toml"

// Manifest is the checked-in, per-workspace counterpart to the daemon
// config: project identity and workspace hints that belong in the repo.
type Manifest struct {
	Name      string   `toml:"name"`
	ScipIndex string   `toml:"scip_index,omitempty"`
	Ignore    []string `toml:"ignore,omitempty"`
	Documents []string `toml:"documents,omitempty"` // glob patterns to track
}

// LoadManifest reads wisp.toml from the workspace root. A missing manifest
// is not an error; the daemon runs fine without one.
func LoadManifest(workspaceRoot string) (*Manifest, error) {
	path := filepath.Join(workspaceRoot, ManifestName)

	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing %s: %w", ManifestName, err)
	}
	return &m, nil
}

// ApplyManifest folds manifest hints into the loaded configuration.
func (c *Config) ApplyManifest(m *Manifest) {
	if m == nil {
		return
	}
	if m.ScipIndex != "" && c.Scip.IndexPath == "" {
		c.Scip.IndexPath = m.ScipIndex
	}
	c.Watcher.Ignore = append(c.Watcher.Ignore, m.Ignore...)
}

// WriteStarterManifest writes a commented starter wisp.toml, refusing to
// overwrite an existing one.
func WriteStarterManifest(workspaceRoot, name string) error {
	path := filepath.Join(workspaceRoot, ManifestName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", ManifestName)
	}

	m := Manifest{
		Name:   name,
		Ignore: []string{"vendor", "node_modules"},
	}
	data, err := gotoml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	header := "# wisp workspace manifest\n# See `wisp config --help` for daemon-level settings.\n\n"
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}
