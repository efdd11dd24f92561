// Package manifest handles rplus.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents an rplus.toml project configuration.
type Manifest struct {
	Project Project   `toml:"project"`
	Source  Source    `toml:"source"`
	VM      VMConfig  `toml:"vm"`
	Cache   CacheCfg  `toml:"cache"`
	Output  OutputCfg `toml:"output"`

	// Dir is the directory containing the rplus.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// VMConfig configures the virtual machine the project runs on. Zero
// values mean the machine defaults.
type VMConfig struct {
	HeapSize     uint64 `toml:"heap-size"`
	StackSize    uint64 `toml:"stack-size"`
	MaxCallDepth int    `toml:"max-call-depth"`
}

// CacheCfg configures the compiled module cache.
type CacheCfg struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// OutputCfg configures bytecode output.
type OutputCfg struct {
	Bytecode string `toml:"bytecode"`
}

// Load parses an rplus.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "rplus.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Source.Entry == "" {
		m.Source.Entry = "main.rp"
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find an rplus.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "rplus.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	for _, d := range m.SourceDirPaths() {
		p := filepath.Join(d, m.Source.Entry)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(m.Dir, m.Source.Entry)
}

// CachePath returns the path of the compiled module cache database.
func (m *Manifest) CachePath() string {
	if m.Cache.Path != "" {
		return filepath.Join(m.Dir, m.Cache.Path)
	}
	return filepath.Join(m.Dir, ".rplus", "cache.db")
}
