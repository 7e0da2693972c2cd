// Package manifest handles glox.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/glox/vm"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "glox.toml"

// SourceExt is the extension of Lox source files.
const SourceExt = ".lox"

// Manifest represents a glox.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Source  Source      `toml:"source"`
	VM      VMConfig    `toml:"vm"`
	Cache   CacheConfig `toml:"cache"`
	Log     LogConfig   `toml:"log"`

	// Dir is the directory containing the glox.toml file (set at load time).
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

// VMConfig configures the virtual machine.
type VMConfig struct {
	MaxFrames int      `toml:"max-frames"`
	Trace     bool     `toml:"trace"`
	Natives   []string `toml:"natives"`
}

// CacheConfig configures the compiled image cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses a glox.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
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
		m.Source.Dirs = []string{"."}
	}
	if m.VM.MaxFrames == 0 {
		m.VM.MaxFrames = vm.DefaultMaxFrames
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".glox", "cache.db")
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a glox.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
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

// Validate checks values that would otherwise fail later at VM setup.
func (m *Manifest) Validate() error {
	if m.VM.MaxFrames < 0 {
		return fmt.Errorf("vm.max-frames must not be negative, got %d", m.VM.MaxFrames)
	}
	for _, name := range m.VM.Natives {
		if _, ok := vm.LookupBuiltin(name); !ok {
			return fmt.Errorf("vm.natives: unknown native %q", name)
		}
	}
	if m.Log.Verbosity < 0 {
		return fmt.Errorf("log.verbosity must not be negative, got %d", m.Log.Verbosity)
	}
	return nil
}

// VMOptions converts the [vm] table into VM construction options.
// An empty natives list means all built-ins.
func (m *Manifest) VMOptions() vm.Config {
	cfg := vm.Config{
		MaxFrames: m.VM.MaxFrames,
		Trace:     m.VM.Trace,
	}
	if len(m.VM.Natives) > 0 {
		cfg.Natives = append([]string(nil), m.VM.Natives...)
	}
	return cfg
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// EntryPath returns the absolute path of the entry script, or "" if none is
// configured. A relative entry is looked up in the source directories.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Source.Entry) {
		return m.Source.Entry
	}
	for _, dir := range m.SourceDirPaths() {
		path := filepath.Join(dir, m.Source.Entry)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return m.resolve(m.Source.Entry)
}

// CachePath returns the absolute path of the image cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// LogFilePath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

// SourceFiles lists every .lox file under the source directories, sorted.
func (m *Manifest) SourceFiles() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, dir := range m.SourceDirPaths() {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) == SourceExt && !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
