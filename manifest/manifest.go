// Package manifest handles rat25s.toml project configuration.
package manifest

import (
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/chazu/rat25s/compiler"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "rat25s.toml"

// Manifest represents a rat25s.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project" json:"project"`
	Compiler Compiler `toml:"compiler" json:"compiler"`
	Cases    []Case   `toml:"case" json:"case,omitempty"`
	Output   Output   `toml:"output" json:"output"`

	// Dir is the directory containing the rat25s.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" json:"name,omitempty"`
	Version string `toml:"version" json:"version,omitempty"`
}

// Compiler configures each compilation run.
type Compiler struct {
	BaseAddress      int  `toml:"base-address" json:"base-address"`
	Capacity         int  `toml:"capacity" json:"capacity"`
	TraceProductions bool `toml:"trace-productions" json:"trace-productions"`
	Precedence       bool `toml:"precedence" json:"precedence"`
}

// Case is one source file compiled by the transcript driver.
type Case struct {
	Name   string `toml:"name" json:"name,omitempty"`
	Source string `toml:"source" json:"source"`
	Output string `toml:"output" json:"output,omitempty"`
}

// Output configures artifacts written next to the transcript.
type Output struct {
	ObjectDir string `toml:"object-dir" json:"object-dir,omitempty"`
	Database  string `toml:"database" json:"database,omitempty"`
}

// Default returns a manifest with every default applied.
func Default() *Manifest {
	opts := compiler.DefaultOptions()
	return &Manifest{
		Compiler: Compiler{
			BaseAddress:      opts.BaseAddress,
			Capacity:         opts.Capacity,
			TraceProductions: opts.TraceProductions,
			Precedence:       opts.Precedence,
		},
	}
}

// Parse decodes manifest text over the defaults and validates the result.
func Parse(data []byte) (*Manifest, error) {
	m := Default()
	if _, err := toml.Decode(string(data), m); err != nil {
		return nil, errors.Wrap(err, "parse error")
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	for i := range m.Cases {
		if m.Cases[i].Name == "" {
			m.Cases[i].Name = trimExt(filepath.Base(m.Cases[i].Source))
		}
	}
	return m, nil
}

// Load parses a rat25s.toml file from the given directory.
func Load(fs afero.Fs, dir string) (*Manifest, error) {
	return LoadFile(fs, filepath.Join(dir, FileName))
}

// LoadFile parses the manifest at path. Relative case and output paths are
// resolved against the directory containing it.
func LoadFile(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read %s", path)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	dir := filepath.Dir(path)
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot resolve path %s", dir)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a rat25s.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(fs afero.Fs, startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if ok, _ := afero.Exists(fs, filepath.Join(dir, FileName)); ok {
			return Load(fs, dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Options converts the [compiler] section into compiler options.
func (m *Manifest) Options() compiler.Options {
	return compiler.Options{
		BaseAddress:      m.Compiler.BaseAddress,
		Capacity:         m.Compiler.Capacity,
		TraceProductions: m.Compiler.TraceProductions,
		Precedence:       m.Compiler.Precedence,
	}
}

// Resolve returns path relative to the manifest directory unless it is
// already absolute.
func (m *Manifest) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
