// Package config handles cscript.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"cscript/pkg/compiler"
)

// FileName is the project file looked up by FindAndLoad.
const FileName = "cscript.toml"

// Config represents a cscript.toml project configuration.
type Config struct {
	Project  Project           `toml:"project"`
	Source   Source            `toml:"source"`
	Compiler CompilerConfig    `toml:"compiler"`
	Macros   map[string]string `toml:"macros"`
	Include  Include           `toml:"include"`
	Output   Output            `toml:"output"`
	Cache    Cache             `toml:"cache"`
	Build    Build             `toml:"build"`

	// Dir is the directory containing cscript.toml (set at load time).
	Dir string `toml:"-"`
}

type Project struct {
	Name       string `toml:"name"`
	Version    string `toml:"version"`
	AppVersion string `toml:"app-version"`
}

// Source lists where scripts live. Headers are prepended, in order, to
// every unit.
type Source struct {
	Dirs    []string `toml:"dirs"`
	Headers []string `toml:"headers"`
}

type CompilerConfig struct {
	LineNumbers bool `toml:"line-numbers"`
	ExportAll   bool `toml:"export-all"`
}

type Include struct {
	Dirs []string `toml:"dirs"`
}

type Output struct {
	Dir     string `toml:"dir"`
	Listing bool   `toml:"listing"`
}

type Cache struct {
	Path     string `toml:"path"`
	Disabled bool   `toml:"disabled"`
}

type Build struct {
	Jobs int `toml:"jobs"`
}

// Default returns the configuration used when no cscript.toml exists.
func Default(dir string) *Config {
	c := &Config{Dir: dir}
	c.applyDefaults()
	return c
}

// Load parses cscript.toml from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(dir, data)
}

// Parse decodes configuration text as if it had been read from dir.
func Parse(dir string, data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", filepath.Join(dir, FileName), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), filepath.Join(dir, FileName))
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if c.Build.Jobs < 0 {
		return nil, fmt.Errorf("%s: build.jobs must not be negative", filepath.Join(dir, FileName))
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if len(c.Source.Dirs) == 0 {
		c.Source.Dirs = []string{"."}
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "build"
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(".cscript", "cache.db")
	}
	if c.Build.Jobs == 0 {
		c.Build.Jobs = runtime.GOMAXPROCS(0)
	}
}

// FindAndLoad walks up from startDir to find cscript.toml, then loads it.
// Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

func (c *Config) SourceDirPaths() []string {
	var out []string
	for _, d := range c.Source.Dirs {
		out = append(out, c.abs(d))
	}
	return out
}

func (c *Config) HeaderPaths() []string {
	var out []string
	for _, h := range c.Source.Headers {
		out = append(out, c.abs(h))
	}
	return out
}

// IncludeDirPaths returns the include search path: configured directories
// first, then the source directories.
func (c *Config) IncludeDirPaths() []string {
	var out []string
	for _, d := range c.Include.Dirs {
		out = append(out, c.abs(d))
	}
	return append(out, c.SourceDirPaths()...)
}

func (c *Config) OutputDirPath() string { return c.abs(c.Output.Dir) }

func (c *Config) CachePath() string { return c.abs(c.Cache.Path) }

// CompilerOptions builds pipeline options from the configuration. The
// resolver is supplied by the caller.
func (c *Config) CompilerOptions(resolver compiler.IncludeResolver) compiler.Options {
	macros := make(map[string]string, len(c.Macros))
	for k, v := range c.Macros {
		macros[k] = v
	}
	return compiler.Options{
		AppVersion:  c.Project.AppVersion,
		LineNumbers: c.Compiler.LineNumbers,
		ExportAll:   c.Compiler.ExportAll,
		Macros:      macros,
		Resolver:    resolver,
	}
}
