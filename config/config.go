// Package config carries the YAML-tagged run configuration, the same way
// binee's WinOptions carries its own emulation settings, and the CLI merges
// flag overrides over it the way binee's main.go merges a -c flag over
// WinOptions defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Options is the full set of inputs a run needs: the two module paths, the
// process-parameters strings, and the trace toggle.
type Options struct {
	Executable  string `yaml:"executable"`
	Ntdll       string `yaml:"ntdll"`
	ImagePath   string `yaml:"image_path"`
	CommandLine string `yaml:"command_line"`
	Trace       bool   `yaml:"trace"`
}

// Default returns the zero-value baseline a YAML file or flags are merged
// over.
func Default() Options {
	return Options{}
}

// Load reads and unmarshals a YAML config file. A missing path is not an
// error - callers pass an empty path when no -c flag was given, and get
// back the defaults untouched.
func Load(path string) (Options, error) {
	opts := Default()
	if path == "" {
		return opts, nil
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(buf, &opts); err != nil {
		return Options{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return opts, nil
}

// MergeFlags overlays non-zero CLI overrides onto opts, the way binee's
// main.go layers flag.Parse output over WinOptions read from -c.
func (o Options) MergeFlags(executable, ntdll string, trace bool) Options {
	merged := o
	if executable != "" {
		merged.Executable = executable
	}
	if ntdll != "" {
		merged.Ntdll = ntdll
	}
	if merged.ImagePath == "" {
		merged.ImagePath = merged.Executable
	}
	if merged.CommandLine == "" {
		merged.CommandLine = merged.Executable
	}
	merged.Trace = merged.Trace || trace
	return merged
}

// Validate checks that the two required paths were supplied.
func (o Options) Validate() error {
	if o.Executable == "" {
		return fmt.Errorf("no executable specified")
	}
	if o.Ntdll == "" {
		return fmt.Errorf("no ntdll specified")
	}
	return nil
}
