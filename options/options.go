// Package options reads the binding's own settings from <home-dir>/binding.yaml.
// The proxy configuration itself stays with mihomo.
package options

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mihomo_vpn_binding/contract"

	"gopkg.in/yaml.v3"
)

const FileName = "binding.yaml"

const (
	DefaultLogLevel = "info"
	DefaultStack    = "system"
)

type Options struct {
	LogLevel    string                    `yaml:"log-level"`
	CallTimeout time.Duration             `yaml:"call-timeout"`
	Stack       string                    `yaml:"stack"`
	Interface   *contract.InterfaceConfig `yaml:"interface,omitempty"`
}

func Default() Options {
	return Options{
		LogLevel: DefaultLogLevel,
		Stack:    DefaultStack,
	}
}

// Path returns the options file location inside homeDir.
func Path(homeDir string) string {
	return filepath.Join(homeDir, FileName)
}

// Load reads the options file from homeDir. A missing file yields Default().
func Load(homeDir string) (Options, error) {
	data, err := os.ReadFile(Path(homeDir))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), err
	}
	return Parse(data)
}

// Parse decodes YAML options over the defaults.
func Parse(data []byte) (Options, error) {
	opts := Default()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", FileName, err)
	}

	opts.LogLevel = strings.ToLower(strings.TrimSpace(opts.LogLevel))
	if opts.LogLevel == "" {
		opts.LogLevel = DefaultLogLevel
	}
	opts.Stack = strings.TrimSpace(opts.Stack)
	if opts.Stack == "" {
		opts.Stack = DefaultStack
	}
	if opts.CallTimeout < 0 {
		return Default(), fmt.Errorf("parse %s: negative call-timeout %s", FileName, opts.CallTimeout)
	}
	return opts, nil
}
