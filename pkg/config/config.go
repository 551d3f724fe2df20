// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// TokenEnv is read when the config file carries no token.
const TokenEnv = "MERGIN_TOKEN"

const (
	DefaultProvider        = "mergin"
	DefaultDataDir         = "~/merginsync"
	DefaultDeletePolicy    = "after_fetch"
	DefaultConcurrency     = 4
	DefaultRefreshInterval = 5 * time.Minute
)

// DefaultNames are looked up, in order, when no config path is given.
var DefaultNames = []string{"merginsync.yaml", "merginsync.yml", "merginsync.hcl", "merginsync.json"}

var fs = afero.NewOsFs()

// 🔌 Parser decodes one config file format. Defaults and validation are
// applied by Load, not by the parser.
type Parser interface {
	// Format names the file format in error messages.
	Format() string

	// CanParse reports whether filename has this format's extension.
	CanParse(filename string) bool

	// Decode fills cfg from data. Unknown keys are an error.
	Decode(data []byte, cfg *Config) error
}

var parsers []Parser

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📚 Config represents the complete configuration
type Config struct {
	Provider     string   `json:"provider,omitempty" yaml:"provider,omitempty" hcl:"provider,optional"`
	APIRoot      string   `json:"api_root,omitempty" yaml:"api_root,omitempty" hcl:"api_root,optional"`
	Token        string   `json:"token,omitempty" yaml:"token,omitempty" hcl:"token,optional"`
	DataDir      string   `json:"data_dir,omitempty" yaml:"data_dir,omitempty" hcl:"data_dir,optional"`
	Tags         []string `json:"tags,omitempty" yaml:"tags,omitempty" hcl:"tags,optional"`
	Ignore       []string `json:"ignore,omitempty" yaml:"ignore,omitempty" hcl:"ignore,optional"`
	DeletePolicy string   `json:"delete_policy,omitempty" yaml:"delete_policy,omitempty" hcl:"delete_policy,optional"`
	ChunkSize    int      `json:"chunk_size,omitempty" yaml:"chunk_size,omitempty" hcl:"chunk_size,optional"`
	Concurrency  int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty" hcl:"concurrency,optional"`

	// RefreshInterval is a Go duration string used by the watch command.
	RefreshInterval string `json:"refresh_interval,omitempty" yaml:"refresh_interval,omitempty" hcl:"refresh_interval,optional"`
}

// Default is the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.Validate()
	return cfg
}

// 🎯 Load loads the configuration from a file. An empty path searches
// DefaultNames in the working directory and falls back to Default.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)

	if path == "" {
		found, ok := discover(".")
		if !ok {
			logger.Debug().Msg("no configuration file, using defaults")
			cfg := Default()
			cfg.applyEnv()
			return cfg, nil
		}
		path = found
	}

	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	cfg := &Config{}
	if err := p.Decode(data, cfg); err != nil {
		return nil, errors.WithDetails(errors.Errorf("parsing %s config: %w", p.Format(), err), "path", path)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

func discover(dir string) (string, bool) {
	for _, name := range DefaultNames {
		p := filepath.Join(dir, name)
		if ok, _ := afero.Exists(fs, p); ok {
			return p, true
		}
	}
	return "", false
}

func (cfg *Config) applyEnv() {
	if cfg.Token == "" {
		cfg.Token = os.Getenv(TokenEnv)
	}
}

// 🔍 Validate checks the configuration and fills in defaults
func (cfg *Config) Validate() error {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	dir, err := homedir.Expand(cfg.DataDir)
	if err != nil {
		return errors.Errorf("expanding data_dir: %w", err)
	}
	cfg.DataDir = filepath.Clean(dir)

	switch cfg.DeletePolicy {
	case "":
		cfg.DeletePolicy = DefaultDeletePolicy
	case "after_fetch", "immediate":
	default:
		return errors.Errorf("delete_policy must be after_fetch or immediate, got %q", cfg.DeletePolicy)
	}

	if cfg.ChunkSize < 0 {
		return errors.Errorf("chunk_size must not be negative")
	}
	if cfg.Concurrency < 0 {
		return errors.Errorf("concurrency must not be negative")
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	if cfg.RefreshInterval != "" {
		d, err := time.ParseDuration(cfg.RefreshInterval)
		if err != nil {
			return errors.Errorf("parsing refresh_interval: %w", err)
		}
		if d <= 0 {
			return errors.Errorf("refresh_interval must be positive")
		}
	}

	for _, g := range cfg.Ignore {
		if strings.TrimSpace(g) == "" {
			return errors.Errorf("ignore patterns must not be empty")
		}
	}

	return nil
}

// Refresh returns the parsed refresh interval.
func (cfg *Config) Refresh() time.Duration {
	if d, err := time.ParseDuration(cfg.RefreshInterval); err == nil && d > 0 {
		return d
	}
	return DefaultRefreshInterval
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	root := cfg.APIRoot
	if root == "" {
		root = "default"
	}
	auth := "no token"
	if cfg.Token != "" {
		auth = "token set"
	}
	return fmt.Sprintf("%s@%s -> %s (%s)", cfg.Provider, root, cfg.DataDir, auth)
}
