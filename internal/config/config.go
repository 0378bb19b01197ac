// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the settings shared by the nwalign binaries.
//
// Settings are resolved in order: built-in defaults, an optional YAML file,
// NWALIGN_* environment variables and finally command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/googlegenomics/nwalign/align"
	"github.com/googlegenomics/nwalign/sequence"
)

// Config is the complete configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Align   AlignConfig   `yaml:"align"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port int `yaml:"port"`

	// Secure serves HTTPS only and forwards client bearer tokens to storage.
	Secure    bool   `yaml:"secure"`
	HTTPSCert string `yaml:"https_cert"`
	HTTPSKey  string `yaml:"https_key"`

	// Buckets, if set, restricts storage reads to these buckets.
	Buckets []string `yaml:"buckets"`

	// JobRetention is how long finished jobs remain queryable.
	JobRetention time.Duration `yaml:"job_retention"`

	// TrackUsage enables anonymous usage tracking.
	TrackUsage        bool   `yaml:"track_usage"`
	AnalyticsProperty string `yaml:"analytics_property"`
	AnalyticsEndpoint string `yaml:"analytics_endpoint"`
}

// AlignConfig configures alignments.
type AlignConfig struct {
	Scoring   align.Scoring `yaml:"scoring"`
	MaxLength int           `yaml:"max_length"`
	// MaxCells bounds the score matrix of a single alignment; zero disables
	// the bound.
	MaxCells  int64 `yaml:"max_cells"`
	LineWidth int   `yaml:"line_width"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			JobRetention:      15 * time.Minute,
			AnalyticsEndpoint: "https://www.google-analytics.com/",
		},
		Align: AlignConfig{
			Scoring:   align.DefaultScoring,
			MaxLength: sequence.DefaultMaxLength,
			MaxCells:  1 << 28,
			LineWidth: align.DefaultLineWidth,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load returns the default configuration overlaid with the YAML file at path
// (if path is not empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %v", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %v", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("NWALIGN_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing NWALIGN_PORT: %v", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("NWALIGN_BUCKETS"); ok {
		cfg.Server.Buckets = splitList(v)
	}
	if v, ok := lookup("NWALIGN_MAX_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing NWALIGN_MAX_LENGTH: %v", err)
		}
		cfg.Align.MaxLength = n
	}
	if v, ok := lookup("NWALIGN_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookup("NWALIGN_LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	return nil
}

// Validate checks settings that cannot be corrected silently.
func (cfg *Config) Validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Server.Port)
	}
	if cfg.Server.Secure && (cfg.Server.HTTPSCert == "" || cfg.Server.HTTPSKey == "") {
		return fmt.Errorf("secure mode requires both https_cert and https_key")
	}
	if cfg.Server.TrackUsage && cfg.Server.AnalyticsProperty == "" {
		return fmt.Errorf("usage tracking requires analytics_property")
	}
	if cfg.Align.MaxLength < 0 {
		return fmt.Errorf("invalid max_length %d", cfg.Align.MaxLength)
	}
	if cfg.Align.MaxCells < 0 {
		return fmt.Errorf("invalid max_cells %d", cfg.Align.MaxCells)
	}
	return nil
}

// BucketWhitelist returns the configured buckets as a set, or nil if reads
// are unrestricted.
func (cfg *Config) BucketWhitelist() map[string]bool {
	if len(cfg.Server.Buckets) == 0 {
		return nil
	}
	whitelist := make(map[string]bool)
	for _, bucket := range cfg.Server.Buckets {
		whitelist[bucket] = true
	}
	return whitelist
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
