package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBranch is the branch tracked when a source does not name one.
	DefaultBranch = "main"

	DefaultLsRemoteTimeout = 30 * time.Second
	DefaultCloneTimeout    = 120 * time.Second
	DefaultCheckoutTimeout = 60 * time.Second

	// DefaultReleaseRepo is the remote whose tags are compared by `version --check`.
	DefaultReleaseRepo = "https://github.com/aftr-cli/aftr.git"
)

// Config represents the complete aftr configuration
type Config struct {
	Git       GitConfig       `yaml:"git"`
	Auth      AuthConfig      `yaml:"auth"`
	Refs      RefsConfig      `yaml:"refs"`
	Templates TemplatesConfig `yaml:"templates"`
	Update    UpdateConfig    `yaml:"update"`
}

// GitConfig configures the git executable and its timeouts
type GitConfig struct {
	Binary          string        `yaml:"binary"`
	LsRemoteTimeout time.Duration `yaml:"ls_remote_timeout"`
	CloneTimeout    time.Duration `yaml:"clone_timeout"`
	CheckoutTimeout time.Duration `yaml:"checkout_timeout"`
}

// AuthConfig configures Git authentication
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// RefsConfig configures defaults for reference sources
type RefsConfig struct {
	DefaultBranch string `yaml:"default_branch"`
}

// TemplatesConfig configures the template registry location
type TemplatesConfig struct {
	Dir string `yaml:"dir"`
}

// UpdateConfig configures the release check
type UpdateConfig struct {
	RepoURL string `yaml:"repo_url"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.expandEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// expandEnv expands environment variables and a leading ~ in path fields
func (c *Config) expandEnv() error {
	c.Git.Binary = os.ExpandEnv(c.Git.Binary)
	c.Refs.DefaultBranch = os.ExpandEnv(c.Refs.DefaultBranch)
	c.Update.RepoURL = os.ExpandEnv(c.Update.RepoURL)

	for _, p := range []*string{&c.Auth.SSHKeyFile, &c.Auth.HTTPSTokenFile, &c.Templates.Dir} {
		expanded, err := expandPath(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Git.Binary == "" {
		c.Git.Binary = "git"
	}
	if c.Git.LsRemoteTimeout == 0 {
		c.Git.LsRemoteTimeout = DefaultLsRemoteTimeout
	}
	if c.Git.CloneTimeout == 0 {
		c.Git.CloneTimeout = DefaultCloneTimeout
	}
	if c.Git.CheckoutTimeout == 0 {
		c.Git.CheckoutTimeout = DefaultCheckoutTimeout
	}
	if c.Refs.DefaultBranch == "" {
		c.Refs.DefaultBranch = DefaultBranch
	}
	if c.Templates.Dir == "" {
		c.Templates.Dir = DefaultDir()
	}
	if c.Update.RepoURL == "" {
		c.Update.RepoURL = DefaultReleaseRepo
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Git.LsRemoteTimeout < 0 || c.Git.CloneTimeout < 0 || c.Git.CheckoutTimeout < 0 {
		return fmt.Errorf("git timeouts must not be negative")
	}

	if c.Templates.Dir != "" && !filepath.IsAbs(c.Templates.Dir) {
		return fmt.Errorf("templates.dir must be an absolute path: %s", c.Templates.Dir)
	}

	// Only one auth method may be configured
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}

	return nil
}

// AuthMethod returns a description of the configured auth method
func (c *Config) AuthMethod() string {
	if c.Auth.SSHKeyFile != "" {
		return "ssh"
	}
	if c.Auth.HTTPSTokenFile != "" {
		return "https"
	}
	return "none"
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(os.ExpandEnv(path))
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	return expanded, nil
}
