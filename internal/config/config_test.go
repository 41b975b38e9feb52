package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
git:
  binary: "/usr/bin/git"
  ls_remote_timeout: "10s"
  clone_timeout: "5m"

auth:
  ssh_key_file: "/home/user/.ssh/key"

refs:
  default_branch: "trunk"

templates:
  dir: "/home/user/.config/aftr"
`

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Git.Binary != "/usr/bin/git" {
		t.Errorf("expected git binary /usr/bin/git, got %s", cfg.Git.Binary)
	}
	if cfg.Git.LsRemoteTimeout != 10*time.Second {
		t.Errorf("expected ls-remote timeout 10s, got %s", cfg.Git.LsRemoteTimeout)
	}
	if cfg.Git.CloneTimeout != 5*time.Minute {
		t.Errorf("expected clone timeout 5m, got %s", cfg.Git.CloneTimeout)
	}
	// unset in file, default applies
	if cfg.Git.CheckoutTimeout != DefaultCheckoutTimeout {
		t.Errorf("expected default checkout timeout, got %s", cfg.Git.CheckoutTimeout)
	}
	if cfg.Refs.DefaultBranch != "trunk" {
		t.Errorf("expected default branch trunk, got %s", cfg.Refs.DefaultBranch)
	}
	if cfg.Templates.Dir != "/home/user/.config/aftr" {
		t.Errorf("unexpected templates dir %s", cfg.Templates.Dir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("git: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Git.Binary != "git" {
			t.Errorf("expected default git binary, got %s", cfg.Git.Binary)
		}
		if cfg.Refs.DefaultBranch != DefaultBranch {
			t.Errorf("expected default branch %s, got %s", DefaultBranch, cfg.Refs.DefaultBranch)
		}
	})

	t.Run("invalid file is still an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "auth:\n  ssh_key_file: /a\n  https_token_file: /b\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadOrDefault(path); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     Config{},
			wantErr: false,
		},
		{
			name: "ssh key only",
			cfg: Config{
				Auth: AuthConfig{SSHKeyFile: "/key"},
			},
			wantErr: false,
		},
		{
			name: "both ssh key and https token set",
			cfg: Config{
				Auth: AuthConfig{
					SSHKeyFile:     "/key",
					HTTPSTokenFile: "/token",
				},
			},
			wantErr: true,
		},
		{
			name: "negative timeout",
			cfg: Config{
				Git: GitConfig{CloneTimeout: -time.Second},
			},
			wantErr: true,
		},
		{
			name: "relative templates dir",
			cfg: Config{
				Templates: TemplatesConfig{Dir: "relative/dir"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{
		Git: GitConfig{LsRemoteTimeout: 3 * time.Second},
	}
	cfg.applyDefaults()

	if cfg.Git.LsRemoteTimeout != 3*time.Second {
		t.Errorf("explicit timeout overwritten: %s", cfg.Git.LsRemoteTimeout)
	}
	if cfg.Git.CloneTimeout != DefaultCloneTimeout {
		t.Errorf("expected default clone timeout, got %s", cfg.Git.CloneTimeout)
	}
	if cfg.Update.RepoURL != DefaultReleaseRepo {
		t.Errorf("expected default release repo, got %s", cfg.Update.RepoURL)
	}
}

func TestAuthMethod(t *testing.T) {
	tests := []struct {
		name string
		auth AuthConfig
		want string
	}{
		{name: "none", auth: AuthConfig{}, want: "none"},
		{name: "ssh", auth: AuthConfig{SSHKeyFile: "/key"}, want: "ssh"},
		{name: "https", auth: AuthConfig{HTTPSTokenFile: "/token"}, want: "https"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Auth: tt.auth}
			if got := cfg.AuthMethod(); got != tt.want {
				t.Errorf("AuthMethod() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("AFTR_TEST_HOME", "/home/testuser")

	cfg := &Config{
		Auth:   AuthConfig{SSHKeyFile: "${AFTR_TEST_HOME}/.ssh/id_ed25519"},
		Update: UpdateConfig{RepoURL: "https://example.com/${AFTR_TEST_HOME}"},
	}
	if err := cfg.expandEnv(); err != nil {
		t.Fatal(err)
	}

	if cfg.Auth.SSHKeyFile != "/home/testuser/.ssh/id_ed25519" {
		t.Errorf("ssh key not expanded: %s", cfg.Auth.SSHKeyFile)
	}
	if cfg.Update.RepoURL != "https://example.com//home/testuser" {
		t.Errorf("repo url not expanded: %s", cfg.Update.RepoURL)
	}
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "explicit override",
			env:  map[string]string{"AFTR_CONFIG_DIR": "/custom", "XDG_CONFIG_HOME": "/xdg"},
			want: "/custom",
		},
		{
			name: "xdg config home",
			env:  map[string]string{"XDG_CONFIG_HOME": "/xdg"},
			want: "/xdg/aftr",
		},
		{
			name: "relative override is made absolute",
			env:  map[string]string{"AFTR_CONFIG_DIR": "cfg"},
			want: filepath.Join(wd, "cfg"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveDir(func(k string) string { return tt.env[k] })
			if got != tt.want {
				t.Errorf("resolveDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDir_RelativeXDGIgnored(t *testing.T) {
	got := resolveDir(func(k string) string {
		if k == "XDG_CONFIG_HOME" {
			return "xdg"
		}
		return ""
	})
	if got == filepath.Join("xdg", "aftr") {
		t.Errorf("relative XDG_CONFIG_HOME should be ignored, got %q", got)
	}
}

func TestLoadOrDefault_RelativeConfigDir(t *testing.T) {
	t.Setenv("AFTR_CONFIG_DIR", "cfg")
	// Equivalent of t.Chdir (Go 1.24+) for older toolchains.
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	cfg, err := LoadOrDefault(DefaultPath())
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if !filepath.IsAbs(cfg.Templates.Dir) {
		t.Errorf("templates dir %q should be absolute", cfg.Templates.Dir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
