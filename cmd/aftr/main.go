package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aftr-cli/aftr/internal/config"
	"github.com/aftr-cli/aftr/internal/git"
	"github.com/aftr-cli/aftr/internal/render"
	"github.com/aftr-cli/aftr/internal/update"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile    string
	logLevel   string
	logFormat  string
	projectDir string
	noColor    bool

	checkUpdate bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aftr",
	Short: "Project tooling for data-science repositories",
	Long: `aftr keeps data-science projects supplied with shared material.

Reference sources mirror a sub-directory of a remote git repository into
.aftr/ inside the project, and project templates are kept in a small
registry under the user configuration directory.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information.

With --check, the tags of the release repository are listed and compared with
the running version.`,
	RunE: runVersion,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/aftr/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "project directory (default is the current directory)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	versionCmd.Flags().BoolVar(&checkUpdate, "check", false, "check whether a newer release is available")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(templateCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "aftr %s\n", version)
	_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
	_, _ = fmt.Fprintf(out, "  built:  %s\n", date)

	if !checkUpdate {
		return nil
	}

	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rel, err := update.Check(ctx, newGitClient(cfg), cfg.Update.RepoURL, version)
	if err != nil {
		return err
	}

	theme := render.NewTheme(noColor)
	switch {
	case rel.Available:
		_, _ = fmt.Fprintf(out, "\n%s %s (current: %s)\n", theme.Warn.Render("New version available:"), rel.Latest, rel.Current)
	case rel.Latest == "":
		_, _ = fmt.Fprintln(out, "\nNo releases found.")
	default:
		_, _ = fmt.Fprintf(out, "\n%s (latest release: %s)\n", theme.Success("aftr is up to date"), rel.Latest)
	}
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	// stdout carries command output, logs go to stderr
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// loadConfig loads the file named by --config, which must exist, or the
// default config file, which is optional.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	if cfgFile != "" {
		logger.Debug("loading configuration", "path", cfgFile)
		return config.Load(cfgFile)
	}

	configPath := config.DefaultPath()
	logger.Debug("loading configuration", "path", configPath)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"git", cfg.Git.Binary,
		"auth", cfg.AuthMethod(),
		"templates_dir", cfg.Templates.Dir)

	return cfg, nil
}

func newGitClient(cfg *config.Config) git.Client {
	return git.NewShellClient(git.Options{
		Binary:          cfg.Git.Binary,
		SSHKeyFile:      cfg.Auth.SSHKeyFile,
		HTTPSTokenFile:  cfg.Auth.HTTPSTokenFile,
		LsRemoteTimeout: cfg.Git.LsRemoteTimeout,
		CloneTimeout:    cfg.Git.CloneTimeout,
		CheckoutTimeout: cfg.Git.CheckoutTimeout,
	})
}

// resolveProjectDir returns the absolute project directory.
func resolveProjectDir() (string, error) {
	dir := projectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid project directory %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid project directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project directory %s is not a directory", abs)
	}
	return abs, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
