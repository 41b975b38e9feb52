package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aftr-cli/aftr/internal/config"
	"github.com/aftr-cli/aftr/internal/git"
	"github.com/aftr-cli/aftr/internal/refs"
	"github.com/aftr-cli/aftr/internal/render"
)

var (
	addURL      string
	addPath     string
	addName     string
	addBranch   string
	addLocalDir string

	syncForce bool

	removeDeleteFiles bool
	removeYes         bool
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Manage reference sources mirrored into .aftr/",
	Long: `Reference sources are sub-directories of remote git repositories that are
mirrored read-only into .aftr/<local_dir>/ of the project.

Sources are listed in .aftr/refs.toml, which is meant to be committed. The
last synced commit of every source is kept in .aftr/.state.json, which is
added to .gitignore.`,
}

var refsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new reference source",
	Args:  cobra.NoArgs,
	RunE:  runRefsAdd,
}

var refsSyncCmd = &cobra.Command{
	Use:   "sync [name]",
	Short: "Sync reference files from registered sources",
	Long: `Sync compares the remote head of every source with the last synced commit
and re-fetches sources that changed. Omit NAME to sync all sources.

A failing source does not stop the others; the command exits non-zero if any
source failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefsSync,
}

var refsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered reference sources",
	Args:  cobra.NoArgs,
	RunE:  runRefsList,
}

var refsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a registered reference source",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefsRemove,
}

func init() {
	refsAddCmd.Flags().StringVar(&addURL, "url", "", "git repository URL")
	refsAddCmd.Flags().StringVar(&addPath, "path", "", "path inside the repository to sync (e.g. docs/guides)")
	refsAddCmd.Flags().StringVar(&addName, "name", "", "short name for the source (default is the last element of --path)")
	refsAddCmd.Flags().StringVar(&addBranch, "branch", "", "branch to sync (default is refs.default_branch, usually main)")
	refsAddCmd.Flags().StringVar(&addLocalDir, "local-dir", "", "directory under .aftr/ to mirror into (default is the name)")
	_ = refsAddCmd.MarkFlagRequired("url")
	_ = refsAddCmd.MarkFlagRequired("path")

	refsSyncCmd.Flags().BoolVarP(&syncForce, "force", "f", false, "re-sync even if already up to date")

	refsRemoveCmd.Flags().BoolVar(&removeDeleteFiles, "delete-files", false, "also delete the synced files from .aftr/<local_dir>/")
	refsRemoveCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "do not ask for confirmation")

	refsCmd.AddCommand(refsAddCmd)
	refsCmd.AddCommand(refsSyncCmd)
	refsCmd.AddCommand(refsListCmd)
	refsCmd.AddCommand(refsRemoveCmd)
}

// refsEnv bundles what every refs command needs.
type refsEnv struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *refs.Store
	theme  render.Theme
}

func newRefsEnv() (*refsEnv, error) {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dir, err := resolveProjectDir()
	if err != nil {
		return nil, err
	}

	return &refsEnv{
		cfg:    cfg,
		logger: logger,
		store:  refs.NewStore(afero.NewOsFs(), dir),
		theme:  render.NewTheme(noColor),
	}, nil
}

func runRefsAdd(cmd *cobra.Command, args []string) error {
	env, err := newRefsEnv()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	src := refs.Source{
		Name:     strings.TrimSpace(addName),
		URL:      strings.TrimSpace(addURL),
		Path:     strings.Trim(strings.TrimSpace(addPath), "/"),
		Branch:   strings.TrimSpace(addBranch),
		LocalDir: strings.TrimSpace(addLocalDir),
	}
	if src.Name == "" {
		src.Name = path.Base(src.Path)
	}
	if src.Branch == "" {
		src.Branch = env.cfg.Refs.DefaultBranch
	}
	if err := src.Validate(); err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	if clean, err := git.CleanSubPath(src.Path); err == nil {
		src.Path = clean
	}

	sources, err := env.store.LoadSources()
	if err != nil {
		return err
	}
	index, err := refs.NewIndex(sources)
	if err != nil {
		return err
	}
	if err := index.Add(src); err != nil {
		if errors.Is(err, refs.ErrDuplicateSource) {
			return fmt.Errorf("a source named '%s' already exists; use 'aftr refs remove %s' first, or choose a different name: %w",
				src.Name, src.Name, refs.ErrDuplicateSource)
		}
		return err
	}

	for _, c := range refs.LocalDirCollisions(index.Sources()) {
		msg := "sources %s share .aftr/%s/; the last one synced overwrites the others"
		if c.Nested {
			msg = "sources %s overlap inside .aftr/%s/; syncing the outer one replaces the inner mirror"
		}
		_, _ = fmt.Fprintln(out, env.theme.Warning(fmt.Sprintf(msg, strings.Join(c.Names, ", "), c.LocalDir)))
	}

	if err := env.store.SaveSources(index.Sources()); err != nil {
		return err
	}
	changed, err := env.store.EnsureIgnoreEntry()
	if err != nil {
		return err
	}
	if changed {
		env.logger.Info("added state file to .gitignore", "entry", refs.IgnoreEntry)
	}

	_, _ = fmt.Fprintln(out, env.theme.Success(fmt.Sprintf("Source '%s' added.", src.Name)))
	_, _ = fmt.Fprintf(out, "  Run %s to fetch the files.\n", env.theme.Hint("aftr refs sync "+src.Name))
	return nil
}

func runRefsSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	env, err := newRefsEnv()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	sources, err := env.store.LoadSources()
	if err != nil {
		return err
	}

	var name string
	if len(args) == 1 {
		name = args[0]
	}
	targets, err := refs.SelectSources(sources, name)
	if err != nil {
		return fmt.Errorf("source '%s' not found: %w", name, refs.ErrSourceNotFound)
	}
	if len(targets) == 0 {
		printNoSources(out, env.theme)
		return nil
	}

	engine := refs.NewEngine(env.store, newGitClient(env.cfg), env.logger)
	batch := engine.SyncAll(ctx, targets, syncForce, func(r refs.Result) {
		_, _ = fmt.Fprintln(out, env.theme.Syncing(r.Name))
		_, _ = fmt.Fprintln(out, env.theme.SyncResult(r))
	})

	if batch.AnyError() {
		env.logger.Debug("sync errors", "error", batch.Err())
		_, _, failed := batch.Counts()
		return fmt.Errorf("%d of %d sources failed to sync", failed, len(batch.Results))
	}
	return nil
}

func runRefsList(cmd *cobra.Command, args []string) error {
	env, err := newRefsEnv()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	sources, err := env.store.LoadSources()
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		printNoSources(out, env.theme)
		return nil
	}

	state, err := env.store.LoadState()
	if err != nil {
		env.logger.Warn("failed to load sync state", "error", err)
	}

	_, _ = fmt.Fprintln(out, env.theme.SourcesTable(sources, state))
	return nil
}

func runRefsRemove(cmd *cobra.Command, args []string) error {
	env, err := newRefsEnv()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	name := args[0]

	sources, err := env.store.LoadSources()
	if err != nil {
		return err
	}
	index, err := refs.NewIndex(sources)
	if err != nil {
		return err
	}
	target, ok := index.Get(name)
	if !ok {
		return fmt.Errorf("source '%s' not found: %w", name, refs.ErrSourceNotFound)
	}

	if !removeYes {
		confirmed, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Remove source '%s'?", name))
		if err != nil {
			return err
		}
		if !confirmed {
			_, _ = fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if removeDeleteFiles {
		removed, err := env.store.RemoveMirror(target.LocalDir)
		if err != nil {
			return err
		}
		if removed {
			_, _ = fmt.Fprintf(out, "  %s %s\n", env.theme.Dim.Render("Deleted"), env.store.MirrorPath(target.LocalDir))
		}
	}

	index.Remove(name)
	if err := env.store.SaveSources(index.Sources()); err != nil {
		return err
	}
	if err := env.store.ForgetState(name); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, env.theme.Success(fmt.Sprintf("Source '%s' removed.", name)))
	return nil
}

func printNoSources(out io.Writer, theme render.Theme) {
	_, _ = fmt.Fprintf(out, "%s Add one with %s.\n",
		theme.Warn.Render("No sources registered."), theme.Hint("aftr refs add"))
}

// confirm asks a yes/no question on out and reads the answer from in. Only
// "y" and "yes" count as consent; EOF counts as no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", question)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
