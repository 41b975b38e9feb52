package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aftr-cli/aftr/internal/registry"
	"github.com/aftr-cli/aftr/internal/render"
)

var (
	templateAddName   string
	templateAddForce  bool
	templateRemoveYes bool
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage project templates",
	Long: `Templates are TOML files downloaded from a URL (for example a raw GitHub
file) and stored under the aftr configuration directory. The URL is recorded
so a template can be refreshed later with 'aftr template update'.`,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplateList,
}

var templateAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a template from a URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateAdd,
}

var templateUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Refresh a template from its source URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateUpdate,
}

var templateRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a registered template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateRemove,
}

func init() {
	templateAddCmd.Flags().StringVarP(&templateAddName, "name", "n", "", "name for the template (default is derived from the template)")
	templateAddCmd.Flags().BoolVar(&templateAddForce, "force", false, "overwrite an existing template with the same name")

	templateRemoveCmd.Flags().BoolVarP(&templateRemoveYes, "yes", "y", false, "do not ask for confirmation")

	templateCmd.AddCommand(templateListCmd)
	templateCmd.AddCommand(templateAddCmd)
	templateCmd.AddCommand(templateUpdateCmd)
	templateCmd.AddCommand(templateRemoveCmd)
}

func newTemplateManager() (*registry.Registry, *registry.Manager, *slog.Logger, error) {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	reg := registry.New(afero.NewOsFs(), cfg.Templates.Dir)
	return reg, registry.NewManager(reg, registry.NewHTTPFetcher(), logger), logger, nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	_, mgr, _, err := newTemplateManager()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	theme := render.NewTheme(noColor)

	infos, err := mgr.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		_, _ = fmt.Fprintf(out, "%s Add one with %s.\n",
			theme.Warn.Render("No templates registered."), theme.Hint("aftr template add <url>"))
		return nil
	}

	_, _ = fmt.Fprintln(out, theme.TemplatesTable(infos))
	return nil
}

func runTemplateAdd(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	_, mgr, _, err := newTemplateManager()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	theme := render.NewTheme(noColor)

	_, _ = fmt.Fprintf(out, "%s %s\n", theme.Name.Render("Fetching template from:"), args[0])

	name, meta, err := mgr.Add(ctx, args[0], templateAddName, templateAddForce)
	if err != nil {
		if errors.Is(err, registry.ErrExists) {
			return fmt.Errorf("template '%s' already exists; pass --force to overwrite it: %w", name, err)
		}
		return err
	}

	_, _ = fmt.Fprintln(out, theme.Success("Template registered successfully!"))
	_, _ = fmt.Fprintf(out, "  Name:        %s\n", name)
	_, _ = fmt.Fprintf(out, "  Description: %s\n", meta.Description)
	_, _ = fmt.Fprintf(out, "  Version:     %s\n", meta.Version)
	return nil
}

func runTemplateUpdate(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	_, mgr, _, err := newTemplateManager()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	theme := render.NewTheme(noColor)

	meta, err := mgr.Update(ctx, args[0])
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, theme.Success("Template updated successfully!"))
	_, _ = fmt.Fprintf(out, "  Name:    %s\n", meta.Name)
	_, _ = fmt.Fprintf(out, "  Version: %s\n", meta.Version)
	return nil
}

func runTemplateRemove(cmd *cobra.Command, args []string) error {
	reg, _, logger, err := newTemplateManager()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	theme := render.NewTheme(noColor)
	name := args[0]

	if name == registry.BuiltinTemplate {
		return registry.ErrReserved
	}
	exists, err := reg.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("template '%s' not found: %w", name, registry.ErrNotRegistered)
	}

	if !templateRemoveYes {
		confirmed, err := confirm(cmd.InOrStdin(), out, fmt.Sprintf("Are you sure you want to remove template '%s'?", name))
		if err != nil {
			return err
		}
		if !confirmed {
			_, _ = fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := reg.Remove(name); err != nil {
		return err
	}
	logger.Info("template removed", "name", name)

	_, _ = fmt.Fprintln(out, theme.Success(fmt.Sprintf("Template '%s' removed successfully", name)))
	return nil
}
