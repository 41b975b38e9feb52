// Package render formats command output for the terminal.
package render

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aftr-cli/aftr/internal/refs"
	"github.com/aftr-cli/aftr/internal/registry"
)

const (
	// NeverSynced is shown for sources without recorded state.
	NeverSynced = "—"
	// TimeLayout formats last-synced timestamps.
	TimeLayout = "2006-01-02 15:04:05"

	maxURLWidth = 50
)

// Theme holds the styles used for output. The zero value renders plain text.
type Theme struct {
	Title  lipgloss.Style
	Name   lipgloss.Style
	Dim    lipgloss.Style
	OK     lipgloss.Style
	Warn   lipgloss.Style
	Err    lipgloss.Style
	Header lipgloss.Style
	Border lipgloss.Style
}

// NewTheme returns the default theme, or a plain one when noColor is set.
func NewTheme(noColor bool) Theme {
	if noColor {
		plain := lipgloss.NewStyle()
		return Theme{
			Title: plain, Name: plain, Dim: plain, OK: plain,
			Warn: plain, Err: plain, Header: plain, Border: plain,
		}
	}
	return Theme{
		Title:  lipgloss.NewStyle().Bold(true),
		Name:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Dim:    lipgloss.NewStyle().Faint(true),
		OK:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Err:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Header: lipgloss.NewStyle().Bold(true),
		Border: lipgloss.NewStyle().Faint(true),
	}
}

// Syncing is printed before a source is synced.
func (t Theme) Syncing(name string) string {
	return fmt.Sprintf("%s %s …", t.Name.Render("Syncing"), name)
}

// SyncResult renders the indented outcome line of one source.
func (t Theme) SyncResult(r refs.Result) string {
	short := r.ShortCommit()
	if short == "" {
		short = "?"
	}
	switch r.Status {
	case refs.StatusUpToDate:
		return fmt.Sprintf("  %s (%s)", t.Dim.Render("Already up to date"), short)
	case refs.StatusUpdated:
		return fmt.Sprintf("  %s → %s", t.OK.Render("Updated"), short)
	default:
		return fmt.Sprintf("  %s %s", t.Err.Render("Error:"), r.Message)
	}
}

// Error renders an error line.
func (t Theme) Error(msg string) string {
	return t.Err.Render("Error:") + " " + msg
}

// Warning renders a warning line.
func (t Theme) Warning(msg string) string {
	return t.Warn.Render("Warning:") + " " + msg
}

// Success renders a confirmation line.
func (t Theme) Success(msg string) string {
	return t.OK.Render(msg)
}

// Hint renders a suggested command.
func (t Theme) Hint(cmd string) string {
	return t.Name.Render(cmd)
}

// SourcesTable renders the registered sources with their last sync time.
func (t Theme) SourcesTable(sources []refs.Source, state *refs.State) string {
	rows := make([][]string, 0, len(sources))
	for _, src := range sources {
		src = src.WithDefaults()
		rows = append(rows, []string{
			src.Name,
			Truncate(src.URL, maxURLWidth),
			src.Path,
			src.Branch,
			src.LocalDir,
			lastSynced(state, src.Name),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(t.Border).
		Headers("Name", "URL", "Path", "Branch", "Local Dir", "Last Synced").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return t.Header.Padding(0, 1)
			case col == 0:
				return t.Name.Padding(0, 1)
			default:
				return lipgloss.NewStyle().Padding(0, 1)
			}
		})

	return t.Title.Render("Registered Reference Sources") + "\n" + tbl.String()
}

// TemplatesTable renders registered templates.
func (t Theme) TemplatesTable(infos []registry.Info) string {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		source := info.SourceURL
		if source == "" {
			source = "local"
		}
		desc, version := info.Meta.Description, info.Meta.Version
		if info.Err != nil {
			desc, version = "(unreadable)", "?"
		}
		rows = append(rows, []string{info.Name, desc, version, Truncate(source, maxURLWidth)})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(t.Border).
		Headers("Name", "Description", "Version", "Source").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return t.Header.Padding(0, 1)
			case col == 0:
				return t.Name.Padding(0, 1)
			default:
				return lipgloss.NewStyle().Padding(0, 1)
			}
		})

	return t.Title.Render("Available Templates") + "\n" + tbl.String()
}

func lastSynced(state *refs.State, name string) string {
	if state == nil {
		return NeverSynced
	}
	st, ok := state.Get(name)
	if !ok || st.SyncedAt.IsZero() {
		return NeverSynced
	}
	return st.SyncedAt.UTC().Format(TimeLayout)
}

// Truncate shortens s to at most n runes, ending with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
