package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jward/soarls"
	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/manifest"
	"github.com/jward/soarls/internal/watch"
)

var flagAll bool

var checkCmd = &cobra.Command{
	Use:   "check [entry]",
	Short: "Analyse an agent and print its diagnostics",
	Long: "Analyses the active entry point, the named one, or the given file, and prints every diagnostic. " +
		"Without a manifest every agent file that no other file sources is checked. " +
		"Exits with status 1 when any error is reported.",
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&flagAll, "all", false, "check every enabled entry point")
}

func runCheck(cmd *cobra.Command, args []string) error {
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	projects, err := analyseTarget(cmd.Context(), target, flagAll)
	if err != nil {
		return outputError("check", err)
	}

	result := checkResult(projects)
	if err := outputResult(CLIResult{Command: "check", Results: result}); err != nil {
		return err
	}
	for _, r := range result {
		if r.Errors > 0 {
			return exitError(1)
		}
	}
	return nil
}

// analyseTarget runs the analyses a check or export reports on.
func analyseTarget(ctx context.Context, target string, all bool) ([]soarls.Project, error) {
	ws, file, err := openWorkspace(target, true)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	if len(ws.EntryPoints()) == 0 {
		return analyseDiscovered(ctx, ws.Root())
	}
	projects, err := ws.AnalyzeNow(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case all:
	case file != "":
		uri := document.FileURI(file)
		projects = slices.DeleteFunc(projects, func(p soarls.Project) bool { return p.Entry.URI != uri })
	case len(projects) > 1:
		projects = projects[:1]
	}
	return projects, nil
}

// analyseDiscovered analyses every agent file under root as its own entry
// point and keeps the ones no other file sources.
func analyseDiscovered(ctx context.Context, root string) ([]soarls.Project, error) {
	paths, err := watch.Discover(root)
	if err != nil {
		return nil, fmt.Errorf("discovering agent files: %w", err)
	}
	base, err := workspaceOptions()
	if err != nil {
		return nil, err
	}
	var all []soarls.Project
	for _, path := range paths {
		ws, err := soarls.New(root, append(slices.Clone(base), soarls.WithManifest(manifest.Single(path)))...)
		if err != nil {
			return nil, err
		}
		projects, err := ws.AnalyzeNow(ctx)
		ws.Close()
		if err != nil {
			return nil, err
		}
		all = append(all, projects...)
	}

	sourced := make(map[string]bool)
	for _, p := range all {
		for _, uri := range p.Analysis.SourcedURIs() {
			if uri != p.Entry.URI {
				sourced[uri] = true
			}
		}
	}
	var out []soarls.Project
	for _, p := range all {
		if !sourced[p.Entry.URI] {
			out = append(out, p)
		}
	}
	logger.Debug("discovered agents", slog.Int("files", len(paths)), slog.Int("roots", len(out)))
	return out, nil
}

func checkResult(projects []soarls.Project) []CLICheck {
	out := make([]CLICheck, 0, len(projects))
	for _, p := range projects {
		c := CLICheck{Entry: entryLabel(p.Entry.Name), Files: len(p.Analysis.Files()), Diagnostics: []CLIDiagnostic{}}
		diags := p.Analysis.Diagnostics()
		for _, uri := range p.Analysis.SourcedURIs() {
			for _, d := range diags[uri] {
				c.Diagnostics = append(c.Diagnostics, toCLIDiagnostic(uri, d))
				switch d.Severity {
				case document.SeverityError:
					c.Errors++
				case document.SeverityWarning:
					c.Warnings++
				}
			}
		}
		out = append(out, c)
	}
	return out
}

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// styled reports whether w is a terminal that should get colours.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func severityLabel(sev string, color bool) string {
	if !color {
		return sev
	}
	switch sev {
	case document.SeverityError.String():
		return errorStyle.Render(sev)
	case document.SeverityWarning.String():
		return warningStyle.Render(sev)
	}
	return infoStyle.Render(sev)
}

// formatCheckText prints diagnostics compiler style, then one summary line
// per entry point.
func formatCheckText(w io.Writer, checks []CLICheck) {
	color := styled(w)
	for _, c := range checks {
		for _, d := range c.Diagnostics {
			code := ""
			if d.Code != "" {
				code = " [" + d.Code + "]"
				if color {
					code = dimStyle.Render(code)
				}
			}
			fmt.Fprintf(w, "%s:%d:%d: %s: %s%s\n",
				d.File, d.Line+1, d.Col+1, severityLabel(d.Severity, color), d.Message, code)
		}
		fmt.Fprintf(w, "%s: %s, %s, %s\n", c.Entry,
			plural(c.Files, "file"), plural(c.Errors, "error"), plural(c.Warnings, "warning"))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
