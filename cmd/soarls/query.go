package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/soarls"
	"github.com/jward/soarls/internal/document"
)

var flagDeclaration bool

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query an analysed agent",
	Long:  "Analyse the agent a file belongs to and answer one editor query. All line and column numbers are 0-based.",
}

func init() {
	referencesCmd.Flags().BoolVar(&flagDeclaration, "declaration", false, "include the definition itself")

	queryCmd.AddCommand(definitionCmd)
	queryCmd.AddCommand(referencesCmd)
	queryCmd.AddCommand(hoverCmd)
	queryCmd.AddCommand(symbolsCmd)
	queryCmd.AddCommand(searchCmd)
	queryCmd.AddCommand(summaryCmd)
	queryCmd.AddCommand(sourcesCmd)
}

// --- Helpers ---

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// parsePosition reads <line> <col> from args.
func parsePosition(line, col string) (soarls.Position, error) {
	l, err := parseIntArg(line, "line")
	if err != nil {
		return soarls.Position{}, err
	}
	c, err := parseIntArg(col, "col")
	if err != nil {
		return soarls.Position{}, err
	}
	return soarls.Position{Line: l, Character: c}, nil
}

// analysed is a workspace whose entry points have all completed a run.
type analysed struct {
	ws  *soarls.Workspace
	q   *soarls.QueryBuilder
	uri string
}

// analyseFor opens and analyses the workspace target belongs to. A file
// target that is no entry point is queried through the entry points that
// source it.
func analyseFor(ctx context.Context, target string) (*analysed, error) {
	ws, file, err := openWorkspace(target, false)
	if err != nil {
		return nil, err
	}
	if _, err := ws.AnalyzeNow(ctx); err != nil {
		ws.Close()
		return nil, err
	}
	a := &analysed{ws: ws, q: ws.Query()}
	if file != "" {
		a.uri = document.FileURI(file)
	}
	return a, nil
}

func (a *analysed) Close() { a.ws.Close() }

// positionQuery runs fn for a <file> <line> <col> command.
func positionQuery(cmd *cobra.Command, args []string, fn func(a *analysed, pos soarls.Position) any) error {
	return positionQueryNamed(cmd, "query "+cmd.Name(), args, func(a *analysed, pos soarls.Position) (any, error) {
		return fn(a, pos), nil
	})
}

// positionQueryNamed is positionQuery for results that can fail.
func positionQueryNamed(cmd *cobra.Command, name string, args []string, fn func(a *analysed, pos soarls.Position) (any, error)) error {
	pos, err := parsePosition(args[1], args[2])
	if err != nil {
		return outputError(name, err)
	}
	a, err := analyseFor(cmd.Context(), args[0])
	if err != nil {
		return outputError(name, err)
	}
	defer a.Close()
	if a.uri == "" {
		return outputError(name, fmt.Errorf("file not found: %s", args[0]))
	}
	res, err := fn(a, pos)
	if err != nil {
		return outputError(name, err)
	}
	return outputResult(CLIResult{Command: name, Results: res})
}

// --- Commands ---

var definitionCmd = &cobra.Command{
	Use:   "definition <file> <line> <col>",
	Short: "Find the definition of the procedure or variable at a position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return positionQuery(cmd, args, func(a *analysed, pos soarls.Position) any {
			return toCLILocations(a.q.Definition(a.uri, pos))
		})
	},
}

var referencesCmd = &cobra.Command{
	Use:   "references <file> <line> <col>",
	Short: "Find the calls or reads of the procedure or variable at a position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return positionQuery(cmd, args, func(a *analysed, pos soarls.Position) any {
			return toCLILocations(a.q.References(a.uri, pos, flagDeclaration))
		})
	},
}

var hoverCmd = &cobra.Command{
	Use:   "hover <file> <line> <col>",
	Short: "Describe the procedure or variable at a position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return positionQuery(cmd, args, func(a *analysed, pos soarls.Position) any {
			h := a.q.Hover(a.uri, pos)
			if h == nil {
				return (*CLIHover)(nil)
			}
			return &CLIHover{
				Contents: h.Contents,
				Location: toCLILocation(soarls.Location{URI: a.uri, Range: h.Range}),
			}
		})
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <file>",
	Short: "List the symbols of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := analyseFor(cmd.Context(), args[0])
		if err != nil {
			return outputError("query symbols", err)
		}
		defer a.Close()
		if a.uri == "" {
			return outputError("query symbols", fmt.Errorf("file not found: %s", args[0]))
		}
		syms := toCLIDocumentSymbols(a.uri, a.q.DocumentSymbols(a.uri))
		return outputResult(CLIResult{Command: "query symbols", Results: syms})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search procedures, variables and productions by name (* is a wildcard)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := analyseFor(cmd.Context(), "")
		if err != nil {
			return outputError("query search", err)
		}
		defer a.Close()
		syms := toCLISymbolInformation(a.q.SearchSymbols(args[0]))
		return outputResult(CLIResult{Command: "query search", Results: syms})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count what each entry point's analysis found",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := analyseFor(cmd.Context(), "")
		if err != nil {
			return outputError("query summary", err)
		}
		defer a.Close()
		var out []CLISummary
		for _, s := range a.q.Summaries() {
			out = append(out, CLISummary{
				Entry:       entryLabel(s.Entry.Name),
				Active:      s.Entry.Active,
				Files:       s.Files,
				Procedures:  s.Procedures,
				Variables:   s.Variables,
				Productions: s.Productions,
				Errors:      s.Errors,
				Warnings:    s.Warnings,
			})
		}
		return outputResult(CLIResult{Command: "query summary", Results: out})
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources [entry]",
	Short: "Print the tree of sourced files of an entry point",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		a, err := analyseFor(cmd.Context(), name)
		if err != nil {
			return outputError("query sources", err)
		}
		defer a.Close()
		ep, ok := a.ws.Active()
		if !ok {
			return outputError("query sources", fmt.Errorf("no entry point"))
		}
		return outputResult(CLIResult{Command: "query sources", Results: a.q.SourceTree(ep.Name)})
	},
}
