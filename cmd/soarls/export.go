package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/store"
)

var (
	flagDB       string
	flagRun      string
	flagSeverity string
)

// defaultDB is relative to the agent directory.
var defaultDB = filepath.Join(".soarls", "analysis.db")

var exportCmd = &cobra.Command{
	Use:   "export [entry]",
	Short: "Write an agent's analysis to a SQLite database",
	Long:  "Analyses the active entry point, the named one, or the given file and writes the result as a run in the database. An earlier run of the same entry point is replaced.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagDB, "db", "", "database path (default: "+defaultDB+" in the agent directory)")
	exportCmd.Flags().BoolVar(&flagAll, "all", false, "export every enabled entry point")

	dbCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: "+defaultDB+" in the agent directory)")
	dbCmd.PersistentFlags().StringVar(&flagRun, "run", "", "entry point name of the run (default: the only run)")
	dbDiagnosticsCmd.Flags().StringVar(&flagSeverity, "severity", "hint", "least severe level to list: error|warning|info|hint")

	dbCmd.AddCommand(dbRunsCmd)
	dbCmd.AddCommand(dbProceduresCmd)
	dbCmd.AddCommand(dbProductionsCmd)
	dbCmd.AddCommand(dbDiagnosticsCmd)
	dbCmd.AddCommand(dbDuplicatesCmd)
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(root string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		if abs, err := filepath.Abs(flagDB); err == nil {
			return abs
		}
		return flagDB
	}
	return filepath.Join(root, defaultDB)
}

func runExport(cmd *cobra.Command, args []string) error {
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	projects, err := analyseTarget(cmd.Context(), target, flagAll)
	if err != nil {
		return outputError("export", err)
	}
	if len(projects) == 0 {
		return outputError("export", errors.New("no entry point to export"))
	}

	start, _, err := resolveTarget(target)
	if err != nil {
		return outputError("export", err)
	}
	dbPath := resolveDBPath(findManifestRoot(start))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return outputError("export", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err))
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return outputError("export", err)
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		return outputError("export", err)
	}

	runs := make([]CLIRun, 0, len(projects))
	for _, p := range projects {
		run, err := s.Export(cmd.Context(), p.Analysis, entryLabel(p.Entry.Name))
		if err != nil {
			return outputError("export", err)
		}
		runs = append(runs, toCLIRun(run))
	}
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	return outputResult(CLIResult{Command: "export", Results: runs})
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Read an exported analysis database",
}

// openStore opens the database from the --db flag path (or default).
func openStore() (*store.Store, error) {
	start, _, err := resolveTarget("")
	if err != nil {
		return nil, err
	}
	dbPath := resolveDBPath(findManifestRoot(start))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'soarls export' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// withRun opens the store and selects the --run run.
func withRun(name string, fn func(s *store.Store, run *store.Run) (any, error)) error {
	s, err := openStore()
	if err != nil {
		return outputError(name, err)
	}
	defer s.Close()
	run, err := s.Run(flagRun)
	if err != nil {
		return outputError(name, err)
	}
	res, err := fn(s, run)
	if err != nil {
		return outputError(name, err)
	}
	return outputResult(CLIResult{Command: name, Results: res})
}

var dbRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List exported runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return outputError("db runs", err)
		}
		defer s.Close()
		runs, err := s.Runs()
		if err != nil {
			return outputError("db runs", err)
		}
		out := make([]CLIRun, 0, len(runs))
		for _, r := range runs {
			out = append(out, toCLIRun(r))
		}
		return outputResult(CLIResult{Command: "db runs", Results: out})
	},
}

var dbProceduresCmd = &cobra.Command{
	Use:   "procedures",
	Short: "List the procedures of a run with their call counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRun("db procedures", func(s *store.Store, run *store.Run) (any, error) {
			procs, err := s.Procedures(run.ID)
			if err != nil {
				return nil, err
			}
			out := make([]CLIProcedure, 0, len(procs))
			for _, p := range procs {
				out = append(out, CLIProcedure{
					Name:      p.Name,
					Arguments: argumentLabels(p.Arguments),
					Calls:     p.Calls,
					Comment:   p.Comment,
					File:      displayPath(p.URI),
					Line:      p.Span.StartLine,
				})
			}
			return out, nil
		})
	},
}

// argumentLabels renders arguments the way a proc declares them.
func argumentLabels(args []store.Argument) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if !a.HasDefault {
			out = append(out, a.Name)
			continue
		}
		def := a.Default
		if def == "" || strings.ContainsAny(def, " \t\n") {
			def = "{" + def + "}"
		}
		out = append(out, "{"+a.Name+" "+def+"}")
	}
	return out
}

var dbProductionsCmd = &cobra.Command{
	Use:   "productions",
	Short: "List the productions of a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRun("db productions", func(s *store.Store, run *store.Run) (any, error) {
			prods, err := s.Productions(run.ID)
			if err != nil {
				return nil, err
			}
			out := make([]CLIProduction, 0, len(prods))
			for _, p := range prods {
				out = append(out, CLIProduction{
					Name:     p.Name,
					BodyHash: p.BodyHash,
					File:     displayPath(p.URI),
					Line:     p.Span.StartLine,
				})
			}
			return out, nil
		})
	},
}

var dbDiagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "List the diagnostics of a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		least, err := parseSeverity(flagSeverity)
		if err != nil {
			return outputError("db diagnostics", err)
		}
		return withRun("db diagnostics", func(s *store.Store, run *store.Run) (any, error) {
			diags, err := s.Diagnostics(run.ID, int(least))
			if err != nil {
				return nil, err
			}
			out := make([]CLIDiagnostic, 0, len(diags))
			for _, d := range diags {
				out = append(out, CLIDiagnostic{
					File:     displayPath(d.URI),
					Line:     d.Span.StartLine,
					Col:      d.Span.StartCol,
					Severity: document.Severity(d.Severity).String(),
					Code:     d.Code,
					Message:  d.Message,
				})
			}
			return out, nil
		})
	},
}

func parseSeverity(name string) (document.Severity, error) {
	for s := document.SeverityError; s <= document.SeverityHint; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("invalid severity %q: must be error, warning, info or hint", name)
}

var dbDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Group productions whose bodies differ only in layout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRun("db duplicates", func(s *store.Store, run *store.Run) (any, error) {
			groups, err := s.DuplicateBodies(run.ID)
			if err != nil {
				return nil, err
			}
			if groups == nil {
				groups = [][]string{}
			}
			return groups, nil
		})
	},
}
