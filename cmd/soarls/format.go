package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// formatLocationsText formats CLILocation results as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.StartLine, loc.StartCol)
	}
}

// formatSymbolsText formats CLISymbol results as aligned columns, children
// indented under their parent.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tCONTAINER\tFILE\tLINE")
	var walk func(syms []CLISymbol, depth int)
	walk = func(syms []CLISymbol, depth int) {
		for _, s := range syms {
			fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%d\n",
				strings.Repeat("  ", depth), s.Name, s.Kind, s.Container, s.File, s.StartLine)
			walk(s.Children, depth+1)
		}
	}
	walk(syms, 0)
	tw.Flush()
}

func formatHoverText(w io.Writer, h *CLIHover) {
	if h == nil {
		return
	}
	fmt.Fprintln(w, h.Contents)
}

// formatRenameText prints the diff when there is one, otherwise one line per
// edit.
func formatRenameText(w io.Writer, r CLIRename) {
	if r.Diff != "" {
		fmt.Fprint(w, r.Diff)
		for _, s := range r.Stats {
			fmt.Fprintf(w, "%s: %s, %s\n", s.File, plural(s.Hunks, "hunk"), plural(s.Lines, "line"))
		}
		return
	}
	for _, e := range r.Edits {
		fmt.Fprintf(w, "%s:%d:%d-%d:%d\t%s\n", e.File, e.StartLine, e.StartCol, e.EndLine, e.EndCol, e.NewText)
	}
}

func formatSummariesText(w io.Writer, sums []CLISummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tFILES\tPROCEDURES\tVARIABLES\tPRODUCTIONS\tERRORS\tWARNINGS")
	for _, s := range sums {
		name := s.Entry
		if s.Active {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			name, s.Files, s.Procedures, s.Variables, s.Productions, s.Errors, s.Warnings)
	}
	tw.Flush()
}

func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENTRY POINT\tSTARTED\tELAPSED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\n", r.Name, r.EntryPoint, r.Started, r.ElapsedMS)
	}
	tw.Flush()
}

func formatProceduresText(w io.Writer, procs []CLIProcedure) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tARGUMENTS\tCALLS\tFILE\tLINE")
	for _, p := range procs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", p.Name, strings.Join(p.Arguments, " "), p.Calls, p.File, p.Line)
	}
	tw.Flush()
}

func formatProductionsText(w io.Writer, prods []CLIProduction) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBODY\tFILE\tLINE")
	for _, p := range prods {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.Name, p.BodyHash[:12], p.File, p.Line)
	}
	tw.Flush()
}

func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	color := styled(w)
	for _, d := range diags {
		fmt.Fprintf(w, "%s:%d:%d: %s: %s\n", d.File, d.Line+1, d.Col+1, severityLabel(d.Severity, color), d.Message)
	}
}

func formatGroupsText(w io.Writer, groups [][]string) {
	for _, g := range groups {
		fmt.Fprintln(w, strings.Join(g, " "))
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case []CLISymbol:
		formatSymbolsText(w, v)
	case *CLIHover:
		formatHoverText(w, v)
	case []CLICheck:
		formatCheckText(w, v)
	case CLIRename:
		formatRenameText(w, v)
	case []CLISummary:
		formatSummariesText(w, v)
	case []CLIRun:
		formatRunsText(w, v)
	case []CLIProcedure:
		formatProceduresText(w, v)
	case []CLIProduction:
		formatProductionsText(w, v)
	case []CLIDiagnostic:
		formatDiagnosticsText(w, v)
	case [][]string:
		formatGroupsText(w, v)
	case string:
		fmt.Fprint(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
