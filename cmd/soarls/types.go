package main

import (
	"github.com/jward/soarls"
	"github.com/jward/soarls/internal/store"
)

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLILocation is a JSON-friendly location. Lines and columns are 0-based.
type CLILocation struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

func toCLILocation(loc soarls.Location) CLILocation {
	return CLILocation{
		File:      displayPath(loc.URI),
		StartLine: loc.Range.Start.Line,
		StartCol:  loc.Range.Start.Character,
		EndLine:   loc.Range.End.Line,
		EndCol:    loc.Range.End.Character,
	}
}

func toCLILocations(locs []soarls.Location) []CLILocation {
	out := make([]CLILocation, 0, len(locs))
	for _, loc := range locs {
		out = append(out, toCLILocation(loc))
	}
	return out
}

// CLIDiagnostic is one reported problem.
type CLIDiagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
	Severity string `json:"severity"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

func toCLIDiagnostic(uri string, d soarls.Diagnostic) CLIDiagnostic {
	return CLIDiagnostic{
		File:     displayPath(uri),
		Line:     d.Range.Start.Line,
		Col:      d.Range.Start.Character,
		Severity: d.Severity.String(),
		Code:     d.Code,
		Message:  d.Message,
	}
}

// CLICheck is the check result of one entry point.
type CLICheck struct {
	Entry       string          `json:"entry"`
	Files       int             `json:"files"`
	Errors      int             `json:"errors"`
	Warnings    int             `json:"warnings"`
	Diagnostics []CLIDiagnostic `json:"diagnostics"`
}

// CLIHover is the hover text at a position.
type CLIHover struct {
	Contents string      `json:"contents"`
	Location CLILocation `json:"location"`
}

// CLISymbol is a JSON-friendly document or workspace symbol.
type CLISymbol struct {
	Name      string      `json:"name"`
	Kind      string      `json:"kind"`
	Detail    string      `json:"detail,omitempty"`
	Container string      `json:"container,omitempty"`
	File      string      `json:"file,omitempty"`
	StartLine int         `json:"start_line"`
	StartCol  int         `json:"start_col"`
	EndLine   int         `json:"end_line"`
	EndCol    int         `json:"end_col"`
	Children  []CLISymbol `json:"children,omitempty"`
}

// symbolKindNames names the kinds the query layer emits.
var symbolKindNames = map[soarls.SymbolKind]string{
	soarls.SymbolFunction: "procedure",
	soarls.SymbolVariable: "variable",
	soarls.SymbolObject:   "production",
	soarls.SymbolEvent:    "command",
}

func symbolKindName(k soarls.SymbolKind) string {
	if name, ok := symbolKindNames[k]; ok {
		return name
	}
	return "unknown"
}

func toCLIDocumentSymbols(uri string, syms []soarls.DocumentSymbol) []CLISymbol {
	out := make([]CLISymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, CLISymbol{
			Name:      s.Name,
			Kind:      symbolKindName(s.Kind),
			Detail:    s.Detail,
			File:      displayPath(uri),
			StartLine: s.Range.Start.Line,
			StartCol:  s.Range.Start.Character,
			EndLine:   s.Range.End.Line,
			EndCol:    s.Range.End.Character,
			Children:  toCLIDocumentSymbols(uri, s.Children),
		})
	}
	return out
}

func toCLISymbolInformation(syms []soarls.SymbolInformation) []CLISymbol {
	out := make([]CLISymbol, 0, len(syms))
	for _, s := range syms {
		loc := toCLILocation(s.Location)
		out = append(out, CLISymbol{
			Name:      s.Name,
			Kind:      symbolKindName(s.Kind),
			Container: s.ContainerName,
			File:      loc.File,
			StartLine: loc.StartLine,
			StartCol:  loc.StartCol,
			EndLine:   loc.EndLine,
			EndCol:    loc.EndCol,
		})
	}
	return out
}

// CLIEdit is one text replacement of a rename.
type CLIEdit struct {
	CLILocation
	NewText string `json:"new_text"`
}

// CLIRename is the result of rename. Diff is set with --diff.
type CLIRename struct {
	Edits []CLIEdit     `json:"edits"`
	Diff  string        `json:"diff,omitempty"`
	Stats []CLIDiffStat `json:"stats,omitempty"`
}

// CLIDiffStat counts the changed lines of one file.
type CLIDiffStat struct {
	File  string `json:"file"`
	Hunks int    `json:"hunks"`
	Lines int    `json:"lines"`
}

// CLISummary counts what one entry point's analysis found.
type CLISummary struct {
	Entry       string `json:"entry"`
	Active      bool   `json:"active"`
	Files       int    `json:"files"`
	Procedures  int    `json:"procedures"`
	Variables   int    `json:"variables"`
	Productions int    `json:"productions"`
	Errors      int    `json:"errors"`
	Warnings    int    `json:"warnings"`
}

// CLIRun is an exported run.
type CLIRun struct {
	Name       string `json:"name"`
	UUID       string `json:"uuid"`
	EntryPoint string `json:"entry_point"`
	Started    string `json:"started"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

func toCLIRun(r *store.Run) CLIRun {
	return CLIRun{
		Name:       r.Name,
		UUID:       r.UUID,
		EntryPoint: displayPath(r.EntryPoint),
		Started:    r.Started.UTC().Format("2006-01-02T15:04:05Z"),
		ElapsedMS:  r.Elapsed.Milliseconds(),
	}
}

// CLIProcedure is a stored procedure.
type CLIProcedure struct {
	Name      string   `json:"name"`
	Arguments []string `json:"arguments"`
	Calls     int      `json:"calls"`
	Comment   string   `json:"comment,omitempty"`
	File      string   `json:"file"`
	Line      int      `json:"line"`
}

// CLIProduction is a stored production.
type CLIProduction struct {
	Name     string `json:"name"`
	BodyHash string `json:"body_hash"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}
