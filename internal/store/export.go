package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jward/soarls/internal/analysis"
	"github.com/jward/soarls/internal/document"
)

// Export writes p as the run of its entry point within a single
// transaction, replacing any earlier run of the same entry point. Names
// resolve across files, so every file's definitions are inserted before any
// call or retrieval.
//
// Insert order follows the foreign keys:
//  1. Run
//  2. Files
//  3. Procedures and their arguments, variables
//  4. Calls, retrievals, productions, sourcing edges, diagnostics
func (s *Store) Export(ctx context.Context, p *analysis.ProjectAnalysis, name string) (*Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: export: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE entry_point = ?", p.EntryPoint()); err != nil {
		return nil, fmt.Errorf("store: export: replace run: %w", err)
	}

	run := &Run{
		UUID:       p.RunID().String(),
		EntryPoint: p.EntryPoint(),
		Name:       name,
		Started:    p.Started(),
		Elapsed:    p.Elapsed(),
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO runs (uuid, entry_point, name, started, elapsed_ms) VALUES (?, ?, ?, ?, ?)",
		run.UUID, run.EntryPoint, run.Name, run.Started, run.Elapsed.Milliseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: export: run: %w", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("store: export: run id: %w", err)
	}

	e := exporter{
		ctx:    ctx,
		tx:     tx,
		files:  make(map[string]int64),
		procs:  make(map[*analysis.ProcedureDefinition]int64),
		vars:   make(map[*analysis.VariableDefinition]int64),
		result: p,
	}
	var uris []string
	for _, uri := range p.SourcedURIs() {
		if _, ok := p.File(uri); ok {
			uris = append(uris, uri)
		}
	}
	for i, uri := range uris {
		fa, _ := p.File(uri)
		if err := e.file(run.ID, i, fa); err != nil {
			return nil, fmt.Errorf("store: export: %s: %w", uri, err)
		}
	}
	for _, uri := range uris {
		fa, _ := p.File(uri)
		if err := e.definitions(fa); err != nil {
			return nil, fmt.Errorf("store: export: %s: %w", uri, err)
		}
	}
	for _, uri := range uris {
		fa, _ := p.File(uri)
		if err := e.uses(fa); err != nil {
			return nil, fmt.Errorf("store: export: %s: %w", uri, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: export: commit: %w", err)
	}
	return run, nil
}

type exporter struct {
	ctx    context.Context
	tx     *sql.Tx
	files  map[string]int64
	procs  map[*analysis.ProcedureDefinition]int64
	vars   map[*analysis.VariableDefinition]int64
	result *analysis.ProjectAnalysis
}

func (e *exporter) insert(query string, args ...any) (int64, error) {
	res, err := e.tx.ExecContext(e.ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func spanArgs(r document.Range) []any {
	return []any{r.Start.Line, r.Start.Character, r.End.Line, r.End.Character}
}

func (e *exporter) file(runID int64, ordinal int, fa *analysis.FileAnalysis) error {
	text := fa.Document().Text()
	id, err := e.insert(
		"INSERT INTO files (run_id, uri, hash, line_count, ordinal) VALUES (?, ?, ?, ?, ?)",
		runID, fa.URI(), ContentHash(text), strings.Count(text, "\n")+1, ordinal,
	)
	if err != nil {
		return fmt.Errorf("file: %w", err)
	}
	e.files[fa.URI()] = id
	return nil
}

func commentText(c *analysis.Comment) any {
	if c == nil {
		return nil
	}
	return c.Text
}

func (e *exporter) definitions(fa *analysis.FileAnalysis) error {
	fileID := e.files[fa.URI()]
	for _, d := range fa.ProcedureDefinitions() {
		args := append([]any{fileID, d.Name, commentText(d.Comment)}, spanArgs(d.Location.Range)...)
		id, err := e.insert(`INSERT INTO procedures (file_id, name, comment, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("procedure %q: %w", d.Name, err)
		}
		e.procs[d] = id
		for i, a := range d.Arguments {
			if _, err := e.insert(
				"INSERT INTO arguments (procedure_id, ordinal, name, has_default, default_value) VALUES (?, ?, ?, ?, ?)",
				id, i, a.Name, a.HasDefault, a.Default,
			); err != nil {
				return fmt.Errorf("procedure %q: argument %q: %w", d.Name, a.Name, err)
			}
		}
	}
	for _, d := range fa.VariableDefinitions() {
		args := append([]any{fileID, d.Name, d.Value, commentText(d.Comment)}, spanArgs(d.Location.Range)...)
		id, err := e.insert(`INSERT INTO variables (file_id, name, value, comment, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("variable %q: %w", d.Name, err)
		}
		e.vars[d] = id
	}
	return nil
}

func (e *exporter) uses(fa *analysis.FileAnalysis) error {
	fileID := e.files[fa.URI()]
	tree := fa.Document().Tree()

	for _, c := range fa.ProcedureCalls() {
		var procID any
		if id, ok := e.procs[c.Definition]; ok {
			procID = id
		}
		args := append([]any{fileID, procID, tree.Source(c.Node)}, spanArgs(c.Location.Range)...)
		if _, err := e.insert(`INSERT INTO calls (file_id, procedure_id, name, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("call: %w", err)
		}
	}
	for _, r := range fa.VariableRetrievals() {
		var varID any
		if id, ok := e.vars[r.Definition]; ok {
			varID = id
		}
		args := append([]any{fileID, varID, tree.Source(r.Node)}, spanArgs(r.Location.Range)...)
		if _, err := e.insert(`INSERT INTO retrievals (file_id, variable_id, source, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("retrieval: %w", err)
		}
	}
	for _, p := range fa.Productions() {
		args := append([]any{fileID, p.Name, p.Body, BodyHash(p.Body)}, spanArgs(p.Location.Range)...)
		if _, err := e.insert(`INSERT INTO productions (file_id, name, body, body_hash, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("production %q: %w", p.Name, err)
		}
	}
	for _, to := range fa.FilesSourced() {
		_, found := e.result.File(to)
		if _, err := e.insert("INSERT INTO sourcing (file_id, target_uri, found) VALUES (?, ?, ?)", fileID, to, found); err != nil {
			return fmt.Errorf("sourcing %s: %w", to, err)
		}
	}
	for _, d := range fa.Diagnostics() {
		args := append([]any{fileID, int(d.Severity), d.Code, d.Message}, spanArgs(d.Range)...)
		if _, err := e.insert(`INSERT INTO diagnostics (file_id, severity, code, message, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("diagnostic: %w", err)
		}
	}
	return nil
}
