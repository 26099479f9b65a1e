package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoRun is returned when a database holds no run for the requested
// entry point.
var ErrNoRun = errors.New("store: no such run")

const runCols = "id, uuid, entry_point, name, started, elapsed_ms"

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	var ms int64
	if err := scanner.Scan(&r.ID, &r.UUID, &r.EntryPoint, &r.Name, &r.Started, &ms); err != nil {
		return nil, err
	}
	r.Elapsed = time.Duration(ms) * time.Millisecond
	return r, nil
}

// Runs lists every exported run by name.
func (s *Store) Runs() ([]*Run, error) {
	rows, err := s.db.Query("SELECT " + runCols + " FROM runs ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("store: runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns the run with the given entry-point name, or the only run
// when name is empty.
func (s *Store) Run(name string) (*Run, error) {
	if name == "" {
		runs, err := s.Runs()
		if err != nil {
			return nil, err
		}
		switch len(runs) {
		case 0:
			return nil, ErrNoRun
		case 1:
			return runs[0], nil
		}
		return nil, fmt.Errorf("store: %d runs, name one", len(runs))
	}
	r, err := scanRun(s.db.QueryRow("SELECT "+runCols+" FROM runs WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNoRun, name)
	}
	if err != nil {
		return nil, fmt.Errorf("store: run: %w", err)
	}
	return r, nil
}

// Files lists the files of a run in evaluation order.
func (s *Store) Files(runID int64) ([]*File, error) {
	rows, err := s.db.Query(
		"SELECT id, run_id, uri, hash, line_count, ordinal FROM files WHERE run_id = ? ORDER BY ordinal", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.RunID, &f.URI, &f.Hash, &f.LineCount, &f.Ordinal); err != nil {
			return nil, fmt.Errorf("store: scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Procedures lists the procedures of a run by name with their arguments
// and resolved call counts.
func (s *Store) Procedures(runID int64) ([]*Procedure, error) {
	rows, err := s.db.Query(`
		SELECT p.id, p.file_id, f.uri, p.name, COALESCE(p.comment, ''),
			p.start_line, p.start_col, p.end_line, p.end_col,
			(SELECT COUNT(*) FROM calls c WHERE c.procedure_id = p.id)
		FROM procedures p JOIN files f ON f.id = p.file_id
		WHERE f.run_id = ?
		ORDER BY p.name, f.ordinal, p.start_line`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: procedures: %w", err)
	}
	var procs []*Procedure
	byID := make(map[int64]*Procedure)
	for rows.Next() {
		p := &Procedure{}
		if err := rows.Scan(&p.ID, &p.FileID, &p.URI, &p.Name, &p.Comment,
			&p.Span.StartLine, &p.Span.StartCol, &p.Span.EndLine, &p.Span.EndCol, &p.Calls); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan procedure: %w", err)
		}
		procs = append(procs, p)
		byID[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: procedures: %w", err)
	}

	rows, err = s.db.Query(`
		SELECT a.procedure_id, a.ordinal, a.name, a.has_default, COALESCE(a.default_value, '')
		FROM arguments a JOIN procedures p ON p.id = a.procedure_id JOIN files f ON f.id = p.file_id
		WHERE f.run_id = ?
		ORDER BY a.procedure_id, a.ordinal`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: arguments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var procID int64
		var a Argument
		if err := rows.Scan(&procID, &a.Ordinal, &a.Name, &a.HasDefault, &a.Default); err != nil {
			return nil, fmt.Errorf("store: scan argument: %w", err)
		}
		if p := byID[procID]; p != nil {
			p.Arguments = append(p.Arguments, a)
		}
	}
	return procs, rows.Err()
}

// Productions lists the productions of a run by name.
func (s *Store) Productions(runID int64) ([]*Production, error) {
	rows, err := s.db.Query(`
		SELECT p.id, p.file_id, f.uri, p.name, p.body, p.body_hash,
			p.start_line, p.start_col, p.end_line, p.end_col
		FROM productions p JOIN files f ON f.id = p.file_id
		WHERE f.run_id = ?
		ORDER BY p.name, f.ordinal, p.start_line`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: productions: %w", err)
	}
	defer rows.Close()
	var prods []*Production
	for rows.Next() {
		p := &Production{}
		if err := rows.Scan(&p.ID, &p.FileID, &p.URI, &p.Name, &p.Body, &p.BodyHash,
			&p.Span.StartLine, &p.Span.StartCol, &p.Span.EndLine, &p.Span.EndCol); err != nil {
			return nil, fmt.Errorf("store: scan production: %w", err)
		}
		prods = append(prods, p)
	}
	return prods, rows.Err()
}

// Diagnostics lists the diagnostics of a run at least as severe as
// maxSeverity (1 is error, 4 is hint), in file order.
func (s *Store) Diagnostics(runID int64, maxSeverity int) ([]*Diagnostic, error) {
	rows, err := s.db.Query(`
		SELECT d.id, d.file_id, f.uri, d.severity, COALESCE(d.code, ''), d.message,
			d.start_line, d.start_col, d.end_line, d.end_col
		FROM diagnostics d JOIN files f ON f.id = d.file_id
		WHERE f.run_id = ? AND d.severity <= ?
		ORDER BY f.ordinal, d.start_line, d.start_col`, runID, maxSeverity)
	if err != nil {
		return nil, fmt.Errorf("store: diagnostics: %w", err)
	}
	defer rows.Close()
	var diags []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		if err := rows.Scan(&d.ID, &d.FileID, &d.URI, &d.Severity, &d.Code, &d.Message,
			&d.Span.StartLine, &d.Span.StartCol, &d.Span.EndLine, &d.Span.EndCol); err != nil {
			return nil, fmt.Errorf("store: scan diagnostic: %w", err)
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// DuplicateBodies groups the productions of a run whose bodies are equal
// up to whitespace. Each group lists production names.
func (s *Store) DuplicateBodies(runID int64) ([][]string, error) {
	prods, err := s.Productions(runID)
	if err != nil {
		return nil, err
	}
	byHash := make(map[string][]string)
	var order []string
	for _, p := range prods {
		if _, seen := byHash[p.BodyHash]; !seen {
			order = append(order, p.BodyHash)
		}
		byHash[p.BodyHash] = append(byHash[p.BodyHash], p.Name)
	}
	var out [][]string
	for _, h := range order {
		if len(byHash[h]) > 1 {
			out = append(out, byHash[h])
		}
	}
	return out, nil
}
