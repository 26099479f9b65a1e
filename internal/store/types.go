package store

import "time"

// Span is a stored range, zero-based like protocol positions.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Run is one exported analysis.
type Run struct {
	ID         int64
	UUID       string
	EntryPoint string
	Name       string
	Started    time.Time
	Elapsed    time.Duration
}

// File is a file of a run, in evaluation order.
type File struct {
	ID        int64
	RunID     int64
	URI       string
	Hash      string
	LineCount int
	Ordinal   int
}

// Procedure is a stored procedure definition.
type Procedure struct {
	ID        int64
	FileID    int64
	URI       string
	Name      string
	Comment   string
	Span      Span
	Arguments []Argument
	// Calls counts the resolved call sites.
	Calls int
}

// Argument is one formal parameter of a procedure.
type Argument struct {
	Ordinal    int
	Name       string
	HasDefault bool
	Default    string
}

// Production is a stored Soar rule.
type Production struct {
	ID       int64
	FileID   int64
	URI      string
	Name     string
	Body     string
	BodyHash string
	Span     Span
}

// Diagnostic is a stored diagnostic.
type Diagnostic struct {
	ID       int64
	FileID   int64
	URI      string
	Severity int
	Code     string
	Message  string
	Span     Span
}
