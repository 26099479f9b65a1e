package soarls

import (
	"github.com/jward/soarls/internal/analysis"
	"github.com/jward/soarls/internal/document"
)

// Public aliases for the internal types that appear in the Workspace and
// QueryBuilder API.

type Position = document.Position
type Range = document.Range
type Location = document.Location
type Diagnostic = document.Diagnostic
type Severity = document.Severity
type Change = document.Change

type ProjectAnalysis = analysis.ProjectAnalysis
type FileAnalysis = analysis.FileAnalysis
type ProcedureDefinition = analysis.ProcedureDefinition
type VariableDefinition = analysis.VariableDefinition
type ProcedureCall = analysis.ProcedureCall
type VariableRetrieval = analysis.VariableRetrieval
type Production = analysis.Production
