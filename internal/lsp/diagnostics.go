package lsp

import (
	"slices"
	"sync"

	"github.com/jward/soarls"
	"github.com/jward/soarls/internal/analysis"
)

// publisher merges the diagnostics of every entry point per file. A file
// shared by two entry points shows the union; a file that drops out of an
// entry point's file set loses that entry point's diagnostics.
type publisher struct {
	send func(PublishDiagnosticsParams)

	mu      sync.Mutex
	byEntry map[string]map[string][]soarls.Diagnostic
}

func newPublisher(send func(PublishDiagnosticsParams)) *publisher {
	return &publisher{send: send, byEntry: make(map[string]map[string][]soarls.Diagnostic)}
}

// analysed is a soarls.Listener.
func (p *publisher) analysed(ep soarls.EntryPoint, a *analysis.ProjectAnalysis) {
	p.record(ep.URI, a.Diagnostics())
}

// record replaces the diagnostics of one entry point and republishes every
// file it now or previously covered.
func (p *publisher) record(entry string, current map[string][]soarls.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous := p.byEntry[entry]
	p.byEntry[entry] = current

	affected := make([]string, 0, len(current)+len(previous))
	for uri := range current {
		affected = append(affected, uri)
	}
	for uri := range previous {
		affected = append(affected, uri)
	}
	slices.Sort(affected)
	for _, uri := range slices.Compact(affected) {
		p.send(PublishDiagnosticsParams{URI: uri, Diagnostics: p.mergedLocked(uri)})
	}
}

func (p *publisher) mergedLocked(uri string) []soarls.Diagnostic {
	keys := make([]string, 0, len(p.byEntry))
	for k := range p.byEntry {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := []soarls.Diagnostic{}
	for _, k := range keys {
		for _, d := range p.byEntry[k][uri] {
			if !slices.Contains(out, d) {
				out = append(out, d)
			}
		}
	}
	return out
}

func (s *Server) publishDiagnostics(p PublishDiagnosticsParams) {
	s.notify("textDocument/publishDiagnostics", p)
}
