package soarls

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jward/soarls/internal/analysis"
	"github.com/jward/soarls/internal/document"
	"github.com/jward/soarls/internal/manifest"
)

// benchFiles and benchProcs size the generated agent: benchFiles sourced
// files, each defining benchProcs procedures and as many productions.
const (
	benchFiles = 20
	benchProcs = 10
)

// writeBenchAgent writes a generated agent into a temp directory and returns
// the entry point path.
func writeBenchAgent(b *testing.B) string {
	b.Helper()
	dir := b.TempDir()
	var load strings.Builder
	load.WriteString("set PREFIX bench\n")
	for f := range benchFiles {
		name := fmt.Sprintf("rules%02d.soar", f)
		fmt.Fprintf(&load, "source %s\n", name)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(benchRules(f)), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	load.WriteString("echo $PREFIX\n")
	entry := filepath.Join(dir, "load.soar")
	if err := os.WriteFile(entry, []byte(load.String()), 0o644); err != nil {
		b.Fatal(err)
	}
	return entry
}

// benchRules is one generated file: procedures that call the previous one,
// a production per procedure and a top-level call of the last procedure.
func benchRules(f int) string {
	var sb strings.Builder
	for p := range benchProcs {
		fmt.Fprintf(&sb, "# Builds attribute %d of file %d.\n", p, f)
		fmt.Fprintf(&sb, "proc attr_%d_%d {name {value 1}} {\n", f, p)
		if p > 0 {
			fmt.Fprintf(&sb, "    set inner [attr_%d_%d $name]\n", f, p-1)
		}
		sb.WriteString("    return \"^$name $value\"\n}\n")
		fmt.Fprintf(&sb, "sp {rule-%d-%d\n", f, p)
		sb.WriteString("    (state <s> ^superstate nil)\n    -->\n")
		fmt.Fprintf(&sb, "    (<s> ^a%d 1)}\n", p)
	}
	fmt.Fprintf(&sb, "attr_%d_%d top\n", f, benchProcs-1)
	return sb.String()
}

func BenchmarkAnalyze_Agent(b *testing.B) {
	entry := writeBenchAgent(b)
	uri := document.FileURI(entry)
	ctx := context.Background()

	b.ResetTimer()
	for b.Loop() {
		p := analysis.Analyze(ctx, document.NewStore(), uri)
		if len(p.Files()) != benchFiles+1 {
			b.Fatalf("analysed %d files, want %d", len(p.Files()), benchFiles+1)
		}
	}
}

func BenchmarkDocumentApply_SingleCharacter(b *testing.B) {
	doc := document.New("file:///bench.soar", benchRules(0)+benchRules(1), 1)
	at := document.Position{Line: 2, Character: 4}
	change := document.Change{Range: &document.Range{Start: at, End: at}, Text: "x"}

	b.ResetTimer()
	for i := 0; b.Loop(); i++ {
		doc.Apply(int32(i+2), change)
	}
}

func BenchmarkReferences_Procedure(b *testing.B) {
	entry := writeBenchAgent(b)
	w, err := New(filepath.Dir(entry), WithManifest(manifest.Single(entry)))
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()
	if _, err := w.AnalyzeNow(context.Background()); err != nil {
		b.Fatal(err)
	}
	uri := document.FileURI(filepath.Join(filepath.Dir(entry), "rules00.soar"))
	// "proc attr_0_0" on line 1 of the first generated file.
	pos := Position{Line: 1, Character: 6}
	q := w.Query()

	b.ResetTimer()
	for b.Loop() {
		if len(q.References(uri, pos, true)) == 0 {
			b.Fatal("no references")
		}
	}
}
