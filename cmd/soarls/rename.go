package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
	"github.com/spf13/cobra"

	"github.com/jward/soarls"
	"github.com/jward/soarls/internal/document"
)

var flagDiff bool

var renameCmd = &cobra.Command{
	Use:   "rename <file> <line> <col> <new-name>",
	Short: "Rename the procedure or variable at a position",
	Long:  "Prints the edits a rename makes across every entry point that includes the file. Nothing is written. Lines and columns are 0-based.",
	Args:  cobra.ExactArgs(4),
	RunE:  runRename,
}

func init() {
	renameCmd.Flags().BoolVar(&flagDiff, "diff", false, "print a unified diff instead of the edit list")
}

func runRename(cmd *cobra.Command, args []string) error {
	if args[3] == "" {
		return outputError("rename", fmt.Errorf("new name must not be empty"))
	}
	return positionQueryNamed(cmd, "rename", args, func(a *analysed, pos soarls.Position) (any, error) {
		edits := a.q.Rename(a.uri, pos, args[3])
		result := CLIRename{Edits: []CLIEdit{}}
		for _, uri := range sortedKeys(edits) {
			for _, e := range edits[uri] {
				result.Edits = append(result.Edits, CLIEdit{
					CLILocation: toCLILocation(soarls.Location{URI: uri, Range: e.Range}),
					NewText:     e.NewText,
				})
			}
		}
		if !flagDiff || len(edits) == 0 {
			return result, nil
		}
		fds, err := renameDiff(a.ws.Documents(), edits)
		if err != nil {
			return nil, err
		}
		out, err := diff.PrintMultiFileDiff(fds)
		if err != nil {
			return nil, fmt.Errorf("printing diff: %w", err)
		}
		result.Diff = string(out)
		for _, fd := range fds {
			st := CLIDiffStat{File: strings.TrimPrefix(fd.NewName, "b/"), Hunks: len(fd.Hunks)}
			for _, h := range fd.Hunks {
				st.Lines += int(h.OrigLines)
			}
			result.Stats = append(result.Stats, st)
		}
		return result, nil
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// renameDiff builds one file diff per renamed file. A rename never adds or
// removes lines, so every run of adjacent touched lines becomes one hunk
// without context.
func renameDiff(docs *document.Store, edits soarls.WorkspaceEdit) ([]*diff.FileDiff, error) {
	var fds []*diff.FileDiff
	for _, uri := range sortedKeys(edits) {
		doc, ok := docs.Get(uri)
		if !ok {
			return nil, fmt.Errorf("reading %s: %w", displayPath(uri), document.ErrNotFound)
		}
		es := edits[uri]
		changes := make([]document.Change, len(es))
		var lines []int
		for i, e := range es {
			r := e.Range
			changes[len(es)-1-i] = document.Change{Range: &r, Text: e.NewText}
			for l := r.Start.Line; l <= r.End.Line; l++ {
				lines = append(lines, l)
			}
		}
		after := doc.Apply(doc.Version(), changes...)
		slices.Sort(lines)
		lines = slices.Compact(lines)

		name := displayPath(uri)
		fd := &diff.FileDiff{OrigName: "a/" + name, NewName: "b/" + name}
		for start := 0; start < len(lines); {
			end := start + 1
			for end < len(lines) && lines[end] == lines[end-1]+1 {
				end++
			}
			var body strings.Builder
			for _, l := range lines[start:end] {
				body.WriteString("-" + doc.Line(l) + "\n")
			}
			for _, l := range lines[start:end] {
				body.WriteString("+" + after.Line(l) + "\n")
			}
			n := int32(end - start)
			fd.Hunks = append(fd.Hunks, &diff.Hunk{
				OrigStartLine: int32(lines[start]) + 1,
				OrigLines:     n,
				NewStartLine:  int32(lines[start]) + 1,
				NewLines:      n,
				Body:          []byte(body.String()),
			})
			start = end
		}
		fds = append(fds, fd)
	}
	return fds, nil
}
