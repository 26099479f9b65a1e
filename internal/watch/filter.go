// Package watch notices changes to agent files that are not open in the
// editor, so that cached copies can be dropped and affected entry points
// re-analysed.
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Extensions are the file types agents are written in.
var Extensions = []string{".soar", ".tcl"}

var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	".idea":        {},
	".vscode":      {},
}

// Filter decides which paths under a root are relevant.
type Filter struct {
	root string
	gi   *ignore.GitIgnore
}

// NewFilter reads root/.gitignore when it exists.
func NewFilter(root string) *Filter {
	f := &Filter{root: root}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		f.gi = gi
	}
	return f
}

// SkipDir reports whether a directory should not be descended into.
func (f *Filter) SkipDir(path string) bool {
	if path == f.root {
		return false
	}
	if _, skip := skipDirs[filepath.Base(path)]; skip {
		return true
	}
	return f.ignored(path)
}

// Match reports whether path is an agent file that is not ignored.
func (f *Filter) Match(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	known := false
	for _, e := range Extensions {
		if ext == e {
			known = true
			break
		}
	}
	return known && !f.ignored(path)
}

func (f *Filter) ignored(path string) bool {
	if f.gi == nil {
		return false
	}
	rel, err := filepath.Rel(f.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return f.gi.MatchesPath(filepath.ToSlash(rel))
}

// Discover returns every agent file under root, sorted.
func Discover(root string) ([]string, error) {
	f := NewFilter(root)
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if f.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if f.Match(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
