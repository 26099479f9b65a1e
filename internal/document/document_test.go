package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineIndex_RoundTrip(t *testing.T) {
	t.Parallel()
	texts := []string{
		"",
		"single line",
		"a\nb\n\nccc\n",
		"proc foo {a b} {return $a}\nfoo 1 2\n",
		"héllo\nwörld 😀 x\n",
	}
	for _, text := range texts {
		x := NewLineIndex(text)
		for o := 0; o <= len(text); o++ {
			if o < len(text) && !utf8.RuneStart(text[o]) {
				continue
			}
			assert.Equal(t, o, x.Offset(x.Position(o)), "text %q offset %d", text, o)
		}
	}
}

func TestLineIndex_Positions(t *testing.T) {
	t.Parallel()
	x := NewLineIndex("ab\ncd\n")
	assert.Equal(t, Position{Line: 0, Character: 0}, x.Position(0))
	assert.Equal(t, Position{Line: 0, Character: 2}, x.Position(2))
	assert.Equal(t, Position{Line: 1, Character: 0}, x.Position(3))
	assert.Equal(t, Position{Line: 2, Character: 0}, x.Position(6))
	assert.Equal(t, 3, x.LineCount())
	assert.Equal(t, "cd", x.Line(1))
	assert.Equal(t, "", x.Line(2))
}

func TestLineIndex_Clamps(t *testing.T) {
	t.Parallel()
	x := NewLineIndex("ab\ncd")
	assert.Equal(t, 5, x.Offset(Position{Line: 9, Character: 0}))
	assert.Equal(t, 2, x.Offset(Position{Line: 0, Character: 40}))
	assert.Equal(t, 0, x.Offset(Position{Line: -1, Character: 3}))
	assert.Equal(t, Position{Line: 1, Character: 2}, x.Position(99))
	assert.Equal(t, Position{Line: 0, Character: 0}, x.Position(-4))
}

func TestLineIndex_UTF16Columns(t *testing.T) {
	t.Parallel()
	text := "😀x"
	x := NewLineIndex(text)
	assert.Equal(t, Position{Line: 0, Character: 2}, x.Position(4))
	assert.Equal(t, 4, x.Offset(Position{Line: 0, Character: 2}))
	// Between the halves of the surrogate pair.
	assert.Equal(t, 0, x.Offset(Position{Line: 0, Character: 1}))
}

func TestNew_NormalizesLineEndings(t *testing.T) {
	t.Parallel()
	d := New("file:///a.soar", "set a 1\r\nset b 2\rset c 3\n", 1)
	assert.Equal(t, "set a 1\nset b 2\nset c 3\n", d.Text())
	assert.Len(t, d.Tree().Children(d.Tree().Root()), 3)
	assert.Empty(t, d.Diagnostics())
}

func TestNew_ParseDiagnostics(t *testing.T) {
	t.Parallel()
	d := New("file:///a.soar", "set x 99\nsp {test\nset p hello\n", 1)
	require.Len(t, d.Diagnostics(), 1)
	diag := d.Diagnostics()[0]
	assert.Equal(t, SeverityError, diag.Severity)
	assert.Equal(t, CodeParseError, diag.Code)
	assert.Equal(t, "Missing closing brace", diag.Message)
	assert.Equal(t, Range{Start: Position{1, 3}, End: Position{2, 0}}, diag.Range)
}

func TestDocument_Apply(t *testing.T) {
	t.Parallel()
	d := New("file:///a.soar", "set a 1\nset b 2\n", 1)

	edited := d.Apply(2, Change{
		Range: &Range{Start: Position{1, 4}, End: Position{1, 5}},
		Text:  "bee",
	})
	assert.Equal(t, "set a 1\nset bee 2\n", edited.Text())
	assert.Equal(t, int32(2), edited.Version())
	assert.Equal(t, "set a 1\nset b 2\n", d.Text(), "original snapshot must not change")

	replaced := edited.Apply(3, Change{Text: "puts hi\r\n"})
	assert.Equal(t, "puts hi\n", replaced.Text())

	batched := d.Apply(4,
		Change{Range: &Range{Start: Position{0, 0}, End: Position{0, 0}}, Text: "# c\n"},
		Change{Range: &Range{Start: Position{1, 4}, End: Position{1, 5}}, Text: "x"},
	)
	assert.Equal(t, "# c\nset x 1\nset b 2\n", batched.Text())
}

func TestURI_RoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "with space", "load.soar")
	uri := FileURI(path)
	assert.Contains(t, uri, "file://")
	assert.Contains(t, uri, "with%20space")

	back, err := PathFromURI(uri)
	require.NoError(t, err)
	assert.Equal(t, path, back)
	assert.Equal(t, uri, CanonicalURI(uri))

	_, err = PathFromURI("untitled:Untitled-1")
	assert.Error(t, err)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return FileURI(path)
}

func TestStore_ReadThrough(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	uri := writeFile(t, dir, "load.soar", "set a 1\n")
	s := NewStore()

	d, ok := s.Get(uri)
	require.True(t, ok)
	assert.Equal(t, "set a 1\n", d.Text())
	assert.False(t, s.IsOpen(uri))

	again, ok := s.Get(uri)
	require.True(t, ok)
	assert.Same(t, d, again)

	_, ok = s.Get(FileURI(filepath.Join(dir, "missing.soar")))
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestStore_OpenSupersedesDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	uri := writeFile(t, dir, "load.soar", "set a 1\n")
	s := NewStore()
	_, ok := s.Get(uri)
	require.True(t, ok)

	s.Open(uri, "set a 2\n", 1)
	d, ok := s.Get(uri)
	require.True(t, ok)
	assert.Equal(t, "set a 2\n", d.Text())
	assert.True(t, s.IsOpen(uri))
	assert.Equal(t, []string{uri}, s.OpenURIs())

	assert.False(t, s.Invalidate(uri), "open documents are not invalidated")

	s.Close(uri)
	assert.False(t, s.IsOpen(uri))
	d, ok = s.Get(uri)
	require.True(t, ok)
	assert.Equal(t, "set a 1\n", d.Text())
}

func TestStore_ChangeAndInvalidate(t *testing.T) {
	t.Parallel()
	texts := map[string]string{"file:///a.soar": "set a 1\n"}
	var mu sync.Mutex
	s := NewStore(WithLoader(func(uri string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		text, ok := texts[uri]
		if !ok {
			return "", ErrNotFound
		}
		return text, nil
	}))

	d, ok := s.Change("file:///a.soar", 2, Change{
		Range: &Range{Start: Position{0, 6}, End: Position{0, 7}},
		Text:  "5",
	})
	require.True(t, ok)
	assert.Equal(t, "set a 5\n", d.Text())

	_, ok = s.Change("file:///none.soar", 1, Change{Range: &Range{}, Text: "x"})
	assert.False(t, ok)

	d, ok = s.Change("file:///new.soar", 1, Change{Text: "set n 1\n"})
	require.True(t, ok)
	assert.Equal(t, "set n 1\n", d.Text())

	mu.Lock()
	texts["file:///a.soar"] = "set a 9\n"
	mu.Unlock()
	assert.True(t, s.Invalidate("file:///a.soar"))
	d, ok = s.Get("file:///a.soar")
	require.True(t, ok)
	assert.Equal(t, "set a 9\n", d.Text())
}

func TestStore_Concurrent(t *testing.T) {
	t.Parallel()
	s := NewStore(WithLoader(func(uri string) (string, error) {
		return "set a 1\n", nil
	}))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uri := fmt.Sprintf("file:///f%d.soar", i%4)
			for j := range 50 {
				switch j % 4 {
				case 0:
					s.Open(uri, "set b 2\n", int32(j))
				case 1:
					s.Change(uri, int32(j), Change{Text: "set c 3\n"})
				case 2:
					s.Get(uri)
				case 3:
					s.Close(uri)
				}
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, len(s.OpenURIs()), 4)
}

func TestStore_RangeChangeRacingClose(t *testing.T) {
	t.Parallel()
	s := NewStore(WithLoader(func(uri string) (string, error) {
		return "set a 1\n", nil
	}))
	const uri = "file:///race.soar"
	edit := Change{Range: &Range{Start: Position{0, 6}, End: Position{0, 7}}, Text: "2"}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for j := range 5000 {
			assert.NotPanics(t, func() {
				if d, ok := s.Change(uri, int32(j), edit); ok {
					assert.Equal(t, "set a 2\n", d.Text())
				}
			})
		}
	}()
	go func() {
		defer wg.Done()
		for range 5000 {
			s.Close(uri)
		}
	}()
	go func() {
		defer wg.Done()
		for range 5000 {
			s.Invalidate(uri)
		}
	}()
	wg.Wait()
}

func TestDocument_Accessors(t *testing.T) {
	t.Parallel()
	d := New("file:///a.soar", "set a 1\r\nset b 2\r\n", 3)
	assert.Equal(t, "file:///a.soar", d.URI())
	assert.Equal(t, int32(3), d.Version())
	assert.Equal(t, "set a 1\nset b 2\n", d.Text())
	assert.NotNil(t, d.Tree())
	assert.Equal(t, 3, d.Lines().LineCount())
	assert.Equal(t, Position{Line: 1, Character: 4}, d.Position(12))
	assert.Equal(t, 12, d.Offset(Position{Line: 1, Character: 4}))
	assert.Equal(t, 15, d.Offset(Position{Line: 1, Character: 99}), "clamped to the end of the line")
}
