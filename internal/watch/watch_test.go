package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write(t, filepath.Join(dir, "load.soar"), "source a.soar")
	write(t, filepath.Join(dir, "lib", "util.tcl"), "proc u {} {}")
	write(t, filepath.Join(dir, "README.md"), "# agent")
	write(t, filepath.Join(dir, "build", "gen.soar"), "")
	write(t, filepath.Join(dir, ".git", "hooks.soar"), "")
	write(t, filepath.Join(dir, ".gitignore"), "build/\n")

	files, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "lib", "util.tcl"),
		filepath.Join(dir, "load.soar"),
	}, files)
}

func TestFilter_Match(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	write(t, filepath.Join(dir, ".gitignore"), "*.gen.soar\n")
	f := NewFilter(dir)

	assert.True(t, f.Match(filepath.Join(dir, "a.soar")))
	assert.True(t, f.Match(filepath.Join(dir, "A.SOAR")))
	assert.False(t, f.Match(filepath.Join(dir, "out.gen.soar")))
	assert.False(t, f.Match(filepath.Join(dir, "notes.txt")))
	assert.True(t, f.Match("/elsewhere/x.soar"), "paths outside the root are not ignored")
}

type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) handle(paths []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, paths)
}

func (b *batches) all() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, batch := range b.got {
		out = append(out, batch...)
	}
	return out
}

func TestWatcher_BatchesChanges(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.soar")
	write(t, target, "")

	var b batches
	w, err := New(dir, b.handle, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		write(t, target, "sp {x (state <s>) --> (<s> ^a b)}")
	}
	write(t, filepath.Join(dir, "ignored.txt"), "x")

	require.Eventually(t, func() bool { return len(b.all()) > 0 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	for _, p := range b.all() {
		assert.Equal(t, target, p)
	}
	b.mu.Lock()
	first := b.got[0]
	b.mu.Unlock()
	assert.Len(t, first, 1, "repeated writes collapse into one path")
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	var b batches
	w, err := New(dir, b.handle, WithDebounce(30*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(100 * time.Millisecond)
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond)
	write(t, filepath.Join(sub, "b.soar"), "")

	require.Eventually(t, func() bool {
		for _, p := range b.all() {
			if p == filepath.Join(sub, "b.soar") {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}
