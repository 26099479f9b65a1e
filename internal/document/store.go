package document

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// ErrNotFound is returned by loaders when a document has no backing file.
var ErrNotFound = errors.New("document: not found")

// Loader reads the backing content for a URI.
type Loader func(uri string) (string, error)

// Store is a concurrent map from URI to the latest Document. Documents are
// either open (owned by the client) or closed (read through from disk on
// first access).
type Store struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	open   map[string]struct{}
	load   Loader
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLoader replaces the default filesystem loader.
func WithLoader(l Loader) StoreOption {
	return func(s *Store) { s.load = l }
}

// WithLogger sets the logger used for load failures.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		docs:   make(map[string]*Document),
		open:   make(map[string]struct{}),
		load:   LoadFile,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadFile is the default Loader. It reads the file a file:// URI names.
func LoadFile(uri string) (string, error) {
	path, err := PathFromURI(uri)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("document: read %s: %w", path, err)
	}
	return string(data), nil
}

// Get returns the latest snapshot for uri, loading it from the backing
// storage on first access. Load failures are logged and reported as absence.
func (s *Store) Get(uri string) (*Document, bool) {
	s.mu.RLock()
	d, ok := s.docs[uri]
	s.mu.RUnlock()
	if ok {
		return d, true
	}

	text, err := s.load(uri)
	if err != nil {
		s.logger.Warn("document load failed", slog.String("uri", uri), slog.String("error", err.Error()))
		return nil, false
	}
	loaded := New(uri, text, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[uri]; ok {
		// Someone registered the document while we were reading.
		return d, true
	}
	s.docs[uri] = loaded
	return loaded, true
}

// Peek returns the cached snapshot for uri without loading it.
func (s *Store) Peek(uri string) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[uri]
	return d, ok
}

// Open registers client-owned text for uri, superseding any copy loaded
// from disk.
func (s *Store) Open(uri, text string, version int32) *Document {
	d := New(uri, text, version)
	s.mu.Lock()
	s.docs[uri] = d
	s.open[uri] = struct{}{}
	s.mu.Unlock()
	return d
}

// Change applies a batch of edits to the current snapshot of uri. When the
// document is not cached it is read through first. It reports false when
// there was nothing to edit.
func (s *Store) Change(uri string, version int32, changes ...Change) (*Document, bool) {
	// A full replacement needs no base text.
	needsBase := len(changes) == 0 || changes[0].Range != nil
	if _, ok := s.Get(uri); !ok && needsBase {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	base, ok := s.docs[uri]
	if !ok {
		// Closed or invalidated since the read-through.
		if needsBase {
			return nil, false
		}
		base = New(uri, "", version)
	}
	next := base.Apply(version, changes...)
	s.docs[uri] = next
	return next, true
}

// Close marks uri as no longer owned by the client. The cached snapshot is
// dropped so the next read sees the file on disk.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, uri)
	delete(s.docs, uri)
}

// Invalidate drops the cached copy of a closed document and reports whether
// it did. Open documents are left untouched.
func (s *Store) Invalidate(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, open := s.open[uri]; open {
		return false
	}
	if _, ok := s.docs[uri]; !ok {
		return false
	}
	delete(s.docs, uri)
	return true
}

// IsOpen reports whether the client currently owns uri.
func (s *Store) IsOpen(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.open[uri]
	return ok
}

// OpenURIs returns the open documents in sorted order.
func (s *Store) OpenURIs() []string {
	s.mu.RLock()
	uris := make([]string, 0, len(s.open))
	for uri := range s.open {
		uris = append(uris, uri)
	}
	s.mu.RUnlock()
	sort.Strings(uris)
	return uris
}

// Len returns the number of cached documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
