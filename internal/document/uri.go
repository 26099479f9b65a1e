package document

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// FileURI converts a filesystem path to a file:// URI. Relative paths are
// made absolute first.
func FileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(filepath.Clean(path))
	if !strings.HasPrefix(p, "/") {
		// Windows drive letter paths.
		p = "/" + p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}

// PathFromURI converts a file:// URI back to a filesystem path.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("document: parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("document: unsupported uri scheme %q", u.Scheme)
	}
	p := u.Path
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}

// CanonicalURI rewrites a client supplied URI to the form FileURI produces,
// so that URIs coming from the editor and URIs derived from source paths
// compare equal. Non-file URIs are returned unchanged.
func CanonicalURI(uri string) string {
	p, err := PathFromURI(uri)
	if err != nil {
		return uri
	}
	return FileURI(p)
}
