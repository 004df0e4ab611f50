// Package uriutil converts between the opaque document URIs the LSP transport
// hands the daemon (typically file:// URLs) and the plain filesystem paths the
// crawler needs to open and stat files. Every Document in the mirror is keyed
// by the URI form; the crawler is the only caller that needs the path form.
package uriutil

import (
	"net/url"
	"path/filepath"
	"strings"
)

const fileScheme = "file://"

// IsFileURI reports whether uri uses the file:// scheme the crawler can walk.
// Non-file URIs (untitled:, git:, etc.) are left to the editor; the crawler
// skips them with a warning rather than failing.
func IsFileURI(uri string) bool {
	return strings.HasPrefix(uri, fileScheme)
}

// ToPath converts a file:// URI to an absolute filesystem path. Percent-escaped
// characters are decoded. Non-file URIs are returned unchanged.
func ToPath(uri string) string {
	if !IsFileURI(uri) {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return strings.TrimPrefix(uri, fileScheme)
	}
	p := u.Path
	if p == "" {
		p = strings.TrimPrefix(uri, fileScheme)
	}
	return filepath.FromSlash(p)
}

// FromPath converts an absolute filesystem path to a file:// URI.
func FromPath(path string) string {
	abs := filepath.ToSlash(path)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return fileScheme + (&url.URL{Path: abs}).EscapedPath()
}

// Ext returns the lowercased file extension (without the dot) of a URI or
// path, used to derive a Document's language hint and to key the crawler's
// per-extension "already crawled" bookkeeping. Returns "" for extensionless
// names.
func Ext(uriOrPath string) string {
	e := filepath.Ext(uriOrPath)
	if e == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

// ToRelative converts an absolute path to one relative to rootDir, falling
// back to the absolute form when the path lies outside rootDir or the
// conversion otherwise fails. Used only for log messages — the mirror and
// crawler key everything by the full URI, never by a relative path.
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}
	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	rel, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}
	if strings.HasPrefix(rel, "..") {
		return absPath
	}
	return rel
}
