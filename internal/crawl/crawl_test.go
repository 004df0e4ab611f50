package crawl

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/standardbeagle/lspaid/internal/config"
	"github.com/standardbeagle/lspaid/internal/mirror"
	"github.com/standardbeagle/lspaid/pkg/uriutil"
)

// fakeMirror is a minimal Mirror double that just records admitted files,
// so tests don't need to wire up tree-sitter or rope machinery.
type fakeMirror struct {
	mu    sync.Mutex
	texts map[string]string
}

func newFakeMirror() *fakeMirror { return &fakeMirror{texts: make(map[string]string)} }

func (f *fakeMirror) Open(uri, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[uri] = text
}

func (f *fakeMirror) Document(uri string) (*mirror.Document, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.texts[uri]
	if !ok {
		return nil, false
	}
	return &mirror.Document{URI: uri}, true
}

func (f *fakeMirror) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func (f *fakeMirror) totalBytes() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.texts {
		n += int64(len(t))
	}
	return n
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTriggerAdmitsMatchingExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")
	writeFile(t, dir, "b.go", "package b")
	writeFile(t, dir, "c.py", "print(1)")

	fm := newFakeMirror()
	cr := New(uriutil.FromPath(dir), config.CrawlConfig{MaxFileSize: 1 << 20, MaxCrawlMemory: 1 << 20}, fm)
	cr.Trigger(uriutil.FromPath(filepath.Join(dir, "a.go")))

	if fm.count() != 2 {
		t.Fatalf("expected 2 .go files admitted, got %d", fm.count())
	}
}

func TestTriggerIsNoOpOnceExtensionCrawled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")

	fm := newFakeMirror()
	cr := New(uriutil.FromPath(dir), config.CrawlConfig{MaxFileSize: 1 << 20, MaxCrawlMemory: 1 << 20}, fm)
	cr.Trigger(uriutil.FromPath(filepath.Join(dir, "a.go")))
	firstCount := fm.count()

	writeFile(t, dir, "added-later.go", "package later")
	cr.Trigger(uriutil.FromPath(filepath.Join(dir, "a.go")))

	if fm.count() != firstCount {
		t.Fatalf("second trigger for an already-crawled extension should be a no-op, went from %d to %d", firstCount, fm.count())
	}
}

func TestNonFileRootSkipsCrawl(t *testing.T) {
	fm := newFakeMirror()
	cr := New("untitled:workspace", config.CrawlConfig{MaxFileSize: 1 << 20, MaxCrawlMemory: 1 << 20}, fm)
	cr.Trigger("untitled:foo.go")
	if fm.count() != 0 {
		t.Fatal("expected no admissions for a non-file root")
	}
}

func TestIgnoreGlobsExcludeDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.go", "package keep")
	writeFile(t, dir, "vendor/skip.go", "package skip")

	fm := newFakeMirror()
	cr := New(uriutil.FromPath(dir), config.CrawlConfig{
		MaxFileSize:    1 << 20,
		MaxCrawlMemory: 1 << 20,
		IgnoreGlobs:    []string{"vendor/**"},
	}, fm)
	cr.Trigger(uriutil.FromPath(filepath.Join(dir, "keep.go")))

	if fm.count() != 1 {
		t.Fatalf("expected only keep.go, got %d files", fm.count())
	}
}

// TestMemoryBound confirms the sum of bytes admitted by the crawler never
// exceeds max_crawl_memory + max_file_size.
func TestMemoryBound(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, dir, filepath.Join("pkg", string(rune('a'+i))+".go"), "package p\n// padding padding padding padding")
	}

	fm := newFakeMirror()
	const maxFileSize = 1 << 20
	const maxCrawlMemory = 200
	cr := New(uriutil.FromPath(dir), config.CrawlConfig{MaxFileSize: maxFileSize, MaxCrawlMemory: maxCrawlMemory}, fm)
	cr.Trigger(uriutil.FromPath(filepath.Join(dir, "pkg", "a.go")))

	if fm.totalBytes() > maxCrawlMemory+maxFileSize {
		t.Fatalf("admitted %d bytes, exceeds bound %d", fm.totalBytes(), maxCrawlMemory+maxFileSize)
	}
}

func TestBootstrapNoOpWithoutAllFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")

	fm := newFakeMirror()
	cr := New(uriutil.FromPath(dir), config.CrawlConfig{MaxFileSize: 1 << 20, MaxCrawlMemory: 1 << 20}, fm)
	cr.Bootstrap()
	if fm.count() != 0 {
		t.Fatal("expected bootstrap to be a no-op when AllFiles is false")
	}
}

func TestBootstrapAllFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a")
	writeFile(t, dir, "b.py", "print(1)")

	fm := newFakeMirror()
	cr := New(uriutil.FromPath(dir), config.CrawlConfig{MaxFileSize: 1 << 20, MaxCrawlMemory: 1 << 20, AllFiles: true}, fm)
	cr.Bootstrap()
	if fm.count() != 2 {
		t.Fatalf("expected both files admitted, got %d", fm.count())
	}
}
