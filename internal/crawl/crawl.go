// Package crawl implements the workspace walker that bulk-admits files into
// the Document Mirror.
package crawl

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/lspaid/internal/config"
	lspaierrors "github.com/standardbeagle/lspaid/internal/errors"
	"github.com/standardbeagle/lspaid/internal/logging"
	"github.com/standardbeagle/lspaid/internal/mirror"
	"github.com/standardbeagle/lspaid/pkg/uriutil"
)

// Mirror is the narrow surface the Crawler needs from internal/mirror: admit
// a file, and check whether one is already open. A real *mirror.Mirror
// satisfies this; tests can substitute a fake.
type Mirror interface {
	Open(uri, text string)
	Document(uri string) (*mirror.Document, bool)
}

// Crawler walks a workspace root admitting files into the Mirror, tracking
// which extensions (or "all files") have already been crawled so repeated
// triggers are no-ops.
type Crawler struct {
	root string // file:// root URI; crawling is skipped entirely if this isn't file://
	cfg  config.CrawlConfig
	m    Mirror

	mu          sync.Mutex
	crawledExts map[string]bool
	crawledAll  bool
	hashes      map[string]uint64
}

// New creates a Crawler rooted at rootURI. rootURI should be the LSP
// `rootUri` client param; a non-file:// root makes every Trigger/Bootstrap
// call a no-op that logs a warning each time it is called.
func New(rootURI string, cfg config.CrawlConfig, m Mirror) *Crawler {
	return &Crawler{
		root:        rootURI,
		cfg:         cfg,
		m:           m,
		crawledExts: make(map[string]bool),
		hashes:      make(map[string]uint64),
	}
}

// Bootstrap runs the crawler's first-call, no-triggering-file case: a no-op
// unless AllFiles is set.
func (c *Crawler) Bootstrap() {
	if !c.cfg.AllFiles {
		return
	}
	c.walk("")
}

// Trigger runs the crawler in response to a Mirror Open for uri, deriving
// the extension to crawl for (or crawling everything, if AllFiles).
func (c *Crawler) Trigger(uri string) {
	ext := uriutil.Ext(uri)

	c.mu.Lock()
	alreadyDone := c.crawledAll || (!c.cfg.AllFiles && c.crawledExts[ext])
	c.mu.Unlock()
	if alreadyDone {
		return
	}

	c.walk(ext)
}

func (c *Crawler) walk(ext string) {
	if !uriutil.IsFileURI(c.root) {
		logging.Default().Warn("crawl skipped: root is not a file:// URI", "root", c.root)
		return
	}
	rootPath := uriutil.ToPath(c.root)

	accumulated := int64(0)
	budget := c.cfg.MaxCrawlMemory

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logging.Default().Warn("crawl: walk error", "path", path, "error", walkErr)
			return nil
		}

		rel, relErr := filepath.Rel(rootPath, path)
		if relErr != nil {
			rel = path
		}

		if d.IsDir() {
			if c.ignored(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}

		if accumulated >= budget {
			return filepath.SkipAll
		}
		if c.ignored(rel) {
			return nil
		}
		if !c.cfg.AllFiles && uriutil.Ext(path) != ext {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			logging.Default().Warn("crawl: stat failed", "path", path, "error", infoErr)
			return nil
		}
		if info.Size() > c.cfg.MaxFileSize {
			return nil
		}

		uri := uriutil.FromPath(path)
		if _, open := c.m.Document(uri); open {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			logging.Default().Warn("crawl: read failed", "path", path, "error", readErr)
			return nil
		}

		h := xxhash.Sum64(data)
		c.mu.Lock()
		if prev, seen := c.hashes[uri]; seen && prev == h {
			c.mu.Unlock()
			return nil
		}
		c.hashes[uri] = h
		c.mu.Unlock()

		accumulated += int64(len(data))
		c.m.Open(uri, string(data))
		return nil
	})
	if err != nil {
		logging.Default().Error("crawl failed", "error", lspaierrors.NewCrawlError(c.root, err))
	}

	c.mu.Lock()
	if c.cfg.AllFiles {
		c.crawledAll = true
	} else {
		c.crawledExts[ext] = true
	}
	c.mu.Unlock()
}

func (c *Crawler) ignored(rel string) bool {
	for _, g := range c.cfg.IgnoreGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}
