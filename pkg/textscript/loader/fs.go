package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/sambeau/textscript/pkg/log"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// compressed maps file suffixes to their decoders. A name that is not found
// as is may be found with one of these suffixes.
var compressed = []struct {
	ext    string
	decode func([]byte) ([]byte, error)
}{
	{".gz", gunzip},
	{".zst", unzstd},
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func unzstd(data []byte) ([]byte, error) {
	d, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.DecodeAll(data, nil)
}

// FileSystemLoader serves templates from a directory. Loaded text is cached
// until it expires or Watch sees the file change. Gzip and zstd compressed
// templates are decompressed transparently.
type FileSystemLoader struct {
	root       string
	extensions []string
	cache      *cache[string]
	logger     log.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// FSOption configures a FileSystemLoader.
type FSOption func(*FileSystemLoader)

// WithExtensions sets extensions tried, in order, for names that are not
// found as given.
func WithExtensions(exts ...string) FSOption {
	return func(l *FileSystemLoader) { l.extensions = exts }
}

// WithCache sets the size and TTL of the content cache.
func WithCache(size int, ttl time.Duration) FSOption {
	return func(l *FileSystemLoader) { l.cache = newCache[string](size, ttl) }
}

// WithFSLogger sets the logger for cache and watcher events.
func WithFSLogger(logger log.Logger) FSOption {
	return func(l *FileSystemLoader) { l.logger = logger }
}

// NewFileSystemLoader creates a loader rooted at dir.
func NewFileSystemLoader(dir string, opts ...FSOption) (*FileSystemLoader, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template root %s is not a directory", root)
	}
	l := &FileSystemLoader{root: root, cache: newCache[string](DefaultCacheSize, DefaultCacheTTL)}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Root returns the absolute template directory.
func (l *FileSystemLoader) Root() string { return l.root }

func (l *FileSystemLoader) GetPath(_ *evaluator.TemplateContext, _ lexer.Span, name string) (string, error) {
	rel, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", nil
	}
	base := filepath.Join(l.root, filepath.FromSlash(rel))
	candidates := []string{base}
	for _, ext := range l.extensions {
		candidates = append(candidates, base+ext)
	}
	for _, c := range candidates {
		if isFile(c) {
			return c, nil
		}
		for _, z := range compressed {
			if isFile(c + z.ext) {
				return c + z.ext, nil
			}
		}
	}
	return "", nil
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func (l *FileSystemLoader) Load(_ *evaluator.TemplateContext, _ lexer.Span, path string) (string, error) {
	if text, ok := l.cache.get(path); ok {
		l.logger.Trace("template cache hit", slog.String("path", path))
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	for _, z := range compressed {
		if strings.HasSuffix(path, z.ext) {
			if data, err = z.decode(data); err != nil {
				return "", fmt.Errorf("decompressing %s: %w", path, err)
			}
			break
		}
	}
	text := string(data)
	l.cache.put(path, text)
	return text, nil
}

func (l *FileSystemLoader) PathExists(_ *evaluator.TemplateContext, _ lexer.Span, path string, typ evaluator.PathType) bool {
	if !filepath.IsAbs(path) {
		rel, err := cleanName(path)
		if err != nil {
			return false
		}
		path = filepath.Join(l.root, filepath.FromSlash(rel))
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return entry{dir: info.IsDir()}.is(typ)
}

func (l *FileSystemLoader) Enumerate(_ *evaluator.TemplateContext, _ lexer.Span, pattern string, typ evaluator.PathType) ([]string, error) {
	pt, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	start := filepath.Join(l.root, filepath.FromSlash(pt.dir))
	var entries []entry
	add := func(p string, dir bool) {
		rel, err := filepath.Rel(l.root, p)
		if err == nil {
			entries = append(entries, entry{name: filepath.ToSlash(rel), dir: dir})
		}
	}
	if pt.recursive {
		err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
			if err != nil || p == start {
				return nil
			}
			add(p, d.IsDir())
			return nil
		})
	} else {
		var des []fs.DirEntry
		des, err = os.ReadDir(start)
		for _, d := range des {
			add(filepath.Join(start, d.Name()), d.IsDir())
		}
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return filter(entries, pt, typ), nil
}

// Invalidate drops cached text for path, or all cached text when path is
// empty.
func (l *FileSystemLoader) Invalidate(path string) { l.cache.remove(path) }

// Watch invalidates cached text when files under the root change, then
// calls onChange, if given, with the changed path. Paths match those
// returned by GetPath. Watching stops when ctx is done or Close is called.
func (l *FileSystemLoader) Watch(ctx context.Context, onChange func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addRecursive(w, l.root); err != nil {
		w.Close()
		return err
	}
	l.mu.Lock()
	if l.watcher != nil {
		l.watcher.Close()
	}
	l.watcher = w
	l.mu.Unlock()

	l.logger.Debug("watching templates", slog.String("root", l.root))
	go l.eventLoop(ctx, w, onChange)
	return nil
}

// addRecursive adds a directory and its subdirectories to the watch list
func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != root {
				return filepath.SkipDir
			}
			return w.Add(p)
		}
		return nil
	})
}

func (l *FileSystemLoader) eventLoop(ctx context.Context, w *fsnotify.Watcher, onChange func(string)) {
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addRecursive(w, event.Name)
				}
			}
			l.cache.remove(event.Name)
			l.logger.Debug("template changed", slog.String("path", event.Name), slog.String("op", event.Op.String()))
			if onChange != nil {
				onChange(event.Name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.Warn("watcher error", log.Err(err))
		}
	}
}

// Close stops watching.
func (l *FileSystemLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	l.watcher = nil
	return err
}
