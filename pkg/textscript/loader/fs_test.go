package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/sambeau/textscript/pkg/log"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
)

func writeFile(t *testing.T, name string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zstded(t *testing.T, s string) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll([]byte(s), nil)
}

func newTestFS(t *testing.T) (string, *FileSystemLoader) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "header.html"), []byte("<h1>{{ $1 }}</h1>"))
	writeFile(t, filepath.Join(dir, "partials", "nav.html"), []byte("nav"))
	writeFile(t, filepath.Join(dir, "partials", "deep", "foot.html.gz"), gzipped(t, "foot"))
	writeFile(t, filepath.Join(dir, "zipped.zst"), zstded(t, "zstd {{ 1 + 1 }}"))
	writeFile(t, filepath.Join(dir, ".hidden", "x.html"), []byte("hidden"))

	l, err := NewFileSystemLoader(dir, WithExtensions(".html"), WithFSLogger(log.Discard()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return dir, l
}

func TestFileSystemLoaderRender(t *testing.T) {
	_, l := newTestFS(t)
	tests := []struct {
		input    string
		expected string
	}{
		{"{{ include 'header' 'Hi' }}", "<h1>Hi</h1>"},
		{"{{ include 'header.html' 'Hi' }}", "<h1>Hi</h1>"},
		{"{{ include 'partials/nav' }}", "nav"},
		{"{{ include 'partials/deep/foot' }}", "foot"},
		{"{{ include 'zipped' }}", "zstd 2"},
	}
	for _, tt := range tests {
		if got := renderWith(t, l, tt.input); got != tt.expected {
			t.Fatalf("expected %q, got %q", tt.expected, got)
		}
	}
}

func TestFileSystemLoaderPaths(t *testing.T) {
	dir, l := newTestFS(t)

	if _, err := NewFileSystemLoader(filepath.Join(dir, "header.html")); err == nil {
		t.Fatalf("expected an error for a root that is not a directory")
	}
	if l.Root() != dir {
		t.Fatalf("expected root %q, got %q", dir, l.Root())
	}

	p, err := l.GetPath(nil, noSpan, "partials/nav")
	if err != nil {
		t.Fatal(err)
	}
	if p != filepath.Join(dir, "partials", "nav.html") {
		t.Fatalf("expected %q, got %q", filepath.Join(dir, "partials", "nav.html"), p)
	}
	if p, _ := l.GetPath(nil, noSpan, "partials"); p != "" {
		t.Fatalf("expected a directory not to resolve, got %q", p)
	}
	if _, err := l.GetPath(nil, noSpan, "../etc/passwd"); err == nil {
		t.Fatalf("expected an error for a name outside the root")
	}

	if !l.PathExists(nil, noSpan, "partials", evaluator.PathContainer) {
		t.Fatalf("expected partials to exist as a directory")
	}
	if l.PathExists(nil, noSpan, "partials", evaluator.PathLeaf) {
		t.Fatalf("expected partials not to be a leaf")
	}
	if !l.PathExists(nil, noSpan, p, evaluator.PathLeaf) {
		t.Fatalf("expected %s to exist", p)
	}

	enumerate := []struct {
		pattern  string
		typ      evaluator.PathType
		expected []string
	}{
		{"*.html", evaluator.PathLeaf, []string{"header.html"}},
		{"partials/*", evaluator.PathAny, []string{"partials/deep", "partials/nav.html"}},
		{"partials/**/*", evaluator.PathLeaf, []string{"partials/deep/foot.html.gz", "partials/nav.html"}},
		{"missing/*", evaluator.PathAny, nil},
	}
	for _, tt := range enumerate {
		got, err := l.Enumerate(nil, noSpan, tt.pattern, tt.typ)
		if err != nil {
			t.Fatalf("Enumerate(%q): %v", tt.pattern, err)
		}
		if !reflect.DeepEqual(got, tt.expected) {
			t.Fatalf("Enumerate(%q): expected %v, got %v", tt.pattern, tt.expected, got)
		}
	}
}

func TestFileSystemLoaderCache(t *testing.T) {
	dir, l := newTestFS(t)
	name := filepath.Join(dir, "partials", "nav.html")

	if text, _ := l.Load(nil, noSpan, name); text != "nav" {
		t.Fatalf("expected %q, got %q", "nav", text)
	}
	writeFile(t, name, []byte("changed"))
	if text, _ := l.Load(nil, noSpan, name); text != "nav" {
		t.Fatalf("expected the cached %q, got %q", "nav", text)
	}
	l.Invalidate(name)
	if text, _ := l.Load(nil, noSpan, name); text != "changed" {
		t.Fatalf("expected %q, got %q", "changed", text)
	}
}

func TestFileSystemLoaderWatch(t *testing.T) {
	dir, l := newTestFS(t)
	name := filepath.Join(dir, "partials", "nav.html")
	if _, err := l.Load(nil, noSpan, name); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan string, 16)
	if err := l.Watch(ctx, func(p string) { changed <- p }); err != nil {
		t.Fatal(err)
	}

	// replace the file in one step so the change is never seen half written
	tmp := filepath.Join(t.TempDir(), "nav.html")
	writeFile(t, tmp, []byte("rewritten"))
	if err := os.Rename(tmp, name); err != nil {
		t.Fatal(err)
	}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p := <-changed:
			if p != name {
				continue
			}
			if text, _ := l.Load(nil, noSpan, name); text != "rewritten" {
				t.Fatalf("expected %q, got %q", "rewritten", text)
			}
			return
		case <-timeout:
			t.Fatalf("no change seen for %s", name)
		}
	}
}
