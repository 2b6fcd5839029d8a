package loader

import (
	"net"
	"reflect"
	"testing"

	"github.com/pkg/sftp"

	"github.com/sambeau/textscript/pkg/textscript/evaluator"
)

// newTestSFTP serves an in-memory file system over a pipe.
func newTestSFTP(t *testing.T) *SFTPLoader {
	t.Helper()
	c1, c2 := net.Pipe()
	server := sftp.NewRequestServer(c1, sftp.InMemHandler())
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	client, err := sftp.NewClientPipe(c2, c2)
	if err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		"/site/header.html":       "<h1>{{ $1 }}</h1>",
		"/site/partials/nav.html": "nav",
		"/site/partials/x/deep":   "deep",
	}
	for _, dir := range []string{"/site", "/site/partials", "/site/partials/x"} {
		if err := client.Mkdir(dir); err != nil {
			t.Fatal(err)
		}
	}
	for name, body := range files {
		f, err := client.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	l := NewSFTPLoader(client, "/site")
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSFTPLoader(t *testing.T) {
	l := newTestSFTP(t)

	got := renderWith(t, l, "{{ include 'header.html' 'Hi' }}{{ include 'partials/nav.html' }}")
	if got != "<h1>Hi</h1>nav" {
		t.Fatalf("expected %q, got %q", "<h1>Hi</h1>nav", got)
	}

	if p, err := l.GetPath(nil, noSpan, "missing"); err != nil || p != "" {
		t.Fatalf("expected no path, got %q (%v)", p, err)
	}
	if p, _ := l.GetPath(nil, noSpan, "partials"); p != "" {
		t.Fatalf("expected a directory not to resolve, got %q", p)
	}
	if !l.PathExists(nil, noSpan, "partials/x", evaluator.PathContainer) {
		t.Fatalf("expected partials/x to exist as a container")
	}

	enumerate := []struct {
		pattern  string
		typ      evaluator.PathType
		expected []string
	}{
		{"*", evaluator.PathAny, []string{"header.html", "partials"}},
		{"partials/*", evaluator.PathLeaf, []string{"partials/nav.html"}},
		{"**/*", evaluator.PathLeaf, []string{"header.html", "partials/nav.html", "partials/x/deep"}},
	}
	for _, tt := range enumerate {
		names, err := l.Enumerate(nil, noSpan, tt.pattern, tt.typ)
		if err != nil {
			t.Fatalf("Enumerate(%q): %v", tt.pattern, err)
		}
		if !reflect.DeepEqual(names, tt.expected) {
			t.Fatalf("Enumerate(%q): expected %v, got %v", tt.pattern, tt.expected, names)
		}
	}
}

func TestRelative(t *testing.T) {
	tests := []struct {
		root, path string
		expected   string
		ok         bool
	}{
		{"/", "/a/b", "a/b", true},
		{"/site", "/site/a", "a", true},
		{"/site", "/site", "", false},
		{"/site", "/sitemap/a", "", false},
	}
	for _, tt := range tests {
		got, ok := relative(tt.root, tt.path)
		if got != tt.expected || ok != tt.ok {
			t.Fatalf("relative(%q, %q): expected %q %v, got %q %v", tt.root, tt.path, tt.expected, tt.ok, got, ok)
		}
	}
}

func TestDialSFTPNeedsCredentials(t *testing.T) {
	if _, _, err := DialSFTP(SFTPConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("expected an error without credentials")
	}
}
