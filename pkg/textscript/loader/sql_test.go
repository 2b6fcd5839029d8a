package loader

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	"github.com/sambeau/textscript/pkg/textscript/evaluator"
)

func newTestSQL(t *testing.T) *SQLLoader {
	t.Helper()
	ctx := context.Background()
	l, err := OpenSQLLoader(ctx, "sqlite", ":memory:", WithTable("pages"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	// one connection, so every query sees the same in-memory database
	l.db.SetMaxOpenConns(1)

	if err := l.EnsureTable(ctx); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"header":           "<h1>{{ $1 }}</h1>",
		"partials/nav":     "nav",
		"partials/x/deep":  "deep",
		"/partials/footer": "footer",
	} {
		if err := l.Put(ctx, name, body); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

func TestSQLLoader(t *testing.T) {
	l := newTestSQL(t)

	got := renderWith(t, l, "{{ include 'header' 'Hi' }}{{ include 'partials/nav' }}")
	if got != "<h1>Hi</h1>nav" {
		t.Fatalf("expected %q, got %q", "<h1>Hi</h1>nav", got)
	}

	if p, err := l.GetPath(nil, noSpan, "missing"); err != nil || p != "" {
		t.Fatalf("expected no path, got %q (%v)", p, err)
	}
	if p, _ := l.GetPath(nil, noSpan, "partials/footer"); p != "partials/footer" {
		t.Fatalf("expected %q, got %q", "partials/footer", p)
	}
	if !l.PathExists(nil, noSpan, "partials/x", evaluator.PathContainer) {
		t.Fatalf("expected partials/x to exist as a container")
	}
	if l.PathExists(nil, noSpan, "partials/x", evaluator.PathLeaf) {
		t.Fatalf("expected partials/x not to be a leaf")
	}

	names, err := l.Enumerate(nil, noSpan, "partials/*", evaluator.PathLeaf)
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{"partials/footer", "partials/nav"}
	if !reflect.DeepEqual(names, expected) {
		t.Fatalf("expected %v, got %v", expected, names)
	}
}

func TestSQLLoaderPutReplaces(t *testing.T) {
	l := newTestSQL(t)
	ctx := context.Background()

	if text, _ := l.Load(nil, noSpan, "partials/nav"); text != "nav" {
		t.Fatalf("expected %q, got %q", "nav", text)
	}
	if err := l.Put(ctx, "partials/nav", "menu"); err != nil {
		t.Fatal(err)
	}
	if text, _ := l.Load(nil, noSpan, "partials/nav"); text != "menu" {
		t.Fatalf("expected %q, got %q", "menu", text)
	}
	if _, err := l.Load(nil, noSpan, "missing"); err != sql.ErrNoRows {
		t.Fatalf("expected %v, got %v", sql.ErrNoRows, err)
	}
}

func TestSQLLoaderTableName(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := NewSQLLoader(db, "sqlite", WithTable("pages; DROP TABLE x")); err == nil {
		t.Fatalf("expected an error for an invalid table name")
	}
	l, err := NewSQLLoader(db, "postgres")
	if err != nil {
		t.Fatal(err)
	}
	if l.placeholder(2) != "$2" {
		t.Fatalf("expected %q, got %q", "$2", l.placeholder(2))
	}
	// the loader does not own db
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("expected db to stay open, got %v", err)
	}
}
