package loader

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	// Database drivers for side-effect registration with database/sql.
	_ "github.com/go-sql-driver/mysql" // mysql
	_ "github.com/lib/pq"              // postgres
	_ "modernc.org/sqlite"             // sqlite

	"github.com/sambeau/textscript/pkg/log"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// DefaultTable is the table SQLLoader reads templates from.
const DefaultTable = "templates"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLLoader serves templates stored in a table with a name and a body
// column. The sqlite, postgres and mysql drivers are registered.
type SQLLoader struct {
	db     *sql.DB
	driver string
	table  string
	owned  bool
	cache  *cache[string]
	logger log.Logger
}

// SQLOption configures an SQLLoader.
type SQLOption func(*SQLLoader)

// WithTable sets the template table.
func WithTable(name string) SQLOption {
	return func(l *SQLLoader) { l.table = name }
}

// WithSQLCache sets the size and TTL of the content cache.
func WithSQLCache(size int, ttl time.Duration) SQLOption {
	return func(l *SQLLoader) { l.cache = newCache[string](size, ttl) }
}

// WithSQLLogger sets the logger for cache events.
func WithSQLLogger(logger log.Logger) SQLOption {
	return func(l *SQLLoader) { l.logger = logger }
}

// OpenSQLLoader opens a database and checks the connection. The loader
// owns the database and closes it on Close.
func OpenSQLLoader(ctx context.Context, driver, dsn string, opts ...SQLOption) (*SQLLoader, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	l, err := NewSQLLoader(db, driver, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

// NewSQLLoader uses an open database. driver selects the SQL dialect.
func NewSQLLoader(db *sql.DB, driver string, opts ...SQLOption) (*SQLLoader, error) {
	l := &SQLLoader{
		db:     db,
		driver: driver,
		table:  DefaultTable,
		cache:  newCache[string](DefaultCacheSize, DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(l)
	}
	if !identifier.MatchString(l.table) {
		return nil, fmt.Errorf("invalid template table name %q", l.table)
	}
	return l, nil
}

// placeholder returns the n-th (1-based) bind parameter of the dialect.
func (l *SQLLoader) placeholder(n int) string {
	if l.driver == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// EnsureTable creates the template table if it does not exist.
func (l *SQLLoader) EnsureTable(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (name VARCHAR(255) PRIMARY KEY, body TEXT NOT NULL)", l.table))
	return err
}

// Put stores a template, replacing any existing one.
func (l *SQLLoader) Put(ctx context.Context, name, body string) error {
	p, err := cleanName(name)
	if err != nil {
		return err
	}
	var q string
	switch l.driver {
	case "mysql":
		q = fmt.Sprintf("INSERT INTO %s (name, body) VALUES (?, ?) ON DUPLICATE KEY UPDATE body = VALUES(body)", l.table)
	default:
		q = fmt.Sprintf("INSERT INTO %s (name, body) VALUES (%s, %s) ON CONFLICT (name) DO UPDATE SET body = excluded.body",
			l.table, l.placeholder(1), l.placeholder(2))
	}
	if _, err := l.db.ExecContext(ctx, q, p, body); err != nil {
		return err
	}
	l.cache.remove(p)
	return nil
}

func (l *SQLLoader) GetPath(tc *evaluator.TemplateContext, _ lexer.Span, name string) (string, error) {
	p, err := cleanName(name)
	if err != nil {
		return "", err
	}
	var found string
	err = l.db.QueryRowContext(contextOf(tc),
		fmt.Sprintf("SELECT name FROM %s WHERE name = %s", l.table, l.placeholder(1)), p).Scan(&found)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return found, nil
}

func (l *SQLLoader) Load(tc *evaluator.TemplateContext, _ lexer.Span, path string) (string, error) {
	if text, ok := l.cache.get(path); ok {
		l.logger.Trace("template cache hit", slog.String("name", path))
		return text, nil
	}
	var body string
	err := l.db.QueryRowContext(contextOf(tc),
		fmt.Sprintf("SELECT body FROM %s WHERE name = %s", l.table, l.placeholder(1)), path).Scan(&body)
	if err != nil {
		return "", err
	}
	l.cache.put(path, body)
	return body, nil
}

func (l *SQLLoader) PathExists(tc *evaluator.TemplateContext, _ lexer.Span, path string, typ evaluator.PathType) bool {
	p, err := cleanName(path)
	if err != nil {
		return false
	}
	names, err := l.names(contextOf(tc))
	if err != nil {
		return false
	}
	for _, e := range virtualEntries(names) {
		if e.name == p && e.is(typ) {
			return true
		}
	}
	return false
}

func (l *SQLLoader) Enumerate(tc *evaluator.TemplateContext, _ lexer.Span, pattern string, typ evaluator.PathType) ([]string, error) {
	pt, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	names, err := l.names(contextOf(tc))
	if err != nil {
		return nil, err
	}
	return filter(virtualEntries(names), pt, typ), nil
}

func (l *SQLLoader) names(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf("SELECT name FROM %s ORDER BY name", l.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Invalidate drops cached text for name, or all cached text when name is
// empty.
func (l *SQLLoader) Invalidate(name string) { l.cache.remove(name) }

// Close closes the database if the loader opened it.
func (l *SQLLoader) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}
