// Package loader provides TemplateLoader implementations for includes:
// in memory, on the local file system, in a SQL table and on an SFTP
// server.
//
// Include names are slash separated paths relative to the loader root.
// Enumerate accepts * and ? wildcards in the last path segment, and "**/"
// right before it to search every directory below.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"sync"

	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
)

// MapLoader serves templates from memory. It is safe for concurrent use.
type MapLoader struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewMapLoader creates a loader holding templates keyed by name.
func NewMapLoader(templates map[string]string) *MapLoader {
	m := &MapLoader{templates: map[string]string{}}
	for name, text := range templates {
		m.Set(name, text)
	}
	return m
}

// Set adds or replaces a template.
func (m *MapLoader) Set(name, text string) {
	p, err := cleanName(name)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.templates[p] = text
	m.mu.Unlock()
}

// Remove deletes a template.
func (m *MapLoader) Remove(name string) {
	p, err := cleanName(name)
	if err != nil {
		return
	}
	m.mu.Lock()
	delete(m.templates, p)
	m.mu.Unlock()
}

func (m *MapLoader) GetPath(_ *evaluator.TemplateContext, _ lexer.Span, name string) (string, error) {
	p, err := cleanName(name)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.templates[p]; !ok {
		return "", nil
	}
	return p, nil
}

func (m *MapLoader) Load(_ *evaluator.TemplateContext, _ lexer.Span, path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.templates[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return text, nil
}

func (m *MapLoader) PathExists(_ *evaluator.TemplateContext, _ lexer.Span, path string, typ evaluator.PathType) bool {
	p, err := cleanName(path)
	if err != nil {
		return false
	}
	for _, e := range virtualEntries(m.names()) {
		if e.name == p && e.is(typ) {
			return true
		}
	}
	return false
}

func (m *MapLoader) Enumerate(_ *evaluator.TemplateContext, _ lexer.Span, pattern string, typ evaluator.PathType) ([]string, error) {
	pt, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	return filter(virtualEntries(m.names()), pt, typ), nil
}

func (m *MapLoader) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.templates))
}

// contextOf returns the context of the render in progress.
func contextOf(tc *evaluator.TemplateContext) context.Context {
	if tc == nil {
		return context.Background()
	}
	return tc.Context()
}
