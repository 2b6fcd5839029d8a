package loader

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
)

// cleanName turns an include name into a slash separated path relative to
// the loader root. Names that climb out of the root are rejected.
func cleanName(name string) (string, error) {
	s := strings.ReplaceAll(name, "\\", "/")
	for _, seg := range strings.Split(s, "/") {
		if seg == ".." {
			return "", fmt.Errorf("template name %q escapes the loader root", name)
		}
	}
	return strings.TrimPrefix(path.Clean("/"+s), "/"), nil
}

// pattern is a parsed Enumerate pattern. Wildcards are only allowed in the
// last segment; "**/" right before it makes the match recursive. The last
// segment also accepts {a,b} alternatives.
type pattern struct {
	dir       string
	base      string
	recursive bool
}

func parsePattern(s string) (pattern, error) {
	s = strings.ReplaceAll(s, "\\", "/")
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		s = "*"
	}
	dir, base := path.Split(s)
	dir = strings.TrimSuffix(dir, "/")

	var pt pattern
	if dir == "**" || strings.HasSuffix(dir, "/**") {
		pt.recursive = true
		dir = strings.TrimSuffix(strings.TrimSuffix(dir, "**"), "/")
	}
	if strings.ContainsAny(dir, "*?[") {
		return pattern{}, errors.ErrProviderDoesNotSupportWildcard
	}
	if !doublestar.ValidatePattern(base) {
		return pattern{}, fmt.Errorf("invalid pattern %q: %w", s, doublestar.ErrBadPattern)
	}
	if dir != "" {
		clean, err := cleanName(dir)
		if err != nil {
			return pattern{}, err
		}
		dir = clean
	}
	pt.dir, pt.base = dir, base
	return pt, nil
}

// glob rebuilds the pattern with its directory escaped, so names holding
// braces or backslashes match literally.
func (pt pattern) glob() string {
	g := pt.base
	if pt.recursive {
		g = "**/" + g
	}
	if pt.dir != "" {
		g = globEscaper.Replace(pt.dir) + "/" + g
	}
	return g
}

var globEscaper = strings.NewReplacer(`\`, `\\`, "{", `\{`, "}", `\}`, "]", `\]`, ",", `\,`)

// match reports whether rel, a slash path relative to the root, matches.
func (pt pattern) match(rel string) bool {
	ok, _ := doublestar.Match(pt.glob(), rel)
	return ok
}

// entry is a path found while enumerating.
type entry struct {
	name string
	dir  bool
}

func (e entry) is(typ evaluator.PathType) bool {
	switch typ {
	case evaluator.PathLeaf:
		return !e.dir
	case evaluator.PathContainer:
		return e.dir
	}
	return true
}

// virtualEntries lists the templates of a flat name space together with
// the directories their names imply.
func virtualEntries(names []string) []entry {
	seen := map[string]bool{}
	var out []entry
	for _, n := range names {
		out = append(out, entry{name: n})
		for d := path.Dir(n); d != "." && d != "/" && !seen[d]; d = path.Dir(d) {
			seen[d] = true
			out = append(out, entry{name: d, dir: true})
		}
	}
	return out
}

// filter returns the sorted names of the entries matching pt and typ.
func filter(entries []entry, pt pattern, typ evaluator.PathType) []string {
	var out []string
	for _, e := range entries {
		if e.is(typ) && pt.match(e.name) {
			out = append(out, e.name)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
