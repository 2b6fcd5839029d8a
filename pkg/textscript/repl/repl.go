// Package repl is an interactive textscript shell.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
	"github.com/sambeau/textscript/pkg/textscript/parser"
)

const PROMPT = ">> "
const PROMPT_TEMPLATE = "t> "
const CONTINUATION_PROMPT = ".. "

const LOGO = `
▀█▀ █▀▀ ▀▄▀ ▀█▀ █▀ █▀▀ █▀█ █ █▀█ ▀█▀
░█░ ██▄ █░█ ░█░ ▄█ █▄▄ █▀▄ █ █▀▀ ░█░ `

// Session evaluates input lines against one TemplateContext, so variables
// and functions persist between lines.
type Session struct {
	// NewContext creates the context used after :clear. Nil selects
	// evaluator.New.
	NewContext func() *evaluator.TemplateContext

	tc       *evaluator.TemplateContext
	template bool

	mu    sync.Mutex
	stale []string
}

// NewSession creates a session using newContext for its contexts.
func NewSession(newContext func() *evaluator.TemplateContext) *Session {
	s := &Session{NewContext: newContext}
	s.reset()
	return s
}

func (s *Session) reset() {
	if s.NewContext != nil {
		s.tc = s.NewContext()
	} else {
		s.tc = evaluator.New()
	}
}

// Context returns the context input is evaluated in.
func (s *Session) Context() *evaluator.TemplateContext { return s.tc }

func (s *Session) prompt() string {
	if s.template {
		return PROMPT_TEMPLATE
	}
	return PROMPT
}

// Invalidate marks the include cached for path as stale. It may be called
// from any goroutine; the entry is dropped before the next input runs.
func (s *Session) Invalidate(path string) {
	s.mu.Lock()
	s.stale = append(s.stale, path)
	s.mu.Unlock()
}

func (s *Session) dropStale() {
	s.mu.Lock()
	stale := s.stale
	s.stale = nil
	s.mu.Unlock()
	for _, p := range stale {
		s.tc.Invalidate(p)
	}
}

// Eval runs one complete input. In script mode the value of the last
// expression is printed; in template mode the rendered output is.
func (s *Session) Eval(ctx context.Context, input string, out io.Writer) {
	s.dropStale()
	opts := s.tc.LexerOptions
	if s.template {
		if opts.Mode == lexer.ModeScriptOnly {
			opts.Mode = lexer.ModeDefault
		}
	} else {
		opts.Mode = lexer.ModeScriptOnly
	}
	page, messages := parser.ParseString(input, opts, s.tc.ParserOptions)
	if messages.HasErrors() {
		printMessages(out, messages.Errors())
		return
	}

	if s.template {
		result, err := s.tc.Render(ctx, page)
		if err != nil {
			printRuntimeError(out, err)
			return
		}
		io.WriteString(out, result)
		if !strings.HasSuffix(result, "\n") {
			io.WriteString(out, "\n")
		}
		return
	}

	value, err := s.tc.Evaluate(ctx, page)
	if err != nil {
		printRuntimeError(out, err)
		return
	}
	if value == nil {
		io.WriteString(out, "OK\n")
		return
	}
	fmt.Fprintln(out, s.tc.ToString(value))
}

// Command handles a line starting with ':' and reports whether it was
// recognized.
func (s *Session) Command(cmd string, out io.Writer) bool {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?   Show this help")
		fmt.Fprintln(out, "  :vars           Show global variables")
		fmt.Fprintln(out, "  :clear          Clear all variables")
		fmt.Fprintln(out, "  :template       Toggle template mode (input is rendered as a template)")
		fmt.Fprintln(out, "  exit, quit      Exit the REPL")
		return true

	case ":vars":
		printVariables(s.tc, out)
		return true

	case ":clear":
		s.reset()
		fmt.Fprintln(out, "Variables cleared")
		return true

	case ":template":
		s.template = !s.template
		if s.template {
			fmt.Fprintln(out, "Template mode ON")
		} else {
			fmt.Fprintln(out, "Template mode OFF")
		}
		return true

	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", cmd)
		return false
	}
}

// Start starts the REPL with line editing, history, and tab completion
func Start(ctx context.Context, s *Session, out io.Writer, version string) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) []string {
		return filterCompletions(l, s.tc)
	})

	historyFile := filepath.Join(os.TempDir(), ".textscript_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(out, "%s", LOGO)
	fmt.Fprintln(out, "v", version)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Type 'exit' or Ctrl+D to quit")
	fmt.Fprintln(out, "Type ':help' for REPL commands")
	fmt.Fprintln(out, "")

	var inputBuffer strings.Builder
	for {
		prompt := s.prompt()
		if inputBuffer.Len() > 0 {
			prompt = CONTINUATION_PROMPT
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				if inputBuffer.Len() > 0 {
					fmt.Fprintln(out, "^C (cleared)")
				} else {
					fmt.Fprintln(out, "^C")
				}
				inputBuffer.Reset()
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		trimmed := strings.TrimSpace(input)
		if inputBuffer.Len() == 0 {
			if trimmed == "exit" || trimmed == "quit" {
				fmt.Fprintln(out, "Goodbye!")
				return
			}
			if strings.HasPrefix(trimmed, ":") {
				s.Command(trimmed, out)
				continue
			}
			if trimmed == "" {
				continue
			}
		}

		if inputBuffer.Len() > 0 {
			inputBuffer.WriteString("\n")
		}
		inputBuffer.WriteString(input)

		full := inputBuffer.String()
		if !s.template && needsMoreInput(full) {
			continue
		}
		line.AppendHistory(full)
		s.Eval(ctx, full, out)
		inputBuffer.Reset()
	}
}

// blockOpeners are keywords closed by a matching end.
var blockOpeners = []string{"if", "for", "while", "func", "case", "capture", "with"}

// needsMoreInput reports whether script input has unclosed brackets or
// blocks.
func needsMoreInput(input string) bool {
	lex := lexer.New(input, lexer.Options{Mode: lexer.ModeScriptOnly})
	depth, blocks := 0, 0
	prev, prevWord := lexer.Invalid, ""
	for tok := range lex.Tokens() {
		word := ""
		switch tok.Type {
		case lexer.OpenParen, lexer.OpenBracket, lexer.OpenBrace:
			depth++
		case lexer.CloseParen, lexer.CloseBracket, lexer.CloseBrace:
			depth--
		case lexer.Identifier:
			word = tok.Text(input)
			// a keyword after a dot is a member name
			if prev == lexer.Dot || (word == "if" && prevWord == "else") {
				break
			}
			if word == "end" {
				blocks--
			} else if slices.Contains(blockOpeners, word) {
				blocks++
			}
		}
		prev, prevWord = tok.Type, word
	}
	return depth > 0 || blocks > 0
}

// filterCompletions completes the last word from keywords and the names in
// scope.
func filterCompletions(line string, tc *evaluator.TemplateContext) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if last := line[len(line)-1]; last == ' ' || last == '\t' {
		return nil
	}
	words := strings.Fields(line)
	lastWord := words[len(words)-1]
	prefix := line[:len(line)-len(lastWord)]

	candidates := slices.Clone(errors.Keywords)
	if tc != nil {
		candidates = append(candidates, tc.Builtins().Keys()...)
		candidates = append(candidates, tc.Globals().Keys()...)
	}
	slices.Sort(candidates)

	var matches []string
	for _, word := range slices.Compact(candidates) {
		if strings.HasPrefix(word, lastWord) {
			matches = append(matches, prefix+word)
		}
	}
	return matches
}

// printVariables displays the global variables
func printVariables(tc *evaluator.TemplateContext, out io.Writer) {
	names := tc.Globals().Keys()
	if len(names) == 0 {
		fmt.Fprintln(out, "(no variables)")
		return
	}
	slices.Sort(names)
	for _, name := range names {
		v, _ := tc.Globals().Get(name)
		value := tc.ToString(v)
		if strings.Contains(value, "\n") {
			value = strings.ReplaceAll(value, "\n", "\n  ")
		} else if len(value) > 60 {
			value = value[:57] + "..."
		}
		fmt.Fprintf(out, "  %s: %s = %s\n", name, evaluator.TypeName(v), value)
	}
}

func printMessages(out io.Writer, messages errors.Messages) {
	for _, m := range messages {
		io.WriteString(out, m.PrettyString())
		io.WriteString(out, "\n")
	}
}

func printRuntimeError(out io.Writer, err error) {
	if se, ok := err.(*errors.ScriptError); ok {
		io.WriteString(out, se.PrettyString())
		io.WriteString(out, "\n")
		return
	}
	fmt.Fprintf(out, "Runtime error\n  %s\n", err)
}
