package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuin/goldmark"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sambeau/textscript/config"
	"github.com/sambeau/textscript/pkg/log"
	"github.com/sambeau/textscript/pkg/textscript/errors"
	"github.com/sambeau/textscript/pkg/textscript/evaluator"
	"github.com/sambeau/textscript/pkg/textscript/lexer"
	"github.com/sambeau/textscript/pkg/textscript/repl"
	"github.com/sambeau/textscript/pkg/textscript/textscript"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

// errFailed is returned once the failure has already been reported.
var errFailed = stderrors.New("failed")

func main() {
	ctx := context.Background()
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv)
	if err == nil {
		return
	}
	if !stderrors.Is(err, errFailed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

// options holds what the flags selected, after config has been applied.
type options struct {
	cfg         *config.Config
	logger      log.Logger
	model       map[string]any
	frontMatter bool
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("textscript", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		configPath  = flags.String("config", "", "Path to config file")
		profile     = flags.String("profile", "", "Config profile to apply")
		evalCode    = flags.String("e", "", "Evaluate a script expression")
		check       = flags.Bool("check", false, "Check syntax without rendering")
		roundtrip   = flags.Bool("roundtrip", false, "Check that files print back unchanged")
		liquid      = flags.Bool("liquid", false, "Parse templates as Liquid")
		strict      = flags.Bool("strict", false, "Unknown variables and members are errors")
		frontMatter = flags.Bool("front-matter", false, "Run the front matter block before rendering")
		modelPath   = flags.String("model", "", "YAML file whose values become globals")
		showVersion = flags.Bool("version", false, "Show version")
		showHelp    = flags.Bool("help", false, "Show help")
	)
	flags.Usage = func() { printUsage(stderr) }

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showHelp {
		printUsage(stdout)
		return nil
	}
	if *showVersion {
		fmt.Fprintf(stdout, "textscript version %s\n", Version)
		return nil
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, configFile, err := config.LoadWithPath(*configPath, getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *profile != "" {
		if err := config.ApplyProfile(cfg, *profile); err != nil {
			return err
		}
	}

	// CLI overrides
	if *liquid {
		cfg.Render.Liquid = true
	}
	if *strict {
		cfg.Render.Strict = true
	}
	if *modelPath != "" {
		cfg.Model = *modelPath
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger, closeLog, err := openLogger(cfg.Logging, stdout, stderr)
	if err != nil {
		return err
	}
	defer closeLog()
	if configFile != "" {
		logger.Debug("loaded config", slog.String("path", configFile))
	}

	opts := &options{cfg: cfg, logger: logger, frontMatter: *frontMatter}
	if cfg.Model != "" {
		if opts.model, err = loadModel(cfg.Model); err != nil {
			return err
		}
	}

	files := flags.Args()
	switch {
	case *evalCode != "":
		return evalInline(ctx, opts, *evalCode, stdout, stderr)
	case *check:
		if len(files) == 0 {
			return fmt.Errorf("--check requires at least one file")
		}
		return checkFiles(opts, files, stderr)
	case *roundtrip:
		if len(files) == 0 {
			return fmt.Errorf("--roundtrip requires at least one file")
		}
		return roundtripFiles(opts, files, stdout, stderr)
	case len(files) > 0:
		return renderFile(ctx, opts, files[0], stdin, stdout, stderr)
	default:
		return startREPL(ctx, opts, stdout)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `textscript - A text templating language

Usage:
  textscript [options] [file]
  textscript -e "expression"
  textscript --check <file>...
  textscript --roundtrip <file>...

Options:
  --config PATH      Path to config file (default: auto-detect)
  --profile NAME     Apply a profile from the config file
  --model PATH       YAML file whose values become globals
  --liquid           Parse templates as Liquid
  --strict           Unknown variables and members are errors
  --front-matter     Run the front matter block before rendering
  -e EXPR            Evaluate a script expression and print its value
  --check            Check syntax without rendering
  --roundtrip        Check that files print back unchanged
  --version          Show version
  --help             Show this help

Config Resolution:
  1. --config flag
  2. TEXTSCRIPT_CONFIG environment variable
  3. ./textscript.yaml
  4. ~/.config/textscript/textscript.yaml

Examples:
  textscript                            Start interactive REPL
  textscript page.html                  Render a template to stdout
  textscript --model data.yaml page.html
  textscript - < page.html              Render a template from stdin
  textscript -e "1 + 2"
  textscript --check templates/*.html

`)
}

// openLogger creates the logger described by cfg and a function that
// releases its output.
func openLogger(cfg config.LoggingConfig, stdout, stderr io.Writer) (log.Logger, func() error, error) {
	var w io.Writer
	closeFn := func() error { return nil }
	switch cfg.Output {
	case "", "stderr":
		w = stderr
	case "stdout":
		w = stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return log.Logger{}, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = f.Close
	}
	logger := log.Make(w,
		log.WithLevel(log.ParseLevel(cfg.Level)),
		log.WithFormat(log.ParseFormat(cfg.Format)),
	)
	return logger, closeFn, nil
}

// loadModel reads a YAML mapping.
func loadModel(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	model := map[string]any{}
	if err := yaml.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("parsing model %s: %w", path, err)
	}
	return model, nil
}

// markdownify converts Markdown to HTML.
func markdownify(text string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (o *options) lexerOptions() lexer.Options {
	opts := lexer.Options{KeepTrivia: o.cfg.Render.Trivia}
	switch {
	case o.cfg.Render.Liquid:
		opts.Mode = lexer.ModeLiquid
	case o.frontMatter:
		opts.Mode = lexer.ModeFrontMatterAndContent
	}
	return opts
}

func (o *options) parse(text string, sourcePath string) *textscript.Template {
	return textscript.Parse(text,
		textscript.WithSourcePath(sourcePath),
		textscript.WithLexerOptions(o.lexerOptions()),
		textscript.WithLogger(o.logger),
	)
}

// newContext creates a context configured from the render settings, with
// the model imported and the host functions defined.
func (o *options) newContext(templates evaluator.TemplateLoader) (*evaluator.TemplateContext, error) {
	r := o.cfg.Render
	tc := evaluator.New()
	tc.Strict = r.Strict
	tc.LoopLimit = r.LoopLimit
	tc.RecursiveLimit = r.RecursiveLimit
	tc.Timeout = r.Timeout
	tc.DateFormat = r.DateFormat
	if r.Culture != "" {
		tag, err := language.Parse(r.Culture)
		if err != nil {
			return nil, fmt.Errorf("render.culture: %w", err)
		}
		tc.Culture = tag
	}
	tc.Loader = templates
	tc.LexerOptions = o.lexerOptions()
	tc.Logger = o.logger
	tc.SetFunction("markdownify", markdownify)
	if o.model != nil {
		if err := tc.Import(o.model); err != nil {
			return nil, err
		}
	}
	return tc, nil
}

func evalInline(ctx context.Context, o *options, code string, stdout, stderr io.Writer) error {
	t := textscript.Parse(code,
		textscript.WithSourcePath("<eval>"),
		textscript.WithLexerOptions(lexer.Options{Mode: lexer.ModeScriptOnly}),
		textscript.WithLogger(o.logger),
	)
	if t.HasErrors() {
		printMessages(stderr, t.Messages().Errors())
		return errFailed
	}
	templates, closeLoader, err := openLoader(ctx, o.cfg.Loader, o.logger)
	if err != nil {
		return err
	}
	defer closeLoader()
	tc, err := o.newContext(templates)
	if err != nil {
		return err
	}
	value, err := t.Evaluate(ctx, tc)
	if err != nil {
		printRuntimeError(stderr, err)
		return errFailed
	}
	if value == nil {
		fmt.Fprintln(stdout, "null")
		return nil
	}
	fmt.Fprintln(stdout, tc.ToString(value))
	return nil
}

// checkFiles parses each file and reports every diagnostic.
func checkFiles(o *options, files []string, stderr io.Writer) error {
	failed := false
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		t := o.parse(string(data), name)
		if len(t.Messages()) > 0 {
			printMessages(stderr, t.Messages())
		}
		if t.HasErrors() {
			failed = true
		}
	}
	if failed {
		return errFailed
	}
	return nil
}

// roundtripFiles checks that printing the syntax tree of each file gives
// back its text.
func roundtripFiles(o *options, files []string, stdout, stderr io.Writer) error {
	o.cfg.Render.Trivia = true
	failed := false
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		t := o.parse(string(data), name)
		if t.HasErrors() {
			printMessages(stderr, t.Messages().Errors())
			failed = true
			continue
		}
		if t.ToText() != string(data) {
			fmt.Fprintf(stdout, "differs: %s\n", name)
			failed = true
			continue
		}
		fmt.Fprintf(stdout, "ok: %s\n", name)
	}
	if failed {
		return errFailed
	}
	return nil
}

// renderFile renders a template file, or stdin when name is "-".
func renderFile(ctx context.Context, o *options, name string, stdin io.Reader, stdout, stderr io.Writer) error {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(stdin)
		name = "<stdin>"
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}

	t := o.parse(string(data), name)
	if t.HasErrors() {
		printMessages(stderr, t.Messages().Errors())
		return errFailed
	}

	templates, closeLoader, err := openLoader(ctx, o.cfg.Loader, o.logger)
	if err != nil {
		return err
	}
	defer closeLoader()
	tc, err := o.newContext(templates)
	if err != nil {
		return err
	}

	if o.frontMatter {
		if _, err := t.EvaluateFrontMatter(ctx, tc); err != nil {
			printRuntimeError(stderr, err)
			return errFailed
		}
	}
	out, err := t.Render(ctx, tc)
	if err != nil {
		printRuntimeError(stderr, err)
		return errFailed
	}
	_, err = io.WriteString(stdout, out)
	return err
}

func startREPL(ctx context.Context, o *options, stdout io.Writer) error {
	templates, closeLoader, err := openLoader(ctx, o.cfg.Loader, o.logger)
	if err != nil {
		return err
	}
	defer closeLoader()

	// Validate the render settings once so the session factory cannot fail.
	if _, err := o.newContext(templates); err != nil {
		return err
	}
	session := repl.NewSession(func() *evaluator.TemplateContext {
		tc, _ := o.newContext(templates)
		return tc
	})

	if w, ok := templates.(watcher); ok && o.cfg.Loader.Watch {
		if err := w.Watch(ctx, session.Invalidate); err != nil {
			o.logger.Warn("cannot watch templates", log.Err(err))
		}
	}

	repl.Start(ctx, session, stdout, Version)
	return nil
}

func printMessages(w io.Writer, messages errors.Messages) {
	for _, m := range messages {
		io.WriteString(w, m.PrettyString())
		io.WriteString(w, "\n")
	}
}

func printRuntimeError(w io.Writer, err error) {
	var se *errors.ScriptError
	if stderrors.As(err, &se) {
		io.WriteString(w, se.PrettyString())
		io.WriteString(w, "\n")
		return
	}
	fmt.Fprintf(w, "Runtime error\n  %s\n", err)
}
