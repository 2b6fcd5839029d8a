package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) string { return "" }

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Loader.Kind != "fs" {
		t.Errorf("expected default loader 'fs', got %q", cfg.Loader.Kind)
	}
	if cfg.Render.LoopLimit != 1000 {
		t.Errorf("expected default loop limit 1000, got %d", cfg.Render.LoopLimit)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected default log level 'warn', got %q", cfg.Logging.Level)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("expected defaults to be valid, got %v", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	getenv := func(key string) string {
		switch key {
		case "TEST_ROOT":
			return "/srv/templates"
		case "TEST_USER":
			return "deploy"
		default:
			return ""
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple substitution", "root: ${TEST_ROOT}", "root: /srv/templates"},
		{"with default (env set)", "root: ${TEST_ROOT:-./site}", "root: /srv/templates"},
		{"with default (env not set)", "root: ${UNSET_VAR:-./site}", "root: ./site"},
		{"multiple substitutions", "addr: ${TEST_USER}@${TEST_ROOT}", "addr: deploy@/srv/templates"},
		{"unset without default", "root: ${UNSET_VAR}", "root: "},
		{"no pattern", "root: plain", "root: plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(interpolateEnv([]byte(tt.input), getenv))
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "textscript.yaml")

	configContent := `
render:
  strict: true
  loop_limit: 50
  timeout: 5s
  culture: de-DE

loader:
  kind: fs
  root: ./templates
  watch: true
  extensions: .tmpl
  cache:
    size: 10
    ttl: 1m

logging:
  level: debug
  format: json

model: data.yaml
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, path, err := LoadWithPath(configPath, noEnv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path != configPath {
		t.Errorf("expected path %q, got %q", configPath, path)
	}

	if !cfg.Render.Strict || cfg.Render.LoopLimit != 50 || cfg.Render.Timeout != 5*time.Second {
		t.Errorf("unexpected render config: %+v", cfg.Render)
	}
	if cfg.Render.RecursiveLimit != 100 {
		t.Errorf("expected default recursive limit to survive, got %d", cfg.Render.RecursiveLimit)
	}
	if cfg.Loader.Root != filepath.Join(dir, "templates") {
		t.Errorf("expected root %q, got %q", filepath.Join(dir, "templates"), cfg.Loader.Root)
	}
	if len(cfg.Loader.Extensions) != 1 || cfg.Loader.Extensions[0] != ".tmpl" {
		t.Errorf("expected extensions [.tmpl], got %v", cfg.Loader.Extensions)
	}
	if cfg.Loader.Cache.Size != 10 || cfg.Loader.Cache.TTL != time.Minute {
		t.Errorf("unexpected cache config: %+v", cfg.Loader.Cache)
	}
	if cfg.Model != filepath.Join(dir, "data.yaml") {
		t.Errorf("expected model %q, got %q", filepath.Join(dir, "data.yaml"), cfg.Model)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected log format 'json', got %q", cfg.Logging.Format)
	}
}

func TestLoadWithEnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "textscript.yaml")

	configContent := `
loader:
  kind: sql
  sql:
    driver: postgres
    dsn: !secret ${DB_DSN}
    table: ${DB_TABLE:-pages}
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	getenv := func(key string) string {
		if key == "DB_DSN" {
			return "postgres://u:p@localhost/db"
		}
		return ""
	}
	cfg, err := Load(configPath, getenv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Loader.SQL.DSN.Value() != "postgres://u:p@localhost/db" {
		t.Errorf("unexpected dsn %q", cfg.Loader.SQL.DSN.Value())
	}
	if cfg.Loader.SQL.DSN.String() != "[hidden]" {
		t.Errorf("expected the dsn to be hidden, got %q", cfg.Loader.SQL.DSN.String())
	}
	if cfg.Loader.SQL.Table != "pages" {
		t.Errorf("expected table 'pages', got %q", cfg.Loader.SQL.Table)
	}
}

func TestLoadSQLitePath(t *testing.T) {
	cfg, err := Parse([]byte("loader:\n  kind: sql\n  sql:\n    dsn: site.db\n"), "/app", noEnv)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Loader.SQL.DSN.Value() != filepath.Join("/app", "site.db") {
		t.Errorf("expected dsn %q, got %q", filepath.Join("/app", "site.db"), cfg.Loader.SQL.DSN.Value())
	}

	cfg, err = Parse([]byte("loader:\n  kind: sql\n  sql:\n    dsn: ':memory:'\n"), "/app", noEnv)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Loader.SQL.DSN.Value() != ":memory:" {
		t.Errorf("expected dsn ':memory:', got %q", cfg.Loader.SQL.DSN.Value())
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"negative loop limit", "render:\n  loop_limit: -1", "render.loop_limit"},
		{"bad culture", "render:\n  culture: not_a_tag!", "render.culture"},
		{"unknown loader", "loader:\n  kind: ftp", "invalid loader.kind"},
		{"sql without dsn", "loader:\n  kind: sql", "loader.sql.dsn"},
		{"sql bad driver", "loader:\n  kind: sql\n  sql:\n    driver: oracle\n    dsn: x", "loader.sql.driver"},
		{"sftp without addr", "loader:\n  kind: sftp\n  sftp:\n    password: x", "loader.sftp.addr"},
		{"sftp without credentials", "loader:\n  kind: sftp\n  sftp:\n    addr: host:22", "password or key_file"},
		{"watch on sql", "loader:\n  kind: sql\n  watch: true\n  sql:\n    dsn: x", "loader.watch"},
		{"bad level", "logging:\n  level: loud", "invalid log level"},
		{"bad format", "logging:\n  format: xml", "invalid log format"},
		{"memory loader", "loader:\n  kind: memory", ""},
		{"sftp with key", "loader:\n  kind: sftp\n  sftp:\n    addr: host:22\n    key_file: id_ed25519", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "/app", noEnv)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	if _, err := resolveConfigPath("/nonexistent/path/textscript.yaml", noEnv); err == nil {
		t.Error("expected error for nonexistent path")
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	resolved, err := resolveConfigPath(configPath, noEnv)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resolved != configPath {
		t.Errorf("expected %q, got %q", configPath, resolved)
	}

	getenv := func(key string) string {
		if key == "TEXTSCRIPT_CONFIG" {
			return configPath
		}
		return ""
	}
	resolved, err = resolveConfigPath("", getenv)
	if err != nil || resolved != configPath {
		t.Errorf("expected %q from TEXTSCRIPT_CONFIG, got %q (%v)", configPath, resolved, err)
	}

	missing := func(key string) string {
		if key == "TEXTSCRIPT_CONFIG" {
			return filepath.Join(dir, "missing.yaml")
		}
		return ""
	}
	if _, err := resolveConfigPath("", missing); err == nil {
		t.Error("expected error for a missing TEXTSCRIPT_CONFIG file")
	}
}

func TestApplyProfile(t *testing.T) {
	strict := true

	t.Run("applies overrides", func(t *testing.T) {
		cfg := Defaults()
		cfg.BaseDir = "/app"
		cfg.Profiles = map[string]ProfileConfig{
			"preview": {Root: "drafts", Strict: &strict, Logging: LoggingConfig{Level: "debug"}},
		}

		if err := ApplyProfile(cfg, "preview"); err != nil {
			t.Fatalf("ApplyProfile failed: %v", err)
		}
		if cfg.Loader.Root != filepath.Join("/app", "drafts") {
			t.Errorf("expected root %q, got %q", filepath.Join("/app", "drafts"), cfg.Loader.Root)
		}
		if !cfg.Render.Strict {
			t.Error("expected strict to be set")
		}
		if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
			t.Errorf("unexpected logging config: %+v", cfg.Logging)
		}
	})

	t.Run("unknown profile", func(t *testing.T) {
		cfg := Defaults()
		cfg.Profiles = map[string]ProfileConfig{"a": {}, "b": {}}
		err := ApplyProfile(cfg, "c")
		if err == nil || !strings.Contains(err.Error(), "available: a, b") {
			t.Errorf("expected a list of profiles, got %v", err)
		}
	})

	t.Run("no profiles", func(t *testing.T) {
		if err := ApplyProfile(Defaults(), "a"); err == nil {
			t.Error("expected an error without profiles")
		}
	})
}
