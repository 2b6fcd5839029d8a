package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations; when none exists
// the defaults are returned.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the
// resolved path, which is empty when the defaults were used.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		cfg := Defaults()
		cfg.BaseDir, _ = os.Getwd()
		return cfg, "", nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data, filepath.Dir(absPath), getenv)
	if err != nil {
		return nil, "", err
	}
	return cfg, absPath, nil
}

// Parse decodes YAML configuration over the defaults. Relative paths are
// resolved against baseDir.
func Parse(data []byte, baseDir string, getenv func(string) string) (*Config, error) {
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.BaseDir = baseDir

	if cfg.Loader.Kind == "fs" || cfg.Loader.Kind == "" {
		cfg.Loader.Root = cfg.resolve(cfg.Loader.Root)
	}
	cfg.Model = cfg.resolve(cfg.Model)
	cfg.Loader.SFTP.KeyFile = cfg.resolve(cfg.Loader.SFTP.KeyFile)
	cfg.Loader.SFTP.KnownHosts = cfg.resolve(cfg.Loader.SFTP.KnownHosts)
	if cfg.Loader.Kind == "sql" && cfg.Loader.SQL.Driver == "sqlite" {
		dsn := cfg.Loader.SQL.DSN
		if v := dsn.Value(); v != "" && v != ":memory:" && !strings.HasPrefix(v, "file:") {
			dsn.value = cfg.resolve(v)
			cfg.Loader.SQL.DSN = dsn
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || cfg.BaseDir == "" {
		return p
	}
	return filepath.Join(cfg.BaseDir, p)
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > TEXTSCRIPT_CONFIG env > ./textscript.yaml > ~/.config/textscript/textscript.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := getenv("TEXTSCRIPT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("TEXTSCRIPT_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat("textscript.yaml"); err == nil {
		return "textscript.yaml", nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "textscript", "textscript.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Render.LoopLimit < 0 {
		errs = append(errs, fmt.Sprintf("render.loop_limit: %d must not be negative", cfg.Render.LoopLimit))
	}
	if cfg.Render.RecursiveLimit < 0 {
		errs = append(errs, fmt.Sprintf("render.recursive_limit: %d must not be negative", cfg.Render.RecursiveLimit))
	}
	if cfg.Render.Timeout < 0 {
		errs = append(errs, "render.timeout must not be negative")
	}
	if cfg.Render.Culture != "" {
		if _, err := language.Parse(cfg.Render.Culture); err != nil {
			errs = append(errs, fmt.Sprintf("render.culture: invalid language tag %q", cfg.Render.Culture))
		}
	}

	switch cfg.Loader.Kind {
	case "fs", "":
		if cfg.Loader.Root == "" {
			errs = append(errs, "loader.root is required for the fs loader")
		}
	case "memory":
	case "sql":
		if !slices.Contains([]string{"sqlite", "postgres", "mysql"}, cfg.Loader.SQL.Driver) {
			errs = append(errs, fmt.Sprintf("loader.sql.driver: %q (must be sqlite, postgres, or mysql)", cfg.Loader.SQL.Driver))
		}
		if cfg.Loader.SQL.DSN.Value() == "" {
			errs = append(errs, "loader.sql.dsn is required for the sql loader")
		}
	case "sftp":
		if cfg.Loader.SFTP.Addr == "" {
			errs = append(errs, "loader.sftp.addr is required for the sftp loader")
		}
		if cfg.Loader.SFTP.Password.Value() == "" && cfg.Loader.SFTP.KeyFile == "" {
			errs = append(errs, "loader.sftp requires a password or key_file")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid loader.kind: %s (must be fs, sql, sftp, or memory)", cfg.Loader.Kind))
	}
	if cfg.Loader.Watch && cfg.Loader.Kind != "fs" && cfg.Loader.Kind != "" {
		errs = append(errs, "loader.watch is only supported by the fs loader")
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Logging.Level) {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be trace, debug, info, warn, or error)", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be json or text)", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ApplyProfile applies a named profile to the configuration.
// Only non-zero values in the profile override the base config.
// Returns an error if the profile name doesn't exist.
func ApplyProfile(cfg *Config, profileName string) error {
	if cfg.Profiles == nil {
		return fmt.Errorf("no profiles defined in config")
	}

	p, ok := cfg.Profiles[profileName]
	if !ok {
		var names []string
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		slices.Sort(names)
		return fmt.Errorf("unknown profile %q (available: %s)", profileName, strings.Join(names, ", "))
	}

	if p.Root != "" {
		cfg.Loader.Root = cfg.resolve(p.Root)
	}
	if p.Model != "" {
		cfg.Model = cfg.resolve(p.Model)
	}
	if p.Strict != nil {
		cfg.Render.Strict = *p.Strict
	}
	if p.Logging.Level != "" {
		cfg.Logging.Level = p.Logging.Level
	}
	if p.Logging.Format != "" {
		cfg.Logging.Format = p.Logging.Format
	}
	if p.Logging.Output != "" {
		cfg.Logging.Output = p.Logging.Output
	}

	return Validate(cfg)
}
