package config

import "time"

// Config represents the complete textscript CLI configuration
type Config struct {
	BaseDir  string                   `yaml:"-"` // Directory containing config file, for resolving relative paths
	Render   RenderConfig             `yaml:"render"`
	Loader   LoaderConfig             `yaml:"loader"`
	Logging  LoggingConfig            `yaml:"logging"`
	Model    string                   `yaml:"model"`    // Default YAML model file
	Profiles map[string]ProfileConfig `yaml:"profiles"` // Named profiles for per-environment overrides
}

// ProfileConfig holds per-profile overrides
// All fields are optional - only non-zero values override the base config
type ProfileConfig struct {
	Root    string        `yaml:"root"`   // Override loader.root
	Model   string        `yaml:"model"`  // Override model
	Strict  *bool         `yaml:"strict"` // Override render.strict
	Logging LoggingConfig `yaml:"logging"`
}

// RenderConfig holds evaluation settings
type RenderConfig struct {
	Strict         bool          `yaml:"strict"`          // Unknown variables and members are errors
	Liquid         bool          `yaml:"liquid"`          // Parse templates as Liquid
	LoopLimit      int           `yaml:"loop_limit"`      // Total loop iterations per render (0 = unlimited)
	RecursiveLimit int           `yaml:"recursive_limit"` // Nesting of calls and includes (0 = unlimited)
	Timeout        time.Duration `yaml:"timeout"`         // Render deadline (0 = none)
	Culture        string        `yaml:"culture"`         // BCP 47 tag for number and date formatting
	DateFormat     string        `yaml:"date_format"`     // Go layout for dates
	Trivia         bool          `yaml:"trivia"`          // Keep whitespace and comments for round-tripping
}

// LoaderConfig selects where includes come from
type LoaderConfig struct {
	Kind       string        `yaml:"kind"`       // fs (default), sql, sftp or memory
	Root       string        `yaml:"root"`       // Template directory for fs and sftp
	Watch      bool          `yaml:"watch"`      // Drop cached templates when files change (fs only)
	Extensions StringOrSlice `yaml:"extensions"` // Tried in order for names without one
	Cache      CacheConfig   `yaml:"cache"`
	SQL        SQLConfig     `yaml:"sql"`
	SFTP       SFTPConfig    `yaml:"sftp"`
}

// CacheConfig holds loader content cache settings
type CacheConfig struct {
	Size int           `yaml:"size"` // Maximum cached templates
	TTL  time.Duration `yaml:"ttl"`  // Time before a cached template is reloaded
}

// SQLConfig holds settings for templates stored in a database
type SQLConfig struct {
	Driver string       `yaml:"driver"` // sqlite, postgres or mysql
	DSN    SecretString `yaml:"dsn"`
	Table  string       `yaml:"table"`
}

// SFTPConfig holds settings for templates on an SFTP server
type SFTPConfig struct {
	Addr       string        `yaml:"addr"` // host:port
	User       string        `yaml:"user"`
	Password   SecretString  `yaml:"password"`
	KeyFile    string        `yaml:"key_file"`
	Passphrase SecretString  `yaml:"passphrase"`
	KnownHosts string        `yaml:"known_hosts"` // known_hosts file; host keys are not checked when empty
	Timeout    time.Duration `yaml:"timeout"`
}

// StringOrSlice supports YAML fields that can be either a string or a slice of strings
type StringOrSlice []string

// UnmarshalYAML implements yaml.Unmarshaler to handle both string and []string
func (s *StringOrSlice) UnmarshalYAML(unmarshal func(any) error) error {
	var single string
	if err := unmarshal(&single); err == nil {
		*s = []string{single}
		return nil
	}

	var slice []string
	if err := unmarshal(&slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stderr, stdout, or file path
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Render: RenderConfig{
			LoopLimit:      1000,
			RecursiveLimit: 100,
			Timeout:        30 * time.Second,
			Trivia:         true,
		},
		Loader: LoaderConfig{
			Kind:       "fs",
			Root:       ".",
			Extensions: StringOrSlice{".html", ".txt", ".tscript"},
			Cache: CacheConfig{
				Size: 256,
				TTL:  10 * time.Minute,
			},
			SQL: SQLConfig{
				Driver: "sqlite",
				Table:  "templates",
			},
			SFTP: SFTPConfig{
				Timeout: 30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
	}
}
