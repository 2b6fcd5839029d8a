package config

import (
	"log/slog"

	"gopkg.in/yaml.v3"
)

// SecretString wraps a string value that should be treated as sensitive.
// Values tagged !secret are hidden in logs and String output.
type SecretString struct {
	value    string
	isSecret bool
}

// NewSecretString creates a new SecretString with the given value.
func NewSecretString(value string) SecretString {
	return SecretString{value: value, isSecret: true}
}

// Value returns the actual secret value.
func (s SecretString) Value() string {
	return s.value
}

// IsSecret returns true if this value should be treated as sensitive.
func (s SecretString) IsSecret() bool {
	return s.isSecret
}

// String returns a redacted representation for logging.
func (s SecretString) String() string {
	if s.isSecret && s.value != "" {
		return "[hidden]"
	}
	return s.value
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// UnmarshalYAML implements yaml.Unmarshaler to handle the !secret tag.
func (s *SecretString) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!secret" {
		s.isSecret = true
	}

	var value string
	if err := node.Decode(&value); err != nil {
		return err
	}
	s.value = value
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s SecretString) MarshalYAML() (any, error) {
	if s.isSecret {
		return &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!secret",
			Value: s.value,
		}, nil
	}
	return s.value, nil
}
