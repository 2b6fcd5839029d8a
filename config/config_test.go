package config

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStringOrSlice_SingleString(t *testing.T) {
	yamlData := `extensions: ".html"`

	var config struct {
		Extensions StringOrSlice `yaml:"extensions"`
	}
	if err := yaml.Unmarshal([]byte(yamlData), &config); err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if len(config.Extensions) != 1 || config.Extensions[0] != ".html" {
		t.Errorf("Expected [.html], got %v", config.Extensions)
	}
}

func TestStringOrSlice_MultipleStrings(t *testing.T) {
	yamlData := `
extensions:
  - .html
  - .txt
`
	var config struct {
		Extensions StringOrSlice `yaml:"extensions"`
	}
	if err := yaml.Unmarshal([]byte(yamlData), &config); err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if len(config.Extensions) != 2 || config.Extensions[1] != ".txt" {
		t.Errorf("Expected [.html .txt], got %v", config.Extensions)
	}
}

func TestSecretStringUnmarshal(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		wantValue  string
		wantSecret bool
	}{
		{"plain string", "key: plainvalue", "plainvalue", false},
		{"secret string", "key: !secret mysecret", "mysecret", true},
		{"empty secret", "key: !secret \"\"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result struct {
				Key SecretString `yaml:"key"`
			}
			if err := yaml.Unmarshal([]byte(tt.yaml), &result); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if result.Key.Value() != tt.wantValue {
				t.Errorf("value = %q, want %q", result.Key.Value(), tt.wantValue)
			}
			if result.Key.IsSecret() != tt.wantSecret {
				t.Errorf("isSecret = %v, want %v", result.Key.IsSecret(), tt.wantSecret)
			}
		})
	}
}

func TestSecretStringRedaction(t *testing.T) {
	s := NewSecretString("hunter2")
	if s.String() != "[hidden]" {
		t.Errorf("expected [hidden], got %q", s.String())
	}
	if s.LogValue().String() != "[hidden]" {
		t.Errorf("expected [hidden] in logs, got %q", s.LogValue().String())
	}

	out, err := yaml.Marshal(struct {
		Key SecretString `yaml:"key"`
	}{s})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(out), "!secret hunter2") {
		t.Errorf("expected the !secret tag to be kept, got %q", out)
	}

	plain := SecretString{value: "visible"}
	if plain.String() != "visible" {
		t.Errorf("expected visible, got %q", plain.String())
	}
}
