package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_seed.yaml
var defaultSeed []byte

// Seed holds initial personas, routing and route definitions.
type Seed struct {
	Personas []SeedPersona `yaml:"personas"`
	Routing  []SeedRouting `yaml:"routing"`
	Routes   []SeedRoute   `yaml:"routes"`
}

// SeedPersona is the initial persona for an eye.
type SeedPersona struct {
	Eye     string `yaml:"eye"`
	Content string `yaml:"content"`
}

// SeedRouting is the initial routing entry for an eye.
type SeedRouting struct {
	Eye              string   `yaml:"eye"`
	PrimaryProvider  string   `yaml:"primary_provider"`
	PrimaryModel     string   `yaml:"primary_model"`
	FallbackProvider string   `yaml:"fallback_provider"`
	FallbackModel    string   `yaml:"fallback_model"`
	Temperature      *float64 `yaml:"temperature"`
	MaxTokens        *int     `yaml:"max_tokens"`
}

// SeedRoute is an initial pipeline definition.
type SeedRoute struct {
	Name  string   `yaml:"name"`
	Steps []string `yaml:"steps"`
	Entry []string `yaml:"entry"`
}

// LoadSeed reads seed data from path, or the embedded default when path is empty.
func LoadSeed(path string) (*Seed, error) {
	data := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading seed file: %w", err)
		}
		data = b
	}
	return ParseSeed(data)
}

// ParseSeed parses YAML seed data and validates it.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	for i, p := range seed.Personas {
		if p.Eye == "" {
			return nil, fmt.Errorf("persona %d: eye is required", i)
		}
	}
	for i, r := range seed.Routing {
		if r.Eye == "" || r.PrimaryProvider == "" || r.PrimaryModel == "" {
			return nil, fmt.Errorf("routing %d: eye, primary_provider and primary_model are required", i)
		}
		if (r.FallbackProvider == "") != (r.FallbackModel == "") {
			return nil, fmt.Errorf("routing %s: fallback_provider and fallback_model must be set together", r.Eye)
		}
	}
	for i, r := range seed.Routes {
		if r.Name == "" || len(r.Steps) == 0 {
			return nil, fmt.Errorf("route %d: name and steps are required", i)
		}
	}
	return &seed, nil
}
