// Package prompts maps named prompt strategies to rendered classification
// prompts and recovers structured classifications from raw model output.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed static/strategies.yaml
var strategiesYAML []byte

// Strategy identifies a prompt formulation.
type Strategy string

const (
	Baseline       Strategy = "baseline"
	Structured     Strategy = "structured"
	ChainOfThought Strategy = "chain_of_thought"
	FewShot        Strategy = "few_shot"
	Persona        Strategy = "persona"
	Combined       Strategy = "combined"
)

// Example is a labeled task rendered into few-shot templates.
type Example struct {
	Text      string `yaml:"text"`
	Label     string `yaml:"label"`
	Reasoning string `yaml:"reasoning"`
}

// Definition describes one strategy.
type Definition struct {
	ID          Strategy `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Template    string   `yaml:"template"`

	tmpl *template.Template
}

type yamlFile struct {
	Version    int          `yaml:"version"`
	Examples   []Example    `yaml:"examples"`
	Strategies []Definition `yaml:"strategies"`
}

// Store holds the parsed strategy table.
type Store struct {
	version  int
	examples []Example
	order    []Strategy
	defs     map[Strategy]*Definition
}

// templateData is what every strategy template renders against.
type templateData struct {
	Task     string
	Examples []Example
}

// Load parses a strategy table from YAML.
func Load(data []byte) (*Store, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}

	s := &Store{
		version:  f.Version,
		examples: f.Examples,
		defs:     make(map[Strategy]*Definition, len(f.Strategies)),
	}
	for i := range f.Strategies {
		def := f.Strategies[i]
		if def.ID == "" {
			return nil, fmt.Errorf("strategy %d has no id", i)
		}
		if _, dup := s.defs[def.ID]; dup {
			return nil, fmt.Errorf("duplicate strategy %q", def.ID)
		}
		tmpl, err := template.New(string(def.ID)).Option("missingkey=error").Parse(def.Template)
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", def.ID, err)
		}
		def.tmpl = tmpl
		s.defs[def.ID] = &def
		s.order = append(s.order, def.ID)
	}
	return s, nil
}

var (
	defaultStore     *Store
	defaultStoreErr  error
	defaultStoreOnce sync.Once
)

// Default returns the embedded strategy table.
func Default() *Store {
	defaultStoreOnce.Do(func() {
		defaultStore, defaultStoreErr = Load(strategiesYAML)
	})
	if defaultStoreErr != nil {
		// The table is compiled into the binary; a parse error is a build defect.
		panic(defaultStoreErr)
	}
	return defaultStore
}

// Version returns the table version.
func (s *Store) Version() int { return s.version }

// Strategies returns strategy ids in table order.
func (s *Store) Strategies() []Strategy {
	return append([]Strategy(nil), s.order...)
}

// Definition returns the definition for id.
func (s *Store) Definition(id Strategy) (Definition, bool) {
	def, ok := s.defs[id]
	if !ok {
		return Definition{}, false
	}
	return *def, true
}

// Has checks if a strategy exists.
func (s *Store) Has(id Strategy) bool {
	_, ok := s.defs[id]
	return ok
}

// Build renders the prompt for task under strategy.
func (s *Store) Build(id Strategy, task string) (string, error) {
	def, ok := s.defs[id]
	if !ok {
		return "", fmt.Errorf("unknown strategy %q", id)
	}
	task = strings.Join(strings.Fields(task), " ")
	if task == "" {
		return "", fmt.Errorf("strategy %q: empty task", id)
	}

	var buf bytes.Buffer
	if err := def.tmpl.Execute(&buf, templateData{Task: task, Examples: s.examples}); err != nil {
		return "", fmt.Errorf("render %q: %w", id, err)
	}
	return buf.String(), nil
}

// Build renders task with the embedded strategy table.
func Build(id Strategy, task string) (string, error) {
	return Default().Build(id, task)
}

// ParseStrategy resolves a strategy id, accepting hyphenated spellings
// such as "chain-of-thought" or "few-shot".
func ParseStrategy(s string) (Strategy, error) {
	id := Strategy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if id == "structured_output" {
		id = Structured
	}
	if !Default().Has(id) {
		return "", fmt.Errorf("unknown strategy %q (known: %v)", s, Default().Strategies())
	}
	return id, nil
}
