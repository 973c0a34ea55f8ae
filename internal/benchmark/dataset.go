package benchmark

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/normanking/quadrant/internal/quadrant"
)

//go:embed data/eisenhower_v1.json
var defaultDataset []byte

//go:embed data/schema.json
var datasetSchema []byte

const schemaURL = "benchmark-dataset.json"

// Case is one labelled task description.
type Case struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Expected quadrant.Quadrant `json:"quadrant"`
	Notes    string            `json:"notes,omitempty"`
}

// Dataset is a versioned set of cases.
type Dataset struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Cases       []Case `json:"cases"`
}

// Label returns "name@version".
func (d *Dataset) Label() string {
	return d.Name + "@v" + d.Version
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(datasetSchema)); err != nil {
			schemaErr = fmt.Errorf("add dataset schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// DefaultDataset returns the embedded dataset.
func DefaultDataset() (*Dataset, error) {
	return ParseDataset(defaultDataset)
}

// LoadDataset reads and validates a dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	ds, err := ParseDataset(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ParseDataset validates data against the dataset schema and decodes it.
func ParseDataset(data []byte) (*Dataset, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("dataset failed schema validation: %w", err)
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	seen := make(map[string]bool, len(ds.Cases))
	for i := range ds.Cases {
		c := &ds.Cases[i]
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate case id %q", c.ID)
		}
		seen[c.ID] = true
		c.Text = strings.TrimSpace(c.Text)
	}
	return &ds, nil
}

// Filter returns the cases whose expected quadrant is in qs.
func (d *Dataset) Filter(qs ...quadrant.Quadrant) []Case {
	want := make(map[quadrant.Quadrant]bool, len(qs))
	for _, q := range qs {
		want[q] = true
	}
	var out []Case
	for _, c := range d.Cases {
		if want[c.Expected] {
			out = append(out, c)
		}
	}
	return out
}
