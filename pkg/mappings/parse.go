package mappings

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentstation/dbmerger/pkg/errors"
)

// schemaURL is the resource name the mapping schema is registered under.
const schemaURL = "dbmerger://mappings.schema.json"

// Schema is the JSON schema a raw mapping document must satisfy.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "dbmerger field mappings",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["destination", "sources"],
    "properties": {
      "destination": {"type": "string", "minLength": 1},
      "sources": {
        "type": "array",
        "minItems": 1,
        "items": {"type": "string", "minLength": 1}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaErr      error
	compiledSchema *jsonschema.Schema
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(Schema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ParseJSON parses the raw JSON mapping parameter, e.g.
//
//	[{"sources": ["Author", "Auteur"], "destination": "Auteur-merged"}]
//
// An empty string yields an empty set. Parsing does not check destination
// uniqueness; call Set.Validate for that.
func ParseJSON(raw string) (Set, error) {
	if strings.TrimSpace(raw) == "" {
		return Set{}, nil
	}
	return decode([]byte(raw), "json", "")
}

// ParseYAML parses a YAML mapping document. The document is either a list
// of mappings or a map with a top-level "mappings" key.
func ParseYAML(data []byte) (Set, error) {
	return parseYAML(data, "")
}

func parseYAML(data []byte, file string) (Set, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Set{}, nil
	}
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, errors.WrapParse("yaml", file, err)
	}
	return decode(jsonData, "yaml", file)
}

// LoadFile reads mappings from a .json, .yaml or .yml file.
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from user configuration
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return decode(data, "json", path)
	}
	return parseYAML(data, path)
}

// decode validates a JSON document against Schema and converts it to a Set.
func decode(data []byte, format, file string) (Set, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.WrapParse(format, file, err)
	}

	if wrapper, ok := doc.(map[string]any); ok {
		inner, found := wrapper["mappings"]
		if !found {
			return nil, errors.NewParseError(format, file, `expected a list of mappings or a "mappings" key`, nil)
		}
		doc = inner
	}
	if doc == nil {
		return Set{}, nil
	}

	sch, err := loadSchema()
	if err != nil {
		return nil, errors.NewConfigError("mappings", "compile schema", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, errors.NewParseError(format, file, err.Error(), err)
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.WrapParse(format, file, err)
	}
	var set Set
	if err := json.Unmarshal(normalized, &set); err != nil {
		return nil, errors.WrapParse(format, file, err)
	}
	return set.Trim(), nil
}

// JSON renders the set in the raw JSON parameter form.
func (s Set) JSON() (string, error) {
	if s == nil {
		s = Set{}
	}
	data, err := json.Marshal([]FieldMapping(s))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
