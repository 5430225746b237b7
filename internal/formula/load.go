package formula

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

//go:embed formula.schema.json
var rawSchema string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("formula.schema.json", rawSchema)
	})
	return schema, schemaErr
}

// LoadFile reads, validates and decodes the formula at the given path.
func LoadFile(log *zap.Logger, path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("No formula file at path.", zap.String("path", path))
		return nil, fmt.Errorf("%w: no formula file at %q", ErrUnknownFormula, path)
	} else if err != nil {
		log.Error("Could not read formula file.", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("failed to read formula file %q: %w", path, err)
	}
	return Parse(log, raw, path)
}

// Parse validates the raw YAML content against the formula schema before strictly decoding it. The
// origin is only used for reporting.
func Parse(log *zap.Logger, raw []byte, origin string) (*Descriptor, error) {
	log = log.With(zap.String("origin", origin))

	s, err := compiledSchema()
	if err != nil {
		log.Error("Failed to compile the formula schema.", zap.Error(err))
		return nil, fmt.Errorf("failed to compile formula schema: %w", err)
	}

	jsonContent, err := yaml.YAMLToJSON(raw)
	if err != nil {
		log.Error("Formula is not valid YAML.", zap.Error(err))
		return nil, fmt.Errorf("%w: %s is not valid YAML: %v", ErrInvalidFormula, origin, err)
	}
	var doc interface{}
	if err = json.Unmarshal(jsonContent, &doc); err != nil {
		log.Error("Could not convert formula content for schema validation.", zap.Error(err))
		return nil, fmt.Errorf("%w: %s could not be converted for validation: %v", ErrInvalidFormula, origin, err)
	}
	if err = s.Validate(doc); err != nil {
		log.Error("Formula does not match the formula schema.", zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFormula, origin, err)
	}

	var d Descriptor
	if err = yaml.UnmarshalWithOptions(raw, &d, yaml.Strict()); err != nil {
		log.Error("Failed to decode formula.", zap.Error(err))
		return nil, fmt.Errorf("%w: %s could not be decoded: %v", ErrInvalidFormula, origin, err)
	}
	d.Origin = origin

	if err = d.Validate(); err != nil {
		log.Error("Formula is invalid.", zap.Error(err))
		return nil, err
	}
	log.Debug("Loaded formula.", zap.Stringer("formula", &d))
	return &d, nil
}
