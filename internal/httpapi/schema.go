package httpapi

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	schemaTranslate = "translate.schema.json"
	schemaBatch     = "batch.schema.json"
	schemaDetect    = "detect.schema.json"
	schemaReset     = "reset.schema.json"
)

//go:embed schemas/*.schema.json
var schemaFiles embed.FS

var (
	compileOnce     sync.Once
	compiledSchemas map[string]*jsonschema.Schema
	compileErr      error
)

// bodyError is a request body that failed decoding or schema validation.
type bodyError struct {
	Fields map[string]string
}

func (e *bodyError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, field+": "+reason)
	}
	return "invalid request body: " + strings.Join(parts, "; ")
}

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		names := []string{schemaTranslate, schemaBatch, schemaDetect, schemaReset}
		for _, name := range names {
			raw, err := schemaFiles.ReadFile("schemas/" + name)
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
				compileErr = fmt.Errorf("add schema resource %s: %w", name, err)
				return
			}
		}

		schemas := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			schema, err := compiler.Compile(name)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			schemas[name] = schema
		}
		compiledSchemas = schemas
	})

	if compileErr != nil {
		return nil, compileErr
	}
	return compiledSchemas, nil
}

// decodeValidated checks raw against the named schema and then decodes it
// into out. Schema failures come back as *bodyError.
func decodeValidated(raw []byte, schemaName string, out any) error {
	schemas, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema %q", schemaName)
	}

	value, err := decodeStrictJSON(raw)
	if err != nil {
		return &bodyError{Fields: map[string]string{"body": err.Error()}}
	}

	if err := schema.Validate(value); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			fields := map[string]string{}
			collectSchemaErrors(validationErr, fields)
			return &bodyError{Fields: fields}
		}
		return fmt.Errorf("validate request body: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &bodyError{Fields: map[string]string{"body": err.Error()}}
	}
	return nil
}

func collectSchemaErrors(ve *jsonschema.ValidationError, out map[string]string) {
	if len(ve.Causes) == 0 {
		field := strings.ReplaceAll(strings.TrimPrefix(ve.InstanceLocation, "/"), "/", ".")
		if field == "" {
			field = "body"
		}
		if _, exists := out[field]; !exists {
			out[field] = ve.Message
		}
		return
	}
	for _, cause := range ve.Causes {
		collectSchemaErrors(cause, out)
	}
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("request body is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("malformed JSON: %v", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("request body contains trailing content")
	}
	return value, nil
}
