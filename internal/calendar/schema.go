package calendar

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const tableSchemaURL = "https://audiosched.local/schemas/calendar-table.schema.json"

// tableSchema describes a calendar table after key folding: a non-empty list
// of day records with integer month/day and string (or null) timestamps.
const tableSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["month", "day"],
    "properties": {
      "month": {"type": "integer", "minimum": 1, "maximum": 12},
      "day":   {"type": "integer", "minimum": 1, "maximum": 31}
    },
    "additionalProperties": {"type": ["string", "null"]}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(tableSchemaURL, strings.NewReader(tableSchema)); err != nil {
			schemaErr = fmt.Errorf("calendar schema load failed: %w", err)
			return
		}
		schema, schemaErr = c.Compile(tableSchemaURL)
	})
	return schema, schemaErr
}

func validateRecords(raw []any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := s.Validate(raw); err != nil {
		return fmt.Errorf("calendar table does not match schema: %w", err)
	}
	return nil
}
