package component

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// durationPattern matches the strings time.ParseDuration accepts for
// non-negative durations.
const durationPattern = `^([0-9]+(\.[0-9]*)?|\.[0-9]+)(ns|us|µs|ms|s|m|h)(([0-9]+(\.[0-9]*)?|\.[0-9]+)(ns|us|µs|ms|s|m|h))*$|^0$`

// ValidationError represents a validation error for a specific configuration field.
//
// Codes: "required", "type", "enum", "min", "max".
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// JSONSchema renders schema as a draft-07 JSON Schema document. Unknown
// properties are allowed.
func JSONSchema(schema ConfigSchema) map[string]any {
	props := make(map[string]any, len(schema.Properties))
	for name, prop := range schema.Properties {
		props[name] = propertyJSONSchema(prop)
	}

	doc := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
	if len(schema.Required) > 0 {
		doc["required"] = slices.Clone(schema.Required)
	}
	return doc
}

func propertyJSONSchema(prop PropertySchema) map[string]any {
	out := map[string]any{}
	if prop.Description != "" {
		out["description"] = prop.Description
	}
	if prop.Default != nil {
		out["default"] = prop.Default
	}

	switch prop.Type {
	case "string":
		out["type"] = "string"
	case "enum":
		out["type"] = "string"
	case "int":
		out["type"] = "integer"
	case "float":
		out["type"] = "number"
	case "bool":
		out["type"] = "boolean"
	case "duration":
		// Seconds as a number, or a Go duration string.
		out["type"] = []string{"number", "string"}
		out["pattern"] = durationPattern
	case "object", "ports":
		out["type"] = "object"
	}

	if len(prop.Enum) > 0 {
		out["enum"] = slices.Clone(prop.Enum)
	}
	if prop.Minimum != nil {
		out["minimum"] = *prop.Minimum
	}
	if prop.Maximum != nil {
		out["maximum"] = *prop.Maximum
	}
	return out
}

// ValidateConfig validates a decoded configuration map against a schema.
// Null values count as absent. Errors are returned sorted by field name,
// at most one per field.
func ValidateConfig(config map[string]any, schema ConfigSchema) []ValidationError {
	doc := maps.Clone(config)
	if doc == nil {
		doc = map[string]any{}
	}
	maps.DeleteFunc(doc, func(_ string, v any) bool { return v == nil })

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(JSONSchema(schema)),
		gojsonschema.NewGoLoader(doc))
	if err != nil {
		return []ValidationError{{Field: "(root)", Message: err.Error(), Code: "type"}}
	}
	if result.Valid() {
		return nil
	}

	seen := make(map[string]bool)
	var errs []ValidationError
	for _, desc := range result.Errors() {
		verr, ok := fromResultError(desc, schema)
		if !ok || seen[verr.Field] {
			continue
		}
		seen[verr.Field] = true
		errs = append(errs, verr)
	}

	slices.SortStableFunc(errs, func(a, b ValidationError) int {
		return cmp.Compare(a.Field, b.Field)
	})
	return errs
}

func fromResultError(desc gojsonschema.ResultError, schema ConfigSchema) (ValidationError, bool) {
	field := desc.Field()
	if desc.Type() == "required" {
		field, _ = desc.Details()["property"].(string)
	}
	field = strings.TrimPrefix(field, "(root).")
	prop := schema.Properties[field]

	switch desc.Type() {
	case "required":
		return ValidationError{Field: field, Message: fmt.Sprintf("Field %q is required", field), Code: "required"}, true
	case "invalid_type", "pattern":
		return ValidationError{Field: field, Message: fmt.Sprintf("Field %q must be %s", field, typeDescription(prop.Type)), Code: "type"}, true
	case "enum":
		return ValidationError{Field: field, Message: fmt.Sprintf("Field %q must be one of: %v", field, prop.Enum), Code: "enum"}, true
	case "number_gte":
		return ValidationError{Field: field, Message: fmt.Sprintf("Field %q must be >= %d", field, deref(prop.Minimum)), Code: "min"}, true
	case "number_lte":
		return ValidationError{Field: field, Message: fmt.Sprintf("Field %q must be <= %d", field, deref(prop.Maximum)), Code: "max"}, true
	default:
		return ValidationError{Field: field, Message: desc.Description(), Code: "type"}, true
	}
}

func typeDescription(t string) string {
	switch t {
	case "string", "enum":
		return "a string"
	case "int":
		return "an integer"
	case "float":
		return "a number"
	case "bool":
		return "a boolean"
	case "duration":
		return "a number of seconds or a duration string"
	case "object", "ports":
		return "an object"
	default:
		return "a valid " + t
	}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// SortedPropertyNames returns the schema's property names in order
func SortedPropertyNames(schema ConfigSchema) []string {
	return slices.Sorted(maps.Keys(schema.Properties))
}
