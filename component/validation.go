package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/journaldconcat/errors"
)

// Limits applied to raw component configuration
const (
	MaxStringLength = 4096
	MaxJSONSize     = 1 << 20
	maxDepth        = 10
	maxArraySize    = 1000
)

// ValidateFactoryConfig rejects oversized, deeply nested or malformed JSON
// before it reaches a factory. Empty config is valid.
func ValidateFactoryConfig(rawConfig json.RawMessage) error {
	if len(rawConfig) > MaxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(rawConfig), MaxJSONSize),
			"ConfigValidator", "ValidateConfig", "size check")
	}
	if len(rawConfig) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(rawConfig))
	decoder.UseNumber()

	var config any
	if err := decoder.Decode(&config); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateConfig", "JSON parsing")
	}

	return validateValue(config, 0)
}

func validateValue(value any, depth int) error {
	if depth > maxDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, maxDepth),
			"ConfigValidator", "validateValue", "depth check")
	}

	switch val := value.(type) {
	case string:
		return validateString(val)

	case []any:
		if len(val) > maxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), maxArraySize),
				"ConfigValidator", "validateValue", "array size check")
		}
		for i, elem := range val {
			if err := validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("array element %d", i))
			}
		}

	case map[string]any:
		for key, elem := range val {
			if err := validateString(key); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", "key validation")
			}
			if err := validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("object field '%s'", key))
			}
		}
	}

	return nil
}

func validateString(s string) error {
	if len(s) > MaxStringLength {
		return errors.WrapInvalid(
			fmt.Errorf("string length %d exceeds maximum %d", len(s), MaxStringLength),
			"ConfigValidator", "validateString", "length check")
	}
	if strings.Contains(s, "\x00") {
		return errors.WrapInvalid(fmt.Errorf("string contains null byte"),
			"ConfigValidator", "validateString", "null byte check")
	}
	return nil
}
