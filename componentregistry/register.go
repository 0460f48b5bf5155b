// Package componentregistry registers every component type journaldconcat
// ships with.
package componentregistry

import (
	"errors"

	"github.com/c360/journaldconcat/component"
	pkgerrors "github.com/c360/journaldconcat/errors"
	partialconcat "github.com/c360/journaldconcat/processor/partial_concat"
)

// Register registers all components with the provided registry:
//   - partial_concat processor (Docker partial message concatenation)
func Register(registry *component.Registry) error {
	// Nil registry is a programming error, not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	if err := partialconcat.Register(registry); err != nil {
		return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register",
			"partial_concat processor component registration")
	}

	return nil
}
