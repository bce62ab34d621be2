// Package schema renders connector configuration structs as JSON schema documents.
package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/rxtech-lab/argo-connector/pkg/errors"
)

// ToJSONSchema converts a config struct to an inlined JSON schema.
// Field titles, descriptions and bounds come from the jsonschema struct tags.
func ToJSONSchema[T any](t T) (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(t)

	jsonSchemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to render config schema", err)
	}

	return string(jsonSchemaBytes), nil
}
