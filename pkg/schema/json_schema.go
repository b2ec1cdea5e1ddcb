// Package schema renders JSON schemas for configuration structs.
package schema

import (
	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

// ToJSONSchema converts a struct to a JSON schema keyed by its json tags.
func ToJSONSchema[T any](t T) (string, error) {
	return render(t, "", false)
}

// ToYAMLSchema converts a struct to an indented JSON schema keyed by its yaml
// tags, matching the field names of a YAML config file.
func ToYAMLSchema[T any](t T) (string, error) {
	return render(t, "yaml", true)
}

func render(t any, fieldTag string, indent bool) (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true

	if fieldTag != "" {
		r.FieldNameTag = fieldTag
	}

	s := r.Reflect(t)

	var (
		data []byte
		err  error
	)

	if indent {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = json.Marshal(s)
	}

	if err != nil {
		return "", err
	}

	return string(data), nil
}
