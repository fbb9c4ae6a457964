package utils

import "github.com/invopop/jsonschema"

// GenerateSchema reflects T into the JSON schema attached to structured
// classifier requests. The schema is strict (no additional properties) and
// fully inlined, since response_format schemas cannot resolve references.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}
