// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Galacticfy Contributors

package seed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the roles file schema.
const SchemaID = "https://galacticfy.dev/schemas/roles.schema.json"

var compiled = sync.OnceValues(compileSchema)

// GenerateSchema returns the roles file JSON Schema, reflected from File.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&File{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Galacticfy Roles File"
	schema.Description = "Declarative roles, grants and inheritance for the permission engine"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("seed").Wrapf(err, "marshal schema")
	}
	return data, nil
}

func compileSchema() (*jschema.Schema, error) {
	data, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.In("seed").Wrapf(err, "parse schema")
	}

	c := jschema.NewCompiler()
	if err := c.AddResource(SchemaID, doc); err != nil {
		return nil, oops.In("seed").Wrapf(err, "add schema resource")
	}
	sch, err := c.Compile(SchemaID)
	if err != nil {
		return nil, oops.In("seed").Wrapf(err, "compile schema")
	}
	return sch, nil
}

// ValidateSchema validates YAML data against the roles file schema.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.In("seed").Code(CodeSchemaInvalid).Wrapf(err, "invalid YAML")
	}

	sch, err := compiled()
	if err != nil {
		return err
	}
	if err := sch.Validate(jsonTypes(doc)); err != nil {
		return oops.In("seed").Code(CodeSchemaInvalid).Wrapf(err, "schema validation failed")
	}
	return nil
}

// jsonTypes normalizes decoded YAML into plain JSON values. Scalars the
// validator does not know, such as timestamps, go through a JSON round trip.
func jsonTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonTypes(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonTypes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonTypes(item)
		}
		return out
	case string, bool, int, int64, float64, nil:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return val
		}
		return out
	}
}
