package documents

import (
	"embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.schema.json
var schemaFiles embed.FS

var (
	schemasOnce sync.Once
	schemas     map[Kind]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[Kind]*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		out := make(map[Kind]*gojsonschema.Schema, 2)
		for _, kind := range []Kind{KindResume, KindCoverLetter} {
			raw, err := schemaFiles.ReadFile("schemas/" + string(kind) + ".schema.json")
			if err != nil {
				schemasErr = fmt.Errorf("read %s schema: %w", kind, err)
				return
			}
			schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				schemasErr = fmt.Errorf("compile %s schema: %w", kind, err)
				return
			}
			out[kind] = schema
		}
		schemas = out
	})
	return schemas, schemasErr
}

// ValidateFormValues checks values against the kind's schema. Failures wrap ErrInvalidInput.
func ValidateFormValues(kind Kind, values map[string]any) error {
	if !kind.Valid() {
		return invalid(fmt.Sprintf("unknown document kind %q", kind))
	}
	if values == nil {
		return invalid("formValues is required")
	}
	compiled, err := loadSchemas()
	if err != nil {
		return err
	}

	res, err := compiled[kind].Validate(gojsonschema.NewGoLoader(values))
	if err != nil {
		return invalid(fmt.Sprintf("formValues could not be read: %v", err))
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return invalid(problems...)
}
