package slo

import (
	goerrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Validator checks declared SLO files against the JSON schema plus the
// typed field validation of Definition.Validate.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator creates a new validator with the given schema file.
func NewValidator(schemaPath string) (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateDirectory loads and validates all SLO files in a directory.
func (v *Validator) ValidateDirectory(dirPath string) []FileError {
	docs, loadErrors := LoadFromDirectory(dirPath)

	var allErrors []FileError
	allErrors = append(allErrors, loadErrors...)

	if len(docs) == 0 {
		return allErrors
	}

	for _, doc := range docs {
		allErrors = append(allErrors, v.ValidateDocument(doc.File, doc.Document)...)
	}

	allErrors = append(allErrors, checkDuplicateIDs(docs)...)

	return allErrors
}

// ValidateDocument validates a single document against the JSON schema and
// the typed field rules.
func (v *Validator) ValidateDocument(file string, doc *Document) []FileError {
	var errors []FileError

	// Round-trip through YAML to get the generic structure the schema
	// validator expects.
	yamlBytes, err := yaml.Marshal(doc)
	if err != nil {
		errors = append(errors, FileError{
			File:    file,
			Message: fmt.Sprintf("failed to marshal document: %v", err),
		})
		return errors
	}

	var jsonData interface{}
	if err := yaml.Unmarshal(yamlBytes, &jsonData); err != nil {
		errors = append(errors, FileError{
			File:    file,
			Message: fmt.Sprintf("failed to convert to JSON: %v", err),
		})
		return errors
	}

	if err := v.schema.Validate(jsonData); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			errors = append(errors, extractSchemaErrors(file, validationErr)...)
		} else {
			errors = append(errors, FileError{
				File:    file,
				Message: err.Error(),
			})
		}
		return errors
	}

	// Field rules apply after the structural check passes.
	def := doc.Definition()
	if err := def.Validate(); err != nil {
		var vErr *ValidationError
		if goerrors.As(err, &vErr) {
			for _, f := range vErr.Fields {
				errors = append(errors, FileError{
					File:    file,
					Path:    f.Field,
					Message: f.Message,
				})
			}
		} else {
			errors = append(errors, FileError{File: file, Message: err.Error()})
		}
	}

	return errors
}

// extractSchemaErrors converts JSON schema validation errors to FileErrors.
func extractSchemaErrors(file string, err *jsonschema.ValidationError) []FileError {
	var errors []FileError

	path := strings.Join(err.InstanceLocation, ".")
	if path == "" {
		path = "(root)"
	}

	errors = append(errors, FileError{
		File:    file,
		Path:    path,
		Message: err.Error(),
	})

	for _, cause := range err.Causes {
		errors = append(errors, extractSchemaErrors(file, cause)...)
	}

	return errors
}

// checkDuplicateIDs rejects two files declaring the same metadata.id.
func checkDuplicateIDs(docs []DocumentWithFile) []FileError {
	var errors []FileError

	idSeen := make(map[string]string)
	for _, doc := range docs {
		id := doc.Document.Metadata.ID
		if id == "" {
			continue
		}
		if prevFile, exists := idSeen[id]; exists {
			errors = append(errors, FileError{
				File:    doc.File,
				Path:    "metadata.id",
				Message: fmt.Sprintf("duplicate ID %q (also in %s)", id, filepath.Base(prevFile)),
			})
		} else {
			idSeen[id] = doc.File
		}
	}

	return errors
}
