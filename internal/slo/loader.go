package slo

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Document is the YAML file envelope for a declared SLO definition.
type Document struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   DocumentMeta `yaml:"metadata"`
	Spec       DocumentSpec `yaml:"spec"`
}

// DocumentMeta contains the identity block of a declared SLO.
type DocumentMeta struct {
	ID          string   `yaml:"id,omitempty"`
	Name        string   `yaml:"name"`
	Service     string   `yaml:"service"`
	Team        string   `yaml:"team,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// DocumentSpec contains the behavioral block of a declared SLO.
type DocumentSpec struct {
	Enabled    *bool            `yaml:"enabled,omitempty"`
	SLI        SLIConfig        `yaml:"sli"`
	Target     Target           `yaml:"target"`
	Window     Window           `yaml:"window"`
	Thresholds *AlertThresholds `yaml:"thresholds,omitempty"`
	BurnRules  []BurnRule       `yaml:"burnRules,omitempty"`
}

// Definition converts the document into a Definition. Enabled defaults to
// true and thresholds to the package defaults when omitted.
func (doc *Document) Definition() Definition {
	def := Definition{
		ID:          doc.Metadata.ID,
		Name:        doc.Metadata.Name,
		Description: doc.Metadata.Description,
		Service:     doc.Metadata.Service,
		Team:        doc.Metadata.Team,
		Tags:        doc.Metadata.Tags,
		SLI:         doc.Spec.SLI,
		Target:      doc.Spec.Target,
		Window:      doc.Spec.Window,
		BurnRules:   doc.Spec.BurnRules,
		Enabled:     true,
	}
	if doc.Spec.Enabled != nil {
		def.Enabled = *doc.Spec.Enabled
	}
	if def.Window.Type == "" {
		def.Window.Type = WindowRolling
	}
	if doc.Spec.Thresholds != nil {
		def.Thresholds = *doc.Spec.Thresholds
	} else {
		def.Thresholds = AlertThresholds{
			Warning:  DefaultWarningThreshold,
			Critical: DefaultCriticalThreshold,
		}
	}
	return def
}

// DocumentWithFile pairs a parsed document with its source file path.
type DocumentWithFile struct {
	Document *Document
	File     string
}

// FileError represents a load or validation error for a specific file.
type FileError struct {
	File    string
	Path    string
	Message string
}

// Error implements the error interface.
func (e FileError) Error() string {
	if e.Path != "" {
		return e.File + ": " + e.Path + ": " + e.Message
	}
	return e.File + ": " + e.Message
}

// LoadFromDirectory discovers and loads all SLO files from a directory.
func LoadFromDirectory(dirPath string) ([]DocumentWithFile, []FileError) {
	var docs []DocumentWithFile
	var errors []FileError

	files, err := discoverYAMLFiles(dirPath)
	if err != nil {
		errors = append(errors, FileError{
			File:    dirPath,
			Message: fmt.Sprintf("failed to read directory: %v", err),
		})
		return nil, errors
	}

	for _, file := range files {
		doc, err := parseYAMLFile(file)
		if err != nil {
			errors = append(errors, FileError{
				File:    file,
				Message: fmt.Sprintf("failed to parse YAML: %v", err),
			})
			continue
		}
		docs = append(docs, DocumentWithFile{Document: doc, File: file})
	}

	return docs, errors
}

// discoverYAMLFiles finds all *.yaml and *.yml files in a directory.
func discoverYAMLFiles(dirPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// parseYAMLFile parses a single YAML file into a Document.
func parseYAMLFile(filePath string) (*Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}
