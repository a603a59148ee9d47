package mutation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	definitionErrorTemplateConstant       = "handler definition %s: %s: %v"
	definitionErrorNoFieldTemplate        = "handler definition %s: %v"
	definitionPathRequiredMessageConstant = "definition path must be provided"
	definitionFieldRequiredMessage        = "value required"
	definitionUnknownDocumentMessage      = "definition document is empty"
	definitionHandlerFieldConstant        = "handler"
	definitionBranchFieldConstant         = "branch"
	definitionCommitMessageFieldConstant  = "commit_message"
	tomlExtensionConstant                 = ".toml"
)

// ErrDefinitionPathRequired indicates an empty definition path.
var ErrDefinitionPathRequired = errors.New(definitionPathRequiredMessageConstant)

// DefinitionError reports an unreadable or invalid handler definition.
type DefinitionError struct {
	Path  string
	Field string
	Cause error
}

// Error describes the failure.
func (definitionError DefinitionError) Error() string {
	if len(definitionError.Field) == 0 {
		return fmt.Sprintf(definitionErrorNoFieldTemplate, definitionError.Path, definitionError.Cause)
	}
	return fmt.Sprintf(definitionErrorTemplateConstant, definitionError.Path, definitionError.Field, definitionError.Cause)
}

// Unwrap exposes the underlying cause.
func (definitionError DefinitionError) Unwrap() error {
	return definitionError.Cause
}

// Definition selects a registered handler and supplies its publication
// metadata and handler specific options.
type Definition struct {
	Handler          string         `yaml:"handler" toml:"handler"`
	Branch           string         `yaml:"branch" toml:"branch"`
	CommitMessage    string         `yaml:"commit_message" toml:"commit_message"`
	Reviewer         string         `yaml:"reviewer" toml:"reviewer"`
	PullRequestTitle string         `yaml:"pull_request_title" toml:"pull_request_title"`
	PullRequestBody  string         `yaml:"pull_request_body" toml:"pull_request_body"`
	StagePatterns    []string       `yaml:"stage_patterns" toml:"stage_patterns"`
	Options          map[string]any `yaml:"with" toml:"with"`
}

// Metadata returns the publication metadata declared by the definition.
func (definition Definition) Metadata() Metadata {
	return Metadata{
		BranchName:       strings.TrimSpace(definition.Branch),
		CommitMessage:    strings.TrimSpace(definition.CommitMessage),
		Reviewer:         strings.TrimSpace(definition.Reviewer),
		PullRequestTitle: strings.TrimSpace(definition.PullRequestTitle),
		PullRequestBody:  definition.PullRequestBody,
	}
}

// LoadDefinition reads and validates a definition. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func LoadDefinition(fileSystem afero.Fs, filePath string) (Definition, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Definition{}, ErrDefinitionPathRequired
	}

	contents, readError := afero.ReadFile(fileSystem, trimmedPath)
	if readError != nil {
		return Definition{}, DefinitionError{Path: trimmedPath, Cause: readError}
	}
	return ParseDefinition(trimmedPath, contents)
}

// ParseDefinition decodes and validates definition contents. source names the
// document in errors and selects the format by extension.
func ParseDefinition(source string, contents []byte) (Definition, error) {
	definition, decodeError := decodeDefinition(source, contents)
	if decodeError != nil {
		return Definition{}, DefinitionError{Path: source, Cause: decodeError}
	}

	definition.Handler = strings.TrimSpace(definition.Handler)
	requiredFields := []struct {
		name  string
		value string
	}{
		{name: definitionHandlerFieldConstant, value: definition.Handler},
		{name: definitionBranchFieldConstant, value: definition.Branch},
		{name: definitionCommitMessageFieldConstant, value: definition.CommitMessage},
	}
	for _, requiredField := range requiredFields {
		if len(strings.TrimSpace(requiredField.value)) == 0 {
			return Definition{}, DefinitionError{Path: source, Field: requiredField.name, Cause: errors.New(definitionFieldRequiredMessage)}
		}
	}
	return definition, nil
}

func decodeDefinition(source string, contents []byte) (Definition, error) {
	var definition Definition
	if strings.EqualFold(filepath.Ext(source), tomlExtensionConstant) {
		decodeError := toml.NewDecoder(bytes.NewReader(contents)).DisallowUnknownFields().Decode(&definition)
		return definition, decodeError
	}

	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if decodeError := decoder.Decode(&definition); decodeError != nil {
		if errors.Is(decodeError, io.EOF) {
			return Definition{}, errors.New(definitionUnknownDocumentMessage)
		}
		return Definition{}, decodeError
	}
	return definition, nil
}
