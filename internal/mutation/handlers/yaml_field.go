package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/temirov/repofleet/internal/mutation"
	"github.com/temirov/repofleet/internal/shared"
)

const (
	// YAMLFieldHandlerName registers the yaml-field handler.
	YAMLFieldHandlerName            = "yaml-field"
	yamlFieldDescriptionConstant    = "Set a top-level key in a YAML file when it is missing"
	yamlFieldDefaultFileConstant    = "repository_metadata.yaml"
	yamlFieldKeyOptionConstant      = "key"
	yamlFieldValueOptionConstant    = "value"
	yamlIndentConstant              = 2
	yamlNotMappingTemplateConstant  = "%s does not hold a YAML mapping"
	yamlParseErrorTemplateConstant  = "unable to parse %s: %w"
	yamlRuleInvalidTemplateConstant = "rule %d: invalid match %q: %w"
	yamlMapTag                      = "!!map"
)

type yamlFieldRule struct {
	Field string `mapstructure:"field"`
	Match string `mapstructure:"match"`
	Value any    `mapstructure:"value"`
}

type yamlFieldOptions struct {
	File   string          `mapstructure:"file"`
	Key    string          `mapstructure:"key"`
	Value  any             `mapstructure:"value"`
	Rules  []yamlFieldRule `mapstructure:"rules"`
	Create bool            `mapstructure:"create"`
}

type compiledRule struct {
	field      string
	expression *regexp.Regexp
	value      any
}

type yamlFieldHandler struct {
	base
	file   string
	key    string
	value  any
	rules  []compiledRule
	create bool
}

func init() {
	mutation.RegisterHandler(YAMLFieldHandlerName, yamlFieldDescriptionConstant, newYAMLFieldHandler)
}

func newYAMLFieldHandler(definition mutation.Definition, environment mutation.Environment) (mutation.Handler, error) {
	options := yamlFieldOptions{File: yamlFieldDefaultFileConstant}
	if decodeError := mutation.DecodeOptions(definition.Options, &options); decodeError != nil {
		return nil, decodeError
	}
	if optionError := requireOption(yamlFieldKeyOptionConstant, options.Key); optionError != nil {
		return nil, optionError
	}
	if _, resolveError := resolveWithin(".", options.File); resolveError != nil {
		return nil, resolveError
	}
	if options.Value == nil && len(options.Rules) == 0 {
		return nil, requireOption(yamlFieldValueOptionConstant, "")
	}

	rules := make([]compiledRule, 0, len(options.Rules))
	for ruleIndex, rule := range options.Rules {
		expression, compileError := regexp.Compile(rule.Match)
		if compileError != nil {
			return nil, fmt.Errorf(yamlRuleInvalidTemplateConstant, ruleIndex, rule.Match, compileError)
		}
		rules = append(rules, compiledRule{field: strings.TrimSpace(rule.Field), expression: expression, value: rule.Value})
	}

	return &yamlFieldHandler{
		base:   newBase(YAMLFieldHandlerName, definition, environment, []string{options.File}),
		file:   strings.TrimSpace(options.File),
		key:    strings.TrimSpace(options.Key),
		value:  options.Value,
		rules:  rules,
		create: options.Create,
	}, nil
}

// IsApplicable reports whether the file exists (or may be created), lacks the
// key, and a value resolves for it.
func (handler *yamlFieldHandler) IsApplicable(_ context.Context, workingCopy shared.WorkingCopy) (bool, error) {
	document, exists, loadError := handler.load(workingCopy)
	if loadError != nil {
		return false, loadError
	}
	if !exists && !handler.create {
		return false, nil
	}
	if _, present := lookupKey(document, handler.key); present {
		return false, nil
	}
	_, resolved := handler.resolveValue(document, workingCopy)
	return resolved, nil
}

// Apply inserts the key, keeping existing keys, order and comments.
func (handler *yamlFieldHandler) Apply(_ context.Context, workingCopy shared.WorkingCopy) (mutation.ChangeSet, error) {
	document, exists, loadError := handler.load(workingCopy)
	if loadError != nil {
		return mutation.ChangeSet{}, loadError
	}
	if !exists && !handler.create {
		return mutation.ChangeSet{}, nil
	}
	if _, present := lookupKey(document, handler.key); present {
		return mutation.ChangeSet{}, nil
	}

	value, resolved := handler.resolveValue(document, workingCopy)
	if !resolved {
		return mutation.ChangeSet{}, nil
	}
	var valueNode yaml.Node
	if encodeError := valueNode.Encode(value); encodeError != nil {
		return mutation.ChangeSet{}, encodeError
	}
	mapping := document.Content[0]
	mapping.Content = append(mapping.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: handler.key}, &valueNode)

	var buffer bytes.Buffer
	encoder := yaml.NewEncoder(&buffer)
	encoder.SetIndent(yamlIndentConstant)
	if encodeError := encoder.Encode(document); encodeError != nil {
		return mutation.ChangeSet{}, encodeError
	}
	if closeError := encoder.Close(); closeError != nil {
		return mutation.ChangeSet{}, closeError
	}

	targetPath, _ := resolveWithin(workingCopy.Path, handler.file)
	if writeError := writePreservingMode(handler.fileSystem, targetPath, buffer.Bytes()); writeError != nil {
		return mutation.ChangeSet{}, writeError
	}
	changeSet := mutation.NewChangeSet(handler.file)
	handler.logApplied(workingCopy.Descriptor.FullName(), changeSet)
	return changeSet, nil
}

// load returns a document node whose first child is a mapping.
func (handler *yamlFieldHandler) load(workingCopy shared.WorkingCopy) (*yaml.Node, bool, error) {
	targetPath, resolveError := resolveWithin(workingCopy.Path, handler.file)
	if resolveError != nil {
		return nil, false, resolveError
	}
	contents, readError := afero.ReadFile(handler.fileSystem, targetPath)
	if errors.Is(readError, os.ErrNotExist) {
		return emptyDocument(), false, nil
	}
	if readError != nil {
		return nil, false, readError
	}

	var document yaml.Node
	if parseError := yaml.Unmarshal(contents, &document); parseError != nil {
		return nil, true, fmt.Errorf(yamlParseErrorTemplateConstant, handler.file, parseError)
	}
	if document.Kind == 0 {
		return emptyDocument(), true, nil
	}
	if document.Kind != yaml.DocumentNode || len(document.Content) == 0 || document.Content[0].Kind != yaml.MappingNode {
		return nil, true, fmt.Errorf(yamlNotMappingTemplateConstant, handler.file)
	}
	return &document, true, nil
}

// resolveValue picks the first rule whose field matches, falling back to the
// static value. A rule without a field matches against the repository name.
// It reports false when neither yields a value.
func (handler *yamlFieldHandler) resolveValue(document *yaml.Node, workingCopy shared.WorkingCopy) (any, bool) {
	for _, rule := range handler.rules {
		subject := workingCopy.Descriptor.Name
		if len(rule.field) > 0 {
			fieldNode, present := lookupKey(document, rule.field)
			if !present || fieldNode.Kind != yaml.ScalarNode {
				continue
			}
			subject = fieldNode.Value
		}
		if rule.expression.MatchString(subject) && rule.value != nil {
			return rule.value, true
		}
	}
	return handler.value, handler.value != nil
}

func lookupKey(document *yaml.Node, key string) (*yaml.Node, bool) {
	mapping := document.Content[0]
	for index := 0; index+1 < len(mapping.Content); index += 2 {
		if mapping.Content[index].Value == key {
			return mapping.Content[index+1], true
		}
	}
	return nil, false
}

func emptyDocument() *yaml.Node {
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: yamlMapTag}}}
}
