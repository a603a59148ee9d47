package handlers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/afero"

	"github.com/temirov/repofleet/internal/mutation"
	"github.com/temirov/repofleet/internal/shared"
)

const (
	// PatternReplaceHandlerName registers the pattern-replace handler.
	PatternReplaceHandlerName         = "pattern-replace"
	patternReplaceDescriptionConstant = "Rewrite regular expression matches in files selected by a glob"
	patternReplaceFilesOptionConstant = "files"
	patternReplacePatternOptionConst  = "pattern"
	invalidExpressionTemplateConstant = "invalid pattern %q: %w"
)

type patternReplaceOptions struct {
	Files       string `mapstructure:"files"`
	Pattern     string `mapstructure:"pattern"`
	Replacement string `mapstructure:"replacement"`
}

type patternReplaceHandler struct {
	base
	files       string
	expression  *regexp.Regexp
	replacement string
}

type rewrite struct {
	relativePath string
	contents     []byte
}

func init() {
	mutation.RegisterHandler(PatternReplaceHandlerName, patternReplaceDescriptionConstant, newPatternReplaceHandler)
}

func newPatternReplaceHandler(definition mutation.Definition, environment mutation.Environment) (mutation.Handler, error) {
	var options patternReplaceOptions
	if decodeError := mutation.DecodeOptions(definition.Options, &options); decodeError != nil {
		return nil, decodeError
	}
	if optionError := requireOption(patternReplaceFilesOptionConstant, options.Files); optionError != nil {
		return nil, optionError
	}
	if optionError := requireOption(patternReplacePatternOptionConst, options.Pattern); optionError != nil {
		return nil, optionError
	}
	expression, compileError := regexp.Compile(options.Pattern)
	if compileError != nil {
		return nil, fmt.Errorf(invalidExpressionTemplateConstant, options.Pattern, compileError)
	}
	return &patternReplaceHandler{
		base:        newBase(PatternReplaceHandlerName, definition, environment, []string{options.Files}),
		files:       options.Files,
		expression:  expression,
		replacement: options.Replacement,
	}, nil
}

// IsApplicable reports whether a selected file contains a match whose replacement changes it.
func (handler *patternReplaceHandler) IsApplicable(_ context.Context, workingCopy shared.WorkingCopy) (bool, error) {
	rewrites, planError := handler.plan(workingCopy)
	if planError != nil {
		return false, planError
	}
	return len(rewrites) > 0, nil
}

// Apply writes every file whose contents change.
func (handler *patternReplaceHandler) Apply(_ context.Context, workingCopy shared.WorkingCopy) (mutation.ChangeSet, error) {
	rewrites, planError := handler.plan(workingCopy)
	if planError != nil {
		return mutation.ChangeSet{}, planError
	}
	var changeSet mutation.ChangeSet
	for _, pending := range rewrites {
		absolutePath, _ := resolveWithin(workingCopy.Path, pending.relativePath)
		if writeError := writePreservingMode(handler.fileSystem, absolutePath, pending.contents); writeError != nil {
			return changeSet, writeError
		}
		changeSet.Add(pending.relativePath)
	}
	if !changeSet.IsEmpty() {
		handler.logApplied(workingCopy.Descriptor.FullName(), changeSet)
	}
	return changeSet, nil
}

func (handler *patternReplaceHandler) plan(workingCopy shared.WorkingCopy) ([]rewrite, error) {
	candidates, matchError := matchFiles(handler.fileSystem, workingCopy.Path, handler.files)
	if matchError != nil {
		return nil, matchError
	}
	var rewrites []rewrite
	for _, relativePath := range candidates {
		absolutePath, _ := resolveWithin(workingCopy.Path, relativePath)
		original, readError := afero.ReadFile(handler.fileSystem, absolutePath)
		if readError != nil {
			return nil, readError
		}
		if !handler.expression.Match(original) {
			continue
		}
		updated := handler.expression.ReplaceAll(original, []byte(handler.replacement))
		if string(updated) == string(original) {
			continue
		}
		rewrites = append(rewrites, rewrite{relativePath: relativePath, contents: updated})
	}
	return rewrites, nil
}
