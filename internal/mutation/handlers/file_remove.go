package handlers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/temirov/repofleet/internal/mutation"
	"github.com/temirov/repofleet/internal/shared"
)

const (
	// FileRemoveHandlerName registers the file-remove handler.
	FileRemoveHandlerName         = "file-remove"
	fileRemoveDescriptionConstant = "Delete files matching glob patterns"
	fileRemovePatternsOptionConst = "patterns"
	gitMetadataPatternTemplate    = "pattern %q targets git metadata"
)

type fileRemoveOptions struct {
	Patterns []string `mapstructure:"patterns"`
}

type fileRemoveHandler struct {
	base
	patterns []string
}

func init() {
	mutation.RegisterHandler(FileRemoveHandlerName, fileRemoveDescriptionConstant, newFileRemoveHandler)
}

func newFileRemoveHandler(definition mutation.Definition, environment mutation.Environment) (mutation.Handler, error) {
	var options fileRemoveOptions
	if decodeError := mutation.DecodeOptions(definition.Options, &options); decodeError != nil {
		return nil, decodeError
	}
	patterns := nonBlankLines(options.Patterns)
	if len(patterns) == 0 {
		return nil, requireOption(fileRemovePatternsOptionConst, "")
	}
	for _, pattern := range patterns {
		if _, patternError := filepath.Match(pattern, ""); patternError != nil {
			return nil, fmt.Errorf(invalidGlobTemplateConstant, pattern, patternError)
		}
		if strings.SplitN(filepath.ToSlash(pattern), "/", 2)[0] == gitDirectoryNameConstant {
			return nil, fmt.Errorf(gitMetadataPatternTemplate, pattern)
		}
	}
	return &fileRemoveHandler{
		base:     newBase(FileRemoveHandlerName, definition, environment, patterns),
		patterns: patterns,
	}, nil
}

// IsApplicable reports whether any file matches the patterns.
func (handler *fileRemoveHandler) IsApplicable(_ context.Context, workingCopy shared.WorkingCopy) (bool, error) {
	matches, matchError := handler.matches(workingCopy)
	if matchError != nil {
		return false, matchError
	}
	return len(matches) > 0, nil
}

// Apply deletes every matching file.
func (handler *fileRemoveHandler) Apply(_ context.Context, workingCopy shared.WorkingCopy) (mutation.ChangeSet, error) {
	matches, matchError := handler.matches(workingCopy)
	if matchError != nil {
		return mutation.ChangeSet{}, matchError
	}
	var changeSet mutation.ChangeSet
	var removeErrors []error
	for _, relativePath := range matches {
		absolutePath, _ := resolveWithin(workingCopy.Path, relativePath)
		if removeError := handler.fileSystem.Remove(absolutePath); removeError != nil {
			removeErrors = append(removeErrors, removeError)
			continue
		}
		changeSet.Add(relativePath)
	}
	if len(removeErrors) > 0 {
		return changeSet, errors.Join(removeErrors...)
	}
	if !changeSet.IsEmpty() {
		handler.logApplied(workingCopy.Descriptor.FullName(), changeSet)
	}
	return changeSet, nil
}

func (handler *fileRemoveHandler) matches(workingCopy shared.WorkingCopy) ([]string, error) {
	var changeSet mutation.ChangeSet
	for _, pattern := range handler.patterns {
		matches, matchError := matchFiles(handler.fileSystem, workingCopy.Path, pattern)
		if matchError != nil {
			return nil, matchError
		}
		for _, match := range matches {
			changeSet.Add(match)
		}
	}
	return changeSet.Paths(), nil
}
