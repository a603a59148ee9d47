package handlers

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/temirov/repofleet/internal/mutation"
	"github.com/temirov/repofleet/internal/shared"
)

const (
	// LineAppendHandlerName registers the line-append handler.
	LineAppendHandlerName         = "line-append"
	lineAppendDescriptionConstant = "Ensure lines exist in a file, appending those that are missing"
	lineAppendFileOptionConstant  = "file"
	lineAppendLinesOptionConstant = "lines"
	lineSeparatorConstant         = "\n"
)

type lineAppendOptions struct {
	File    string   `mapstructure:"file"`
	Lines   []string `mapstructure:"lines"`
	Comment string   `mapstructure:"comment"`
}

type lineAppendHandler struct {
	base
	options lineAppendOptions
}

func init() {
	mutation.RegisterHandler(LineAppendHandlerName, lineAppendDescriptionConstant, newLineAppendHandler)
}

func newLineAppendHandler(definition mutation.Definition, environment mutation.Environment) (mutation.Handler, error) {
	var options lineAppendOptions
	if decodeError := mutation.DecodeOptions(definition.Options, &options); decodeError != nil {
		return nil, decodeError
	}
	if optionError := requireOption(lineAppendFileOptionConstant, options.File); optionError != nil {
		return nil, optionError
	}
	if _, resolveError := resolveWithin(".", options.File); resolveError != nil {
		return nil, resolveError
	}
	options.Lines = nonBlankLines(options.Lines)
	if len(options.Lines) == 0 {
		return nil, requireOption(lineAppendLinesOptionConstant, "")
	}
	options.File = strings.TrimSpace(options.File)
	return &lineAppendHandler{
		base:    newBase(LineAppendHandlerName, definition, environment, []string{options.File}),
		options: options,
	}, nil
}

// IsApplicable reports whether at least one configured line is missing.
func (handler *lineAppendHandler) IsApplicable(_ context.Context, workingCopy shared.WorkingCopy) (bool, error) {
	_, missingLines, readError := handler.inspect(workingCopy)
	if readError != nil {
		return false, readError
	}
	return len(missingLines) > 0, nil
}

// Apply appends the missing lines, creating the file when needed.
func (handler *lineAppendHandler) Apply(_ context.Context, workingCopy shared.WorkingCopy) (mutation.ChangeSet, error) {
	existingContents, missingLines, readError := handler.inspect(workingCopy)
	if readError != nil {
		return mutation.ChangeSet{}, readError
	}
	if len(missingLines) == 0 {
		return mutation.ChangeSet{}, nil
	}

	var builder strings.Builder
	builder.WriteString(existingContents)
	if len(existingContents) > 0 && !strings.HasSuffix(existingContents, lineSeparatorConstant) {
		builder.WriteString(lineSeparatorConstant)
	}
	if comment := strings.TrimSpace(handler.options.Comment); len(comment) > 0 {
		builder.WriteString(comment)
		builder.WriteString(lineSeparatorConstant)
	}
	for _, line := range missingLines {
		builder.WriteString(line)
		builder.WriteString(lineSeparatorConstant)
	}

	targetPath, _ := resolveWithin(workingCopy.Path, handler.options.File)
	if writeError := writePreservingMode(handler.fileSystem, targetPath, []byte(builder.String())); writeError != nil {
		return mutation.ChangeSet{}, writeError
	}
	changeSet := mutation.NewChangeSet(handler.options.File)
	handler.logApplied(workingCopy.Descriptor.FullName(), changeSet)
	return changeSet, nil
}

func (handler *lineAppendHandler) inspect(workingCopy shared.WorkingCopy) (string, []string, error) {
	targetPath, resolveError := resolveWithin(workingCopy.Path, handler.options.File)
	if resolveError != nil {
		return "", nil, resolveError
	}
	contents, readError := afero.ReadFile(handler.fileSystem, targetPath)
	if readError != nil && !errors.Is(readError, os.ErrNotExist) {
		return "", nil, readError
	}

	present := make(map[string]struct{})
	for _, line := range strings.Split(string(contents), lineSeparatorConstant) {
		present[strings.TrimSpace(line)] = struct{}{}
	}
	var missingLines []string
	for _, line := range handler.options.Lines {
		if _, exists := present[line]; !exists {
			missingLines = append(missingLines, line)
		}
	}
	return string(contents), missingLines, nil
}

func nonBlankLines(lines []string) []string {
	var result []string
	for _, line := range lines {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) > 0 {
			result = append(result, trimmedLine)
		}
	}
	return result
}
