package handlers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/mutation"
)

const (
	gitDirectoryNameConstant         = ".git"
	defaultFilePermissionsConstant   = 0o644
	parentDirectoryPrefixConstant    = ".."
	escapingPathTemplateConstant     = "%w: %s"
	escapingPathMessageConstant      = "path escapes the working copy"
	optionRequiredTemplateConstant   = "option %s is required"
	invalidGlobTemplateConstant      = "invalid glob %q: %w"
	logFieldHandlerConstant          = "handler"
	logFieldRepositoryConstant       = "repository"
	logFieldPathsConstant            = "paths"
	handlerAppliedLogMessageConstant = "Handler rewrote files"
)

// ErrPathEscapesWorkingCopy indicates a configured path outside the working copy.
var ErrPathEscapesWorkingCopy = errors.New(escapingPathMessageConstant)

// base supplies metadata and staging behavior shared by every built-in handler.
type base struct {
	name          string
	metadata      mutation.Metadata
	stagePatterns []string
	fileSystem    afero.Fs
	logger        *zap.Logger
}

func newBase(name string, definition mutation.Definition, environment mutation.Environment, defaultStagePatterns []string) base {
	stagePatterns := definition.StagePatterns
	if len(stagePatterns) == 0 {
		stagePatterns = defaultStagePatterns
	}
	return base{
		name:          name,
		metadata:      definition.Metadata(),
		stagePatterns: append([]string(nil), stagePatterns...),
		fileSystem:    environment.FileSystem,
		logger:        environment.Logger,
	}
}

// Metadata returns the definition's publication metadata.
func (handler base) Metadata() mutation.Metadata {
	return handler.metadata
}

// StagePatterns returns the configured patterns or the handler's defaults.
func (handler base) StagePatterns() []string {
	return append([]string(nil), handler.stagePatterns...)
}

func (handler base) logApplied(repository string, changeSet mutation.ChangeSet) {
	handler.logger.Debug(handlerAppliedLogMessageConstant,
		zap.String(logFieldHandlerConstant, handler.name),
		zap.String(logFieldRepositoryConstant, repository),
		zap.Strings(logFieldPathsConstant, changeSet.Paths()),
	)
}

// resolveWithin joins a slash separated relative path onto root, rejecting absolute or escaping paths.
func resolveWithin(root string, relativePath string) (string, error) {
	trimmedPath := strings.TrimSpace(relativePath)
	cleanedPath := filepath.Clean(filepath.FromSlash(trimmedPath))
	if len(trimmedPath) == 0 || filepath.IsAbs(cleanedPath) || cleanedPath == parentDirectoryPrefixConstant ||
		strings.HasPrefix(cleanedPath, parentDirectoryPrefixConstant+string(filepath.Separator)) {
		return "", fmt.Errorf(escapingPathTemplateConstant, ErrPathEscapesWorkingCopy, relativePath)
	}
	return filepath.Join(root, cleanedPath), nil
}

// matchFiles walks root and returns slash separated relative paths of regular
// files matching glob. A glob without a separator matches base names at any
// depth; otherwise it matches the full relative path. The .git directory is
// never visited.
func matchFiles(fileSystem afero.Fs, root string, glob string) ([]string, error) {
	trimmedGlob := filepath.ToSlash(strings.TrimSpace(glob))
	if _, patternError := filepath.Match(trimmedGlob, ""); patternError != nil {
		return nil, fmt.Errorf(invalidGlobTemplateConstant, glob, patternError)
	}
	matchBaseName := !strings.Contains(trimmedGlob, "/")

	var matches []string
	walkError := afero.Walk(fileSystem, root, func(path string, info os.FileInfo, walkError error) error {
		if walkError != nil {
			return walkError
		}
		if info.IsDir() {
			if info.Name() == gitDirectoryNameConstant && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		relativePath, relativeError := filepath.Rel(root, path)
		if relativeError != nil {
			return relativeError
		}
		relativePath = filepath.ToSlash(relativePath)
		candidate := relativePath
		if matchBaseName {
			candidate = info.Name()
		}
		matched, _ := filepath.Match(trimmedGlob, candidate)
		if matched {
			matches = append(matches, relativePath)
		}
		return nil
	})
	if walkError != nil {
		return nil, walkError
	}
	return matches, nil
}

// writePreservingMode replaces a file's contents keeping its permission bits.
func writePreservingMode(fileSystem afero.Fs, path string, contents []byte) error {
	permissions := os.FileMode(defaultFilePermissionsConstant)
	if info, statError := fileSystem.Stat(path); statError == nil {
		permissions = info.Mode().Perm()
	} else if !errors.Is(statError, os.ErrNotExist) {
		return statError
	}
	if mkdirError := fileSystem.MkdirAll(filepath.Dir(path), 0o755); mkdirError != nil {
		return mkdirError
	}
	return afero.WriteFile(fileSystem, path, contents, permissions)
}

func requireOption(name string, value string) error {
	if len(strings.TrimSpace(value)) == 0 {
		return fmt.Errorf(optionRequiredTemplateConstant, name)
	}
	return nil
}
