// Package skiplist decides which repositories a run must leave untouched.
//
// Two sources are combined: a fixed list of name patterns and a line oriented
// skip file that accumulates exact names across runs. The skip file is append
// only; nothing in the run loop writes to it.
package skiplist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	// DefaultSkipFileNameConstant is the skip file created in the working directory.
	DefaultSkipFileNameConstant = "repos.skip"

	skipFilePermissionsConstant          = 0o644
	lineSeparatorConstant                = "\n"
	skipRegistryErrorTemplateConstant    = "skip registry %s failed for %s: %v"
	invalidPatternTemplateConstant       = "invalid skip pattern %q: %w"
	invalidNameTemplateConstant          = "%w: %q"
	invalidNameMessageConstant           = "invalid repository name for skip file"
	fileSystemMissingMessageConstant     = "skip registry filesystem not configured"
	loggerMissingMessageConstant         = "skip registry logger not configured"
	skipFileDegradedLogMessageConstant   = "Skip file unavailable; continuing with pattern exclusions only"
	skipFileLoadedLogMessageConstant     = "Skip file loaded"
	skipFileAppendedLogMessageConstant   = "Repository appended to skip file"
	logFieldSkipFileConstant             = "skip_file"
	logFieldSkipNamesConstant            = "names"
	logFieldSkipPatternsConstant         = "patterns"
	logFieldRepositoryNameConstant       = "repository"
	operationTouchConstant               = Operation("touch")
	operationReadConstant                = Operation("read")
	operationAppendConstant              = Operation("append")
	skipReasonPatternDescriptionTemplate = "name matches pattern %s"
)

// DefaultSkipPatterns lists the built-in exclusions: golden path templates and
// designated infrastructure repositories.
var DefaultSkipPatterns = []string{
	`gold.*path`,
	`infra-global`,
	`generic-vant`,
}

var (
	// ErrFileSystemNotConfigured indicates a registry without a filesystem.
	ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)
	// ErrLoggerNotConfigured indicates a registry without a logger.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrInvalidName indicates a name that cannot be stored as a single skip file line.
	ErrInvalidName = errors.New(invalidNameMessageConstant)
)

// Operation names the skip file interaction that failed.
type Operation string

// SkipRegistryError reports a skip file interaction failure.
type SkipRegistryError struct {
	Operation Operation
	FilePath  string
	Cause     error
}

// Error describes the failure.
func (registryError SkipRegistryError) Error() string {
	return fmt.Sprintf(skipRegistryErrorTemplateConstant, registryError.Operation, registryError.FilePath, registryError.Cause)
}

// Unwrap exposes the underlying cause.
func (registryError SkipRegistryError) Unwrap() error {
	return registryError.Cause
}

// Reason classifies why a repository is skipped.
type Reason string

// Skip reasons.
const (
	ReasonNone     Reason = ""
	ReasonPattern  Reason = "pattern"
	ReasonSkipFile Reason = "skip_file"
)

// Decision explains the outcome of Evaluate.
type Decision struct {
	Skip    bool
	Reason  Reason
	Pattern string
}

// Describe renders the decision for operators.
func (decision Decision) Describe() string {
	switch decision.Reason {
	case ReasonPattern:
		return fmt.Sprintf(skipReasonPatternDescriptionTemplate, decision.Pattern)
	case ReasonSkipFile:
		return "listed in skip file"
	default:
		return ""
	}
}

// Registry answers whether a repository should be skipped.
type Registry struct {
	fileSystem afero.Fs
	filePath   string
	logger     *zap.Logger
	patterns   []*regexp.Regexp
	names      map[string]struct{}
	nameOrder  []string
	loadError  error
}

// NewRegistry compiles the patterns and binds the skip file location. Call Load before use.
func NewRegistry(fileSystem afero.Fs, filePath string, patterns []string, logger *zap.Logger) (*Registry, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}

	compiledPatterns := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		trimmedPattern := strings.TrimSpace(pattern)
		if len(trimmedPattern) == 0 {
			continue
		}
		compiledPattern, compileError := regexp.Compile(trimmedPattern)
		if compileError != nil {
			return nil, fmt.Errorf(invalidPatternTemplateConstant, trimmedPattern, compileError)
		}
		compiledPatterns = append(compiledPatterns, compiledPattern)
	}

	trimmedFilePath := strings.TrimSpace(filePath)
	if len(trimmedFilePath) == 0 {
		trimmedFilePath = DefaultSkipFileNameConstant
	}

	return &Registry{
		fileSystem: fileSystem,
		filePath:   trimmedFilePath,
		logger:     logger,
		patterns:   compiledPatterns,
		names:      make(map[string]struct{}),
	}, nil
}

// Load creates the skip file when absent and reads its names. Failures are
// logged and leave the registry in pattern-only mode; they never abort a run.
func (registry *Registry) Load() {
	registry.names = make(map[string]struct{})
	registry.nameOrder = nil
	registry.loadError = nil

	if touchError := registry.touch(); touchError != nil {
		registry.degrade(SkipRegistryError{Operation: operationTouchConstant, FilePath: registry.filePath, Cause: touchError})
		return
	}

	contents, readError := afero.ReadFile(registry.fileSystem, registry.filePath)
	if readError != nil {
		registry.degrade(SkipRegistryError{Operation: operationReadConstant, FilePath: registry.filePath, Cause: readError})
		return
	}

	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		registry.remember(scanner.Text())
	}
	if scanError := scanner.Err(); scanError != nil {
		registry.degrade(SkipRegistryError{Operation: operationReadConstant, FilePath: registry.filePath, Cause: scanError})
		return
	}

	registry.logger.Debug(skipFileLoadedLogMessageConstant,
		zap.String(logFieldSkipFileConstant, registry.filePath),
		zap.Int(logFieldSkipNamesConstant, len(registry.nameOrder)),
		zap.Int(logFieldSkipPatternsConstant, len(registry.patterns)),
	)
}

// LoadError returns the SkipRegistryError recorded by the last Load, if any.
func (registry *Registry) LoadError() error {
	return registry.loadError
}

// Degraded reports whether the registry is operating on patterns only.
func (registry *Registry) Degraded() bool {
	return registry.loadError != nil
}

// ShouldSkip reports whether name matches a pattern or is listed in the skip file.
func (registry *Registry) ShouldSkip(name string) bool {
	return registry.Evaluate(name).Skip
}

// Evaluate explains whether and why name is skipped. Exact names take precedence over patterns.
func (registry *Registry) Evaluate(name string) Decision {
	trimmedName := strings.TrimSpace(name)
	if _, listed := registry.names[trimmedName]; listed && len(trimmedName) > 0 {
		return Decision{Skip: true, Reason: ReasonSkipFile}
	}
	for _, pattern := range registry.patterns {
		if pattern.MatchString(trimmedName) {
			return Decision{Skip: true, Reason: ReasonPattern, Pattern: pattern.String()}
		}
	}
	return Decision{}
}

// Names returns the skip file names in file order.
func (registry *Registry) Names() []string {
	return append([]string(nil), registry.nameOrder...)
}

// Patterns returns the compiled pattern sources.
func (registry *Registry) Patterns() []string {
	sources := make([]string, 0, len(registry.patterns))
	for _, pattern := range registry.patterns {
		sources = append(sources, pattern.String())
	}
	return sources
}

// FilePath returns the skip file location.
func (registry *Registry) FilePath() string {
	return registry.filePath
}

// Append persists name as a new skip file line and adds it to the in-memory set.
// Names already present are not written again.
func (registry *Registry) Append(name string) error {
	trimmedName := strings.TrimSpace(name)
	if len(trimmedName) == 0 || strings.ContainsAny(trimmedName, "\r\n") {
		return fmt.Errorf(invalidNameTemplateConstant, ErrInvalidName, name)
	}
	if _, listed := registry.names[trimmedName]; listed {
		return nil
	}

	existingContents, readError := afero.ReadFile(registry.fileSystem, registry.filePath)
	if readError != nil && !errors.Is(readError, os.ErrNotExist) {
		return SkipRegistryError{Operation: operationAppendConstant, FilePath: registry.filePath, Cause: readError}
	}

	line := trimmedName + lineSeparatorConstant
	if len(existingContents) > 0 && !bytes.HasSuffix(existingContents, []byte(lineSeparatorConstant)) {
		line = lineSeparatorConstant + line
	}

	skipFile, openError := registry.fileSystem.OpenFile(registry.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, skipFilePermissionsConstant)
	if openError != nil {
		return SkipRegistryError{Operation: operationAppendConstant, FilePath: registry.filePath, Cause: openError}
	}
	if _, writeError := skipFile.WriteString(line); writeError != nil {
		_ = skipFile.Close()
		return SkipRegistryError{Operation: operationAppendConstant, FilePath: registry.filePath, Cause: writeError}
	}
	if closeError := skipFile.Close(); closeError != nil {
		return SkipRegistryError{Operation: operationAppendConstant, FilePath: registry.filePath, Cause: closeError}
	}

	registry.remember(trimmedName)
	registry.logger.Info(skipFileAppendedLogMessageConstant, zap.String(logFieldRepositoryNameConstant, trimmedName), zap.String(logFieldSkipFileConstant, registry.filePath))
	return nil
}

func (registry *Registry) touch() error {
	_, statError := registry.fileSystem.Stat(registry.filePath)
	if statError == nil {
		return nil
	}
	if !errors.Is(statError, os.ErrNotExist) {
		return statError
	}
	createdFile, createError := registry.fileSystem.OpenFile(registry.filePath, os.O_CREATE|os.O_WRONLY, skipFilePermissionsConstant)
	if createError != nil {
		return createError
	}
	return createdFile.Close()
}

func (registry *Registry) remember(rawName string) {
	trimmedName := strings.TrimSpace(rawName)
	if len(trimmedName) == 0 {
		return
	}
	if _, listed := registry.names[trimmedName]; listed {
		return
	}
	registry.names[trimmedName] = struct{}{}
	registry.nameOrder = append(registry.nameOrder, trimmedName)
}

func (registry *Registry) degrade(failure SkipRegistryError) {
	registry.loadError = failure
	registry.names = make(map[string]struct{})
	registry.nameOrder = nil
	registry.logger.Warn(skipFileDegradedLogMessageConstant, zap.String(logFieldSkipFileConstant, registry.filePath), zap.Error(failure))
}
