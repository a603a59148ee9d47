package pathutils

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	invalidRepositoryNameMessageConstant  = "invalid repository name"
	invalidRepositoryNameTemplateConstant = "%w: %q"
	emptyWorkspaceRootMessageConstant     = "workspace root is not configured"
	workspaceRootResolveTemplateConstant  = "unable to resolve workspace root %s: %w"
	currentDirectoryNameConstant          = "."
	parentDirectoryNameConstant           = ".."
	forwardSlashConstant                  = "/"
	backslashConstant                     = `\`
)

var (
	// ErrInvalidRepositoryName indicates a repository name that cannot be mapped to a single directory.
	ErrInvalidRepositoryName = errors.New(invalidRepositoryNameMessageConstant)
	// ErrWorkspaceRootNotConfigured indicates an empty workspace root.
	ErrWorkspaceRootNotConfigured = errors.New(emptyWorkspaceRootMessageConstant)
)

// WorkspaceLayout maps repository names to working copy directories beneath a single root.
type WorkspaceLayout struct {
	rootDirectory string
}

// NewWorkspaceLayout expands and absolutizes the provided root.
func NewWorkspaceLayout(homeExpander *HomeExpander, workspaceRoot string) (WorkspaceLayout, error) {
	trimmedRoot := strings.TrimSpace(workspaceRoot)
	if len(trimmedRoot) == 0 {
		return WorkspaceLayout{}, ErrWorkspaceRootNotConfigured
	}
	if homeExpander == nil {
		homeExpander = NewHomeExpander()
	}

	absoluteRoot, absoluteError := filepath.Abs(homeExpander.Expand(trimmedRoot))
	if absoluteError != nil {
		return WorkspaceLayout{}, fmt.Errorf(workspaceRootResolveTemplateConstant, trimmedRoot, absoluteError)
	}
	return WorkspaceLayout{rootDirectory: filepath.Clean(absoluteRoot)}, nil
}

// Root returns the absolute workspace root.
func (layout WorkspaceLayout) Root() string {
	return layout.rootDirectory
}

// WorkingCopyPath returns <root>/<repositoryName>. Names containing path
// separators or dot segments are rejected so that every working copy stays a
// direct child of the root.
func (layout WorkspaceLayout) WorkingCopyPath(repositoryName string) (string, error) {
	trimmedName := strings.TrimSpace(repositoryName)
	if len(trimmedName) == 0 ||
		trimmedName == currentDirectoryNameConstant ||
		trimmedName == parentDirectoryNameConstant ||
		strings.Contains(trimmedName, forwardSlashConstant) ||
		strings.Contains(trimmedName, backslashConstant) {
		return "", fmt.Errorf(invalidRepositoryNameTemplateConstant, ErrInvalidRepositoryName, repositoryName)
	}
	return filepath.Join(layout.rootDirectory, trimmedName), nil
}
