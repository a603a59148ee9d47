package mutation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/temirov/repofleet/internal/shared"
)

const (
	branchNameMissingMessageConstant    = "handler metadata requires a branch name"
	commitMessageMissingMessageConstant = "handler metadata requires a commit message"
)

var (
	// ErrBranchNameMissing indicates metadata without a branch.
	ErrBranchNameMissing = errors.New(branchNameMissingMessageConstant)
	// ErrCommitMessageMissing indicates metadata without a commit message.
	ErrCommitMessageMissing = errors.New(commitMessageMissingMessageConstant)
)

// Handler transforms one synchronized working copy.
//
// IsApplicable must not modify the working copy. Apply must be idempotent: a
// second invocation on an already transformed copy returns an empty ChangeSet.
type Handler interface {
	IsApplicable(executionContext context.Context, workingCopy shared.WorkingCopy) (bool, error)
	Apply(executionContext context.Context, workingCopy shared.WorkingCopy) (ChangeSet, error)
	Metadata() Metadata
	StagePatterns() []string
}

// Metadata carries the publication settings for a handler's changes.
type Metadata struct {
	BranchName       string
	CommitMessage    string
	Reviewer         string
	PullRequestTitle string
	PullRequestBody  string
}

// Validate reports missing required fields.
func (metadata Metadata) Validate() error {
	if len(strings.TrimSpace(metadata.BranchName)) == 0 {
		return ErrBranchNameMissing
	}
	if len(strings.TrimSpace(metadata.CommitMessage)) == 0 {
		return ErrCommitMessageMissing
	}
	return nil
}

// Title returns the pull request title, defaulting to the commit message.
func (metadata Metadata) Title() string {
	if trimmedTitle := strings.TrimSpace(metadata.PullRequestTitle); len(trimmedTitle) > 0 {
		return trimmedTitle
	}
	return strings.TrimSpace(metadata.CommitMessage)
}

// ChangeSet is an ordered, de-duplicated list of working copy relative paths
// touched or removed by Apply. The zero value is empty and ready to use.
type ChangeSet struct {
	paths []string
	seen  map[string]struct{}
}

// NewChangeSet builds a ChangeSet from paths.
func NewChangeSet(paths ...string) ChangeSet {
	var changeSet ChangeSet
	for _, path := range paths {
		changeSet.Add(path)
	}
	return changeSet
}

// Add records path once, normalized to slash separators.
func (changeSet *ChangeSet) Add(path string) {
	trimmedPath := strings.TrimSpace(path)
	if len(trimmedPath) == 0 {
		return
	}
	normalizedPath := filepath.ToSlash(filepath.Clean(trimmedPath))
	if changeSet.seen == nil {
		changeSet.seen = make(map[string]struct{})
	}
	if _, exists := changeSet.seen[normalizedPath]; exists {
		return
	}
	changeSet.seen[normalizedPath] = struct{}{}
	changeSet.paths = append(changeSet.paths, normalizedPath)
}

// Paths returns the recorded paths in insertion order.
func (changeSet ChangeSet) Paths() []string {
	return append([]string(nil), changeSet.paths...)
}

// Len returns the number of recorded paths.
func (changeSet ChangeSet) Len() int {
	return len(changeSet.paths)
}

// IsEmpty reports whether no path was recorded.
func (changeSet ChangeSet) IsEmpty() bool {
	return len(changeSet.paths) == 0
}
