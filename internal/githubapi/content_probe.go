package githubapi

import (
	"context"
	"strings"

	"github.com/google/go-github/v68/github"
)

// ContentProbe checks whether a path exists in a repository's default branch.
type ContentProbe struct {
	client *github.Client
}

// NewContentProbe wraps a go-github client.
func NewContentProbe(client *github.Client) *ContentProbe {
	return &ContentProbe{client: client}
}

// FileExists issues GET /repos/{owner}/{repo}/contents/{path}. A 404 means the
// file is absent; any other failure is returned as OperationError.
func (probe *ContentProbe) FileExists(executionContext context.Context, owner string, repository string, filePath string) (bool, error) {
	_, _, _, contentError := probe.client.Repositories.GetContents(executionContext, owner, repository, strings.TrimPrefix(filePath, "/"), nil)
	if contentError == nil {
		return true, nil
	}
	if isNotFound(contentError) {
		return false, nil
	}
	return false, OperationError{Operation: ProbeContentOperationName, Cause: contentError}
}
