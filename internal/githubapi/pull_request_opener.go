package githubapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v68/github"

	"github.com/temirov/repofleet/internal/shared"
)

const (
	openPullRequestStateConstant = "open"
	headReferenceTemplate        = "%s:%s"
)

// PullRequestOpener opens pull requests through the REST API and requests reviews.
type PullRequestOpener struct {
	client *github.Client
}

// NewPullRequestOpener wraps a go-github client.
func NewPullRequestOpener(client *github.Client) *PullRequestOpener {
	return &PullRequestOpener{client: client}
}

// OpenPullRequest creates the pull request, or reuses the open one GitHub reports
// for the same head, then requests a review. Reviewers of the form "org/team"
// are requested as teams. A reused pull request is only asked for a review when
// the reviewer is not already pending on it. A failed review request is
// reported together with the pull request so that its URL is not lost.
func (opener *PullRequestOpener) OpenPullRequest(executionContext context.Context, request shared.PullRequestRequest) (shared.PullRequest, error) {
	createdPullRequest, _, createError := opener.client.PullRequests.Create(executionContext, request.Owner, request.Repository, &github.NewPullRequest{
		Title: github.Ptr(request.Title),
		Head:  github.Ptr(request.Head),
		Base:  github.Ptr(request.Base),
		Body:  github.Ptr(request.Body),
	})

	result := shared.PullRequest{}
	var existingPullRequest *github.PullRequest
	switch {
	case createError == nil:
		result = shared.PullRequest{Number: createdPullRequest.GetNumber(), URL: createdPullRequest.GetHTMLURL()}
	case isUnprocessable(createError):
		foundPullRequest, listError := opener.findOpenPullRequest(executionContext, request)
		if listError != nil {
			return shared.PullRequest{}, listError
		}
		if foundPullRequest == nil {
			return shared.PullRequest{}, OperationError{Operation: CreatePullRequestOperation, Cause: createError}
		}
		existingPullRequest = foundPullRequest
		result = shared.PullRequest{Number: foundPullRequest.GetNumber(), URL: foundPullRequest.GetHTMLURL(), Reused: true}
	default:
		return shared.PullRequest{}, OperationError{Operation: CreatePullRequestOperation, Cause: createError}
	}

	reviewer := strings.TrimSpace(request.Reviewer)
	if len(reviewer) == 0 || reviewAlreadyRequested(existingPullRequest, reviewer) {
		return result, nil
	}

	reviewersRequest := github.ReviewersRequest{Reviewers: []string{reviewer}}
	if shared.IsTeamReviewer(reviewer) {
		reviewersRequest = github.ReviewersRequest{TeamReviewers: []string{shared.TeamSlug(reviewer)}}
	}
	if _, _, reviewError := opener.client.PullRequests.RequestReviewers(executionContext, request.Owner, request.Repository, result.Number, reviewersRequest); reviewError != nil {
		return result, OperationError{Operation: RequestReviewersOperationName, Cause: reviewError}
	}
	return result, nil
}

func (opener *PullRequestOpener) findOpenPullRequest(executionContext context.Context, request shared.PullRequestRequest) (*github.PullRequest, error) {
	pullRequests, _, listError := opener.client.PullRequests.List(executionContext, request.Owner, request.Repository, &github.PullRequestListOptions{
		State: openPullRequestStateConstant,
		Head:  fmt.Sprintf(headReferenceTemplate, request.Owner, request.Head),
		Base:  request.Base,
	})
	if listError != nil {
		return nil, OperationError{Operation: ListPullRequestsOperationName, Cause: listError}
	}
	if len(pullRequests) == 0 {
		return nil, nil
	}
	return pullRequests[0], nil
}

func reviewAlreadyRequested(pullRequest *github.PullRequest, reviewer string) bool {
	if pullRequest == nil {
		return false
	}
	if shared.IsTeamReviewer(reviewer) {
		teamSlug := shared.TeamSlug(reviewer)
		for _, team := range pullRequest.RequestedTeams {
			if strings.EqualFold(team.GetSlug(), teamSlug) {
				return true
			}
		}
		return false
	}
	for _, user := range pullRequest.RequestedReviewers {
		if strings.EqualFold(user.GetLogin(), reviewer) {
			return true
		}
	}
	return false
}
