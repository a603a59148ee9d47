package shared

import "strings"

const teamReviewerSeparatorConstant = "/"

// PullRequestRequest describes a pull request to open from a pushed branch.
type PullRequestRequest struct {
	Owner      string
	Repository string
	Head       string
	Base       string
	Title      string
	Body       string
	Reviewer   string
}

// PullRequest identifies an opened or reused pull request.
type PullRequest struct {
	Number int
	URL    string
	Reused bool
}

// IsTeamReviewer reports whether the reviewer names a team as "org/team".
func IsTeamReviewer(reviewer string) bool {
	return strings.Contains(strings.TrimSpace(reviewer), teamReviewerSeparatorConstant)
}

// TeamSlug returns the team portion of an "org/team" reviewer.
func TeamSlug(reviewer string) string {
	trimmedReviewer := strings.TrimSpace(reviewer)
	separatorIndex := strings.LastIndex(trimmedReviewer, teamReviewerSeparatorConstant)
	if separatorIndex < 0 {
		return trimmedReviewer
	}
	return trimmedReviewer[separatorIndex+1:]
}
