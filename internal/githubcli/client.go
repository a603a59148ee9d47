package githubcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/temirov/repofleet/internal/execshell"
	"github.com/temirov/repofleet/internal/shared"
)

const (
	pullRequestSubcommandConstant           = "pr"
	listSubcommandConstant                  = "list"
	createSubcommandConstant                = "create"
	editSubcommandConstant                  = "edit"
	addReviewerFlagConstant                 = "--add-reviewer"
	reviewerFieldNameConstant               = "reviewer"
	pullRequestNumberFieldNameConstant      = "number"
	positiveValueMessageConstant            = "positive value required"
	jsonFlagConstant                        = "--json"
	repoFlagConstant                        = "--repo"
	stateFlagConstant                       = "--state"
	headFlagConstant                        = "--head"
	baseFlagConstant                        = "--base"
	titleFlagConstant                       = "--title"
	bodyFlagConstant                        = "--body"
	reviewerFlagConstant                    = "--reviewer"
	limitFlagConstant                       = "--limit"
	repositoryFieldNameConstant             = "repository"
	headBranchFieldNameConstant             = "head"
	baseBranchFieldNameConstant             = "base"
	titleFieldNameConstant                  = "title"
	requiredValueMessageConstant            = "value required"
	executorNotConfiguredMessageConstant    = "github cli executor not configured"
	pullRequestLimitDefaultValueConstant    = 100
	pullRequestJSONFieldsConstant           = "number,title,headRefName,url"
	pullRequestURLPathSeparatorConstant     = "/"
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	repositoryIdentifierTemplateConstant    = "%s/%s"
	listPullRequestsOperationNameConstant   = OperationName("ListPullRequests")
	createPullRequestOperationNameConstant  = OperationName("CreatePullRequest")
	addReviewerOperationNameConstant        = OperationName("AddPullRequestReviewer")
)

// OperationName describes a named GitHub CLI workflow supported by the client.
type OperationName string

// PullRequestState describes acceptable GitHub pull request states.
type PullRequestState string

// Pull request state enumerations.
const (
	PullRequestStateOpen   PullRequestState = PullRequestState("open")
	PullRequestStateClosed PullRequestState = PullRequestState("closed")
	PullRequestStateMerged PullRequestState = PullRequestState("merged")
)

// PullRequest represents minimal PR details returned by GitHub CLI.
type PullRequest struct {
	Number      int
	Title       string
	HeadRefName string
	URL         string
}

// PullRequestListOptions configures ListPullRequests queries.
type PullRequestListOptions struct {
	State       PullRequestState
	HeadBranch  string
	BaseBranch  string
	ResultLimit int
}

// PullRequestCreateOptions configures CreatePullRequest.
type PullRequestCreateOptions struct {
	HeadBranch string
	BaseBranch string
	Title      string
	Body       string
	Reviewer   string
}

// GitHubCommandExecutor is the minimal interface required from execshell.ShellExecutor.
type GitHubCommandExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Client coordinates GitHub CLI invocations through execshell.
type Client struct {
	executor GitHubCommandExecutor
}

var (
	// ErrExecutorNotConfigured indicates the client was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for GitHub CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates JSON decoding failures.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// NewClient constructs a GitHub CLI client.
func NewClient(executor GitHubCommandExecutor) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Client{executor: executor}, nil
}

// ListPullRequests enumerates pull requests using gh pr list.
func (client *Client) ListPullRequests(executionContext context.Context, repository string, options PullRequestListOptions) ([]PullRequest, error) {
	repositoryIdentifier := strings.TrimSpace(repository)
	if len(repositoryIdentifier) == 0 {
		return nil, InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}

	state := options.State
	if len(state) == 0 {
		state = PullRequestStateOpen
	}
	resultLimit := options.ResultLimit
	if resultLimit <= 0 {
		resultLimit = pullRequestLimitDefaultValueConstant
	}

	arguments := []string{
		pullRequestSubcommandConstant,
		listSubcommandConstant,
		repoFlagConstant,
		repositoryIdentifier,
		stateFlagConstant,
		string(state),
	}
	if headBranch := strings.TrimSpace(options.HeadBranch); len(headBranch) > 0 {
		arguments = append(arguments, headFlagConstant, headBranch)
	}
	if baseBranch := strings.TrimSpace(options.BaseBranch); len(baseBranch) > 0 {
		arguments = append(arguments, baseFlagConstant, baseBranch)
	}
	arguments = append(arguments, jsonFlagConstant, pullRequestJSONFieldsConstant, limitFlagConstant, strconv.Itoa(resultLimit))

	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{Arguments: arguments})
	if executionError != nil {
		return nil, OperationError{Operation: listPullRequestsOperationNameConstant, Cause: executionError}
	}

	var response []struct {
		Number      int    `json:"number"`
		Title       string `json:"title"`
		HeadRefName string `json:"headRefName"`
		URL         string `json:"url"`
	}
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &response); decodingError != nil {
		return nil, ResponseDecodingError{Operation: listPullRequestsOperationNameConstant, Cause: decodingError}
	}

	pullRequests := make([]PullRequest, 0, len(response))
	for _, pullRequestEntry := range response {
		pullRequests = append(pullRequests, PullRequest{
			Number:      pullRequestEntry.Number,
			Title:       pullRequestEntry.Title,
			HeadRefName: pullRequestEntry.HeadRefName,
			URL:         pullRequestEntry.URL,
		})
	}
	return pullRequests, nil
}

// CreatePullRequest opens a pull request using gh pr create and returns its URL.
func (client *Client) CreatePullRequest(executionContext context.Context, repository string, options PullRequestCreateOptions) (PullRequest, error) {
	repositoryIdentifier := strings.TrimSpace(repository)
	if len(repositoryIdentifier) == 0 {
		return PullRequest{}, InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}
	requiredFields := []struct {
		name  string
		value string
	}{
		{name: headBranchFieldNameConstant, value: options.HeadBranch},
		{name: baseBranchFieldNameConstant, value: options.BaseBranch},
		{name: titleFieldNameConstant, value: options.Title},
	}
	for _, requiredField := range requiredFields {
		if len(strings.TrimSpace(requiredField.value)) == 0 {
			return PullRequest{}, InvalidInputError{FieldName: requiredField.name, Message: requiredValueMessageConstant}
		}
	}

	arguments := []string{
		pullRequestSubcommandConstant,
		createSubcommandConstant,
		repoFlagConstant,
		repositoryIdentifier,
		headFlagConstant,
		strings.TrimSpace(options.HeadBranch),
		baseFlagConstant,
		strings.TrimSpace(options.BaseBranch),
		titleFlagConstant,
		options.Title,
		bodyFlagConstant,
		options.Body,
	}
	if reviewer := strings.TrimSpace(options.Reviewer); len(reviewer) > 0 {
		arguments = append(arguments, reviewerFlagConstant, reviewer)
	}

	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{Arguments: arguments})
	if executionError != nil {
		return PullRequest{}, OperationError{Operation: createPullRequestOperationNameConstant, Cause: executionError}
	}

	pullRequestURL := lastOutputLine(executionResult.StandardOutput)
	return PullRequest{
		Number:      pullRequestNumberFromURL(pullRequestURL),
		Title:       options.Title,
		HeadRefName: strings.TrimSpace(options.HeadBranch),
		URL:         pullRequestURL,
	}, nil
}

// AddPullRequestReviewer requests a review on an existing pull request using gh pr edit.
func (client *Client) AddPullRequestReviewer(executionContext context.Context, repository string, pullRequestNumber int, reviewer string) error {
	repositoryIdentifier := strings.TrimSpace(repository)
	if len(repositoryIdentifier) == 0 {
		return InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if pullRequestNumber <= 0 {
		return InvalidInputError{FieldName: pullRequestNumberFieldNameConstant, Message: positiveValueMessageConstant}
	}
	trimmedReviewer := strings.TrimSpace(reviewer)
	if len(trimmedReviewer) == 0 {
		return InvalidInputError{FieldName: reviewerFieldNameConstant, Message: requiredValueMessageConstant}
	}

	arguments := []string{
		pullRequestSubcommandConstant,
		editSubcommandConstant,
		strconv.Itoa(pullRequestNumber),
		repoFlagConstant,
		repositoryIdentifier,
		addReviewerFlagConstant,
		trimmedReviewer,
	}
	if _, executionError := client.executor.ExecuteGitHubCLI(executionContext, execshell.CommandDetails{Arguments: arguments}); executionError != nil {
		return OperationError{Operation: addReviewerOperationNameConstant, Cause: executionError}
	}
	return nil
}

// PullRequestOpener opens pull requests through gh, reusing an open pull request for the same head branch.
type PullRequestOpener struct {
	client *Client
}

// NewPullRequestOpener wraps a Client.
func NewPullRequestOpener(client *Client) *PullRequestOpener {
	return &PullRequestOpener{client: client}
}

// OpenPullRequest opens or reuses a pull request for the request's head branch.
// A reused pull request is asked for the reviewer again so that a review
// request lost by an earlier run is restored.
func (opener *PullRequestOpener) OpenPullRequest(executionContext context.Context, request shared.PullRequestRequest) (shared.PullRequest, error) {
	if opener == nil || opener.client == nil {
		return shared.PullRequest{}, ErrExecutorNotConfigured
	}
	repositoryIdentifier := fmt.Sprintf(repositoryIdentifierTemplateConstant, request.Owner, request.Repository)

	existingPullRequests, listError := opener.client.ListPullRequests(executionContext, repositoryIdentifier, PullRequestListOptions{
		State:      PullRequestStateOpen,
		HeadBranch: request.Head,
		BaseBranch: request.Base,
	})
	if listError != nil {
		return shared.PullRequest{}, listError
	}
	for _, existingPullRequest := range existingPullRequests {
		if existingPullRequest.HeadRefName != request.Head {
			continue
		}
		reusedPullRequest := shared.PullRequest{Number: existingPullRequest.Number, URL: existingPullRequest.URL, Reused: true}
		if reviewer := strings.TrimSpace(request.Reviewer); len(reviewer) > 0 {
			if reviewerError := opener.client.AddPullRequestReviewer(executionContext, repositoryIdentifier, existingPullRequest.Number, reviewer); reviewerError != nil {
				return reusedPullRequest, reviewerError
			}
		}
		return reusedPullRequest, nil
	}

	createdPullRequest, createError := opener.client.CreatePullRequest(executionContext, repositoryIdentifier, PullRequestCreateOptions{
		HeadBranch: request.Head,
		BaseBranch: request.Base,
		Title:      request.Title,
		Body:       request.Body,
		Reviewer:   request.Reviewer,
	})
	if createError != nil {
		return shared.PullRequest{}, createError
	}
	return shared.PullRequest{Number: createdPullRequest.Number, URL: createdPullRequest.URL}, nil
}

func lastOutputLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func pullRequestNumberFromURL(pullRequestURL string) int {
	separatorIndex := strings.LastIndex(pullRequestURL, pullRequestURLPathSeparatorConstant)
	if separatorIndex < 0 {
		return 0
	}
	number, parseError := strconv.Atoi(pullRequestURL[separatorIndex+1:])
	if parseError != nil {
		return 0
	}
	return number
}
