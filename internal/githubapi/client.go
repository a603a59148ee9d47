// Package githubapi adapts the GitHub REST API, through go-github, to the
// collaborators repofleet needs: an authenticated client, a content existence
// probe, and a pull request opener.
package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

const (
	// DefaultAPIBaseURLConstant is the public GitHub REST endpoint.
	DefaultAPIBaseURLConstant = "https://api.github.com/"

	trailingSlashConstant                   = "/"
	tokenRequiredMessageConstant            = "github api token required"
	invalidBaseURLTemplateConstant          = "invalid github api base url %q: %w"
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
)

// OperationName describes a named GitHub REST workflow.
type OperationName string

// Operation names reported in OperationError.
const (
	ProbeContentOperationName     OperationName = "ProbeContent"
	CreatePullRequestOperation    OperationName = "CreatePullRequest"
	RequestReviewersOperationName OperationName = "RequestReviewers"
	ListPullRequestsOperationName OperationName = "ListPullRequests"
)

// ErrTokenRequired indicates a client was requested without credentials.
var ErrTokenRequired = errors.New(tokenRequiredMessageConstant)

// OperationError wraps failures of GitHub REST operations.
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

// ClientConfiguration describes how to reach the GitHub REST API.
type ClientConfiguration struct {
	Token       string
	BaseURL     string
	HTTPTimeout time.Duration
}

// NewClient builds a go-github client authenticated with a static bearer token.
// A zero HTTPTimeout leaves requests unbounded apart from context cancellation.
func NewClient(configuration ClientConfiguration) (*github.Client, error) {
	token := strings.TrimSpace(configuration.Token)
	if len(token) == 0 {
		return nil, ErrTokenRequired
	}

	baseURL, baseURLError := normalizeBaseURL(configuration.BaseURL)
	if baseURLError != nil {
		return nil, baseURLError
	}

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	if configuration.HTTPTimeout > 0 {
		httpClient.Timeout = configuration.HTTPTimeout
	}

	client := github.NewClient(httpClient)
	client.BaseURL = baseURL
	return client, nil
}

func normalizeBaseURL(rawBaseURL string) (*url.URL, error) {
	trimmedBaseURL := strings.TrimSpace(rawBaseURL)
	if len(trimmedBaseURL) == 0 {
		trimmedBaseURL = DefaultAPIBaseURLConstant
	}
	if !strings.HasSuffix(trimmedBaseURL, trailingSlashConstant) {
		trimmedBaseURL += trailingSlashConstant
	}
	parsedURL, parseError := url.Parse(trimmedBaseURL)
	if parseError != nil {
		return nil, fmt.Errorf(invalidBaseURLTemplateConstant, rawBaseURL, parseError)
	}
	if len(parsedURL.Scheme) == 0 || len(parsedURL.Host) == 0 {
		return nil, fmt.Errorf(invalidBaseURLTemplateConstant, rawBaseURL, errors.New("scheme and host required"))
	}
	return parsedURL, nil
}

func isNotFound(err error) bool {
	var errorResponse *github.ErrorResponse
	if errors.As(err, &errorResponse) && errorResponse.Response != nil {
		return errorResponse.Response.StatusCode == 404
	}
	return false
}

func isUnprocessable(err error) bool {
	var errorResponse *github.ErrorResponse
	if errors.As(err, &errorResponse) && errorResponse.Response != nil {
		return errorResponse.Response.StatusCode == 422
	}
	return false
}
