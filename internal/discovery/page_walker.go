// Package discovery enumerates the repositories of an organization by walking
// the paginated GitHub listing endpoint.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/shared"
)

const (
	organizationListingTemplateConstant = "orgs/%s/repos?per_page=%d"
	linkHeaderNameConstant              = "Link"
	defaultPerPageConstant              = 100
	maximumPerPageConstant              = 100
	discoveryErrorTemplateConstant      = "repository listing failed for %s: %v"
	recordDecodeErrorTemplateConstant   = "record %d: %w"
	incompleteRecordTemplateConstant    = "record %d has no repository name"
	clientNotConfiguredMessageConstant  = "github client not configured"
	loggerNotConfiguredMessageConstant  = "discovery logger not configured"
	visitorNotConfiguredMessageConstant = "repository visitor not configured"
	pageFetchLogMessageConstant         = "Fetching repository listing page"
	pageCompletedLogMessageConstant     = "Repository listing page visited"
	walkCompletedLogMessageConstant     = "Repository listing exhausted"
	logFieldPageURLConstant             = "page_url"
	logFieldPageNumberConstant          = "page"
	logFieldPageRecordsConstant         = "page_records"
	logFieldRepositoryCountConstant     = "repositories"
	emptyOrganizationMessageConstant    = "organization required"
	emptyStartURLMessageConstant        = "listing url required"
	invalidStartURLTemplateConstant     = "invalid listing url %q: %w"
)

var (
	// ErrClientNotConfigured indicates a PageWalker without a GitHub client.
	ErrClientNotConfigured = errors.New(clientNotConfiguredMessageConstant)
	// ErrLoggerNotConfigured indicates a PageWalker without a logger.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrVisitorNotConfigured indicates Walk was called without a visitor.
	ErrVisitorNotConfigured = errors.New(visitorNotConfiguredMessageConstant)
	// ErrOrganizationRequired indicates an empty organization name.
	ErrOrganizationRequired = errors.New(emptyOrganizationMessageConstant)
)

// DiscoveryError reports a listing page that could not be fetched or parsed. It is fatal to a run.
type DiscoveryError struct {
	PageURL string
	Cause   error
}

// Error describes the failure.
func (discoveryError DiscoveryError) Error() string {
	return fmt.Sprintf(discoveryErrorTemplateConstant, discoveryError.PageURL, discoveryError.Cause)
}

// Unwrap exposes the underlying cause.
func (discoveryError DiscoveryError) Unwrap() error {
	return discoveryError.Cause
}

// RepositoryVisitor receives each discovered repository. Returning an error stops the walk.
type RepositoryVisitor func(descriptor shared.RepositoryDescriptor) error

// PageWalker follows "next" relations of a paginated listing.
type PageWalker struct {
	client *github.Client
	logger *zap.Logger
}

// NewPageWalker constructs a PageWalker over an authenticated go-github client.
func NewPageWalker(client *github.Client, logger *zap.Logger) (*PageWalker, error) {
	if client == nil {
		return nil, ErrClientNotConfigured
	}
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &PageWalker{client: client, logger: logger}, nil
}

// OrganizationListingURL returns the listing path for an organization, relative to the API base URL.
func OrganizationListingURL(organization string, perPage int) (string, error) {
	trimmedOrganization := strings.TrimSpace(organization)
	if len(trimmedOrganization) == 0 {
		return "", ErrOrganizationRequired
	}
	if perPage <= 0 {
		perPage = defaultPerPageConstant
	}
	if perPage > maximumPerPageConstant {
		perPage = maximumPerPageConstant
	}
	return fmt.Sprintf(organizationListingTemplateConstant, url.PathEscape(trimmedOrganization), perPage), nil
}

// Walk fetches pages starting at startURL and calls visit for each record in
// order. A page is requested only after every record of the previous page has
// been visited. Fetch or parse failures return DiscoveryError; visitor errors
// and context cancellation are returned unchanged.
func (walker *PageWalker) Walk(executionContext context.Context, startURL string, visit RepositoryVisitor) error {
	if visit == nil {
		return ErrVisitorNotConfigured
	}
	if len(strings.TrimSpace(startURL)) == 0 {
		return DiscoveryError{PageURL: startURL, Cause: errors.New(emptyStartURLMessageConstant)}
	}
	if _, parseError := url.Parse(startURL); parseError != nil {
		return DiscoveryError{PageURL: startURL, Cause: fmt.Errorf(invalidStartURLTemplateConstant, startURL, parseError)}
	}

	pageURL := startURL
	pageNumber := 0
	repositoryCount := 0
	for len(pageURL) > 0 {
		if contextError := executionContext.Err(); contextError != nil {
			return contextError
		}
		pageNumber++
		walker.logger.Debug(pageFetchLogMessageConstant, zap.String(logFieldPageURLConstant, pageURL), zap.Int(logFieldPageNumberConstant, pageNumber))

		descriptors, nextPageURL, pageError := walker.fetchPage(executionContext, pageURL)
		if pageError != nil {
			if contextError := executionContext.Err(); contextError != nil {
				return contextError
			}
			return DiscoveryError{PageURL: pageURL, Cause: pageError}
		}

		for _, descriptor := range descriptors {
			if visitError := visit(descriptor); visitError != nil {
				return visitError
			}
			repositoryCount++
		}
		walker.logger.Debug(pageCompletedLogMessageConstant,
			zap.Int(logFieldPageNumberConstant, pageNumber),
			zap.Int(logFieldPageRecordsConstant, len(descriptors)),
			zap.Int(logFieldRepositoryCountConstant, repositoryCount),
		)
		pageURL = nextPageURL
	}

	walker.logger.Debug(walkCompletedLogMessageConstant, zap.Int(logFieldPageNumberConstant, pageNumber), zap.Int(logFieldRepositoryCountConstant, repositoryCount))
	return nil
}

func (walker *PageWalker) fetchPage(executionContext context.Context, pageURL string) ([]shared.RepositoryDescriptor, string, error) {
	request, requestError := walker.client.NewRequest(http.MethodGet, pageURL, nil)
	if requestError != nil {
		return nil, "", requestError
	}

	var rawRecords []json.RawMessage
	response, responseError := walker.client.Do(executionContext, request, &rawRecords)
	if responseError != nil {
		return nil, "", responseError
	}

	descriptors := make([]shared.RepositoryDescriptor, 0, len(rawRecords))
	for recordIndex, rawRecord := range rawRecords {
		descriptor, decodeError := decodeRepository(rawRecord)
		if decodeError != nil {
			return nil, "", fmt.Errorf(recordDecodeErrorTemplateConstant, recordIndex, decodeError)
		}
		if len(descriptor.Name) == 0 {
			return nil, "", fmt.Errorf(incompleteRecordTemplateConstant, recordIndex)
		}
		descriptors = append(descriptors, descriptor)
	}

	nextPageURL := ""
	if response != nil && response.Response != nil {
		nextPageURL, _ = NextPageURL(response.Header.Get(linkHeaderNameConstant))
	}
	return descriptors, nextPageURL, nil
}

func decodeRepository(rawRecord json.RawMessage) (shared.RepositoryDescriptor, error) {
	var repository github.Repository
	if decodeError := json.Unmarshal(rawRecord, &repository); decodeError != nil {
		return shared.RepositoryDescriptor{}, decodeError
	}
	return shared.RepositoryDescriptor{
		Owner:         repository.GetOwner().GetLogin(),
		Name:          repository.GetName(),
		DefaultBranch: repository.GetDefaultBranch(),
		CloneURL:      repository.GetCloneURL(),
		SSHURL:        repository.GetSSHURL(),
		Raw:           append(json.RawMessage(nil), rawRecord...),
	}, nil
}
