package orchestrator

import (
	"strings"
	"time"

	"github.com/temirov/repofleet/internal/githubapi"
	"github.com/temirov/repofleet/internal/localsync"
	"github.com/temirov/repofleet/internal/shared"
	"github.com/temirov/repofleet/internal/skiplist"
)

// Pull request providers selectable through configuration.
const (
	PullRequestProviderAPI = "api"
	PullRequestProviderCLI = "cli"
)

const (
	// DefaultWorkspaceRootConstant holds one working copy per repository.
	DefaultWorkspaceRootConstant = "~/repositories"
	// DefaultMarkerFileConstant gates repositories before any clone.
	DefaultMarkerFileConstant = "repository_metadata.yaml"
	// DefaultPerPageConstant is the listing page size.
	DefaultPerPageConstant = 100

	organizationConfigKeySuffix        = "organization"
	apiBaseURLConfigKeySuffix          = "api_base_url"
	listingURLConfigKeySuffix          = "listing_url"
	perPageConfigKeySuffix             = "per_page"
	workspaceRootConfigKeySuffix       = "workspace_root"
	skipFileConfigKeySuffix            = "skip_file"
	skipPatternsConfigKeySuffix        = "skip_patterns"
	markerFileConfigKeySuffix          = "marker_file"
	remoteNameConfigKeySuffix          = "remote_name"
	cloneProtocolConfigKeySuffix       = "clone_protocol"
	pullRequestProviderConfigKeySuffix = "pull_request_provider"
	fallbackBranchConfigKeySuffix      = "fallback_branch"
	commandTimeoutConfigKeySuffix      = "command_timeout"
	httpTimeoutConfigKeySuffix         = "http_timeout"
	configurationKeySeparatorConstant  = "."
)

// CommandConfiguration captures the persisted settings of the run command.
type CommandConfiguration struct {
	Organization        string        `mapstructure:"organization"`
	APIBaseURL          string        `mapstructure:"api_base_url"`
	ListingURL          string        `mapstructure:"listing_url"`
	PerPage             int           `mapstructure:"per_page"`
	WorkspaceRoot       string        `mapstructure:"workspace_root"`
	SkipFile            string        `mapstructure:"skip_file"`
	SkipPatterns        []string      `mapstructure:"skip_patterns"`
	MarkerFile          string        `mapstructure:"marker_file"`
	RemoteName          string        `mapstructure:"remote_name"`
	CloneProtocol       string        `mapstructure:"clone_protocol"`
	PullRequestProvider string        `mapstructure:"pull_request_provider"`
	FallbackBranch      string        `mapstructure:"fallback_branch"`
	CommandTimeout      time.Duration `mapstructure:"command_timeout"`
	HTTPTimeout         time.Duration `mapstructure:"http_timeout"`
}

// DefaultCommandConfiguration returns the built-in run settings.
func DefaultCommandConfiguration() CommandConfiguration {
	skipDefaults := skiplist.DefaultCommandConfiguration()
	return CommandConfiguration{
		APIBaseURL:          githubapi.DefaultAPIBaseURLConstant,
		PerPage:             DefaultPerPageConstant,
		WorkspaceRoot:       DefaultWorkspaceRootConstant,
		SkipFile:            skipDefaults.SkipFile,
		SkipPatterns:        skipDefaults.SkipPatterns,
		MarkerFile:          DefaultMarkerFileConstant,
		RemoteName:          shared.OriginRemoteNameConstant,
		CloneProtocol:       string(shared.CloneProtocolSSH),
		PullRequestProvider: PullRequestProviderAPI,
		FallbackBranch:      localsync.DefaultFallbackBranchConstant,
	}
}

// DefaultConfigurationValues returns viper defaults rooted at configurationKey.
func DefaultConfigurationValues(configurationKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	prefix := strings.TrimSpace(configurationKey)
	if len(prefix) > 0 {
		prefix += configurationKeySeparatorConstant
	}
	return map[string]any{
		prefix + organizationConfigKeySuffix:        defaults.Organization,
		prefix + apiBaseURLConfigKeySuffix:          defaults.APIBaseURL,
		prefix + listingURLConfigKeySuffix:          defaults.ListingURL,
		prefix + perPageConfigKeySuffix:             defaults.PerPage,
		prefix + workspaceRootConfigKeySuffix:       defaults.WorkspaceRoot,
		prefix + skipFileConfigKeySuffix:            defaults.SkipFile,
		prefix + skipPatternsConfigKeySuffix:        defaults.SkipPatterns,
		prefix + markerFileConfigKeySuffix:          defaults.MarkerFile,
		prefix + remoteNameConfigKeySuffix:          defaults.RemoteName,
		prefix + cloneProtocolConfigKeySuffix:       defaults.CloneProtocol,
		prefix + pullRequestProviderConfigKeySuffix: defaults.PullRequestProvider,
		prefix + fallbackBranchConfigKeySuffix:      defaults.FallbackBranch,
		prefix + commandTimeoutConfigKeySuffix:      defaults.CommandTimeout.String(),
		prefix + httpTimeoutConfigKeySuffix:         defaults.HTTPTimeout.String(),
	}
}

// Sanitize trims values and restores defaults for blank or out of range settings.
// The marker file is left blank when configured blank: that disables the probe.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.Organization = strings.TrimSpace(configuration.Organization)
	sanitized.APIBaseURL = valueOrDefault(configuration.APIBaseURL, defaults.APIBaseURL)
	sanitized.ListingURL = strings.TrimSpace(configuration.ListingURL)
	if sanitized.PerPage <= 0 {
		sanitized.PerPage = defaults.PerPage
	}
	sanitized.WorkspaceRoot = valueOrDefault(configuration.WorkspaceRoot, defaults.WorkspaceRoot)
	sanitized.MarkerFile = strings.TrimSpace(configuration.MarkerFile)
	sanitized.RemoteName = valueOrDefault(configuration.RemoteName, defaults.RemoteName)
	sanitized.CloneProtocol = strings.ToLower(valueOrDefault(configuration.CloneProtocol, defaults.CloneProtocol))
	sanitized.PullRequestProvider = strings.ToLower(valueOrDefault(configuration.PullRequestProvider, defaults.PullRequestProvider))
	sanitized.FallbackBranch = valueOrDefault(configuration.FallbackBranch, defaults.FallbackBranch)
	if sanitized.CommandTimeout < 0 {
		sanitized.CommandTimeout = 0
	}
	if sanitized.HTTPTimeout < 0 {
		sanitized.HTTPTimeout = 0
	}

	skipConfiguration := skiplist.CommandConfiguration{SkipFile: configuration.SkipFile, SkipPatterns: configuration.SkipPatterns}.Sanitize()
	sanitized.SkipFile = skipConfiguration.SkipFile
	sanitized.SkipPatterns = skipConfiguration.SkipPatterns
	return sanitized
}

// SkipConfiguration projects the skip settings shared with the skip command.
func (configuration CommandConfiguration) SkipConfiguration() skiplist.CommandConfiguration {
	return skiplist.CommandConfiguration{SkipFile: configuration.SkipFile, SkipPatterns: configuration.SkipPatterns}
}

func valueOrDefault(value string, defaultValue string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return defaultValue
	}
	return trimmedValue
}
