package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/go-github/v68/github"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/discovery"
	"github.com/temirov/repofleet/internal/execshell"
	"github.com/temirov/repofleet/internal/gitflow"
	"github.com/temirov/repofleet/internal/githubapi"
	"github.com/temirov/repofleet/internal/githubauth"
	"github.com/temirov/repofleet/internal/githubcli"
	"github.com/temirov/repofleet/internal/localsync"
	"github.com/temirov/repofleet/internal/mutation"
	"github.com/temirov/repofleet/internal/shared"
	"github.com/temirov/repofleet/internal/skiplist"
	"github.com/temirov/repofleet/internal/ui"
	"github.com/temirov/repofleet/internal/utils/flags"
	pathutils "github.com/temirov/repofleet/internal/utils/path"
)

const (
	runCommandUseConstant              = "run"
	runCommandShortDescriptionConstant = "Apply a mutation to every repository of an organization"
	runCommandLongDescriptionConstant  = "run walks the organization listing, skips excluded repositories, synchronizes each working copy under the workspace root, applies the handler named by the definition file and files the changes as pull requests. Failures are isolated per repository and summarized at the end."

	definitionFlagNameConstant          = "definition"
	definitionFlagUsageConstant         = "Path to the mutation definition (YAML)."
	organizationFlagNameConstant        = "organization"
	organizationFlagUsageConstant       = "GitHub organization whose repositories are processed."
	listingURLFlagNameConstant          = "listing-url"
	listingURLFlagUsageConstant         = "Override the repository listing URL."
	perPageFlagNameConstant             = "per-page"
	perPageFlagUsageConstant            = "Repositories requested per listing page."
	workspaceRootFlagNameConstant       = "workspace-root"
	workspaceRootFlagUsageConstant      = "Directory holding one working copy per repository."
	skipFileFlagNameConstant            = "skip-file"
	skipFileFlagUsageConstant           = "File listing repositories excluded from runs."
	markerFileFlagNameConstant          = "marker-file"
	markerFileFlagUsageConstant         = "File a repository must contain to be processed."
	cloneProtocolFlagNameConstant       = "clone-protocol"
	cloneProtocolFlagUsageConstant      = "Protocol used for fresh clones."
	pullRequestProviderFlagNameConstant = "pull-request-provider"
	pullRequestProviderFlagUsageConst   = "Surface used to open pull requests."

	definitionRequiredMessageConstant   = "definition file required (use --definition)"
	unsupportedProviderTemplateConstant = "unsupported pull request provider %q"
	repositoriesFailedMessageConstant   = "one or more repositories failed"
	repositoriesFailedTemplateConstant  = "%w: %s"
	failedRepositorySeparatorConstant   = ", "
	definitionLoadErrorTemplateConstant = "unable to load mutation definition: %w"
	handlerBuildErrorTemplateConstant   = "unable to construct mutation handler: %w"
	executorCreationErrorTemplate       = "unable to construct command executor: %w"
	clientCreationErrorTemplateConstant = "unable to construct github client: %w"
	walkerCreationErrorTemplateConstant = "unable to construct repository walker: %w"
	registryCreationErrorTemplate       = "unable to construct skip registry: %w"
	layoutCreationErrorTemplateConstant = "unable to resolve workspace root: %w"
	syncCreationErrorTemplateConstant   = "unable to construct working copy synchronizer: %w"
	openerCreationErrorTemplateConstant = "unable to construct pull request opener: %w"
	workflowCreationErrorTemplateConst  = "unable to construct git workflow: %w"
	orchestratorCreationErrorTemplate   = "unable to construct orchestrator: %w"
	listingURLErrorTemplateConstant     = "unable to determine repository listing: %w"
	cloneProtocolErrorTemplateConstant  = "invalid clone protocol: %w"
	runInterruptedErrorTemplateConstant = "run interrupted: %w"
	reportRenderErrorTemplateConstant   = "unable to render run report: %w"
	handlerSelectedLogMessageConstant   = "Mutation handler selected"
	logFieldHandlerConstant             = "handler"
	logFieldBranchConstant              = "branch"
	logFieldDefinitionConstant          = "definition"
)

var (
	// ErrDefinitionRequired indicates run was invoked without --definition.
	ErrDefinitionRequired = errors.New(definitionRequiredMessageConstant)
	// ErrRepositoriesFailed is returned after a completed run with failed repositories.
	ErrRepositoriesFailed = errors.New(repositoriesFailedMessageConstant)
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the run command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ColorOutputProvider          func() bool
	ConfigurationProvider        func() CommandConfiguration
	FileSystem                   afero.Fs
	GitExecutor                  shared.GitExecutor
	GitHubCLIExecutor            shared.GitHubCLIExecutor
	EnvironmentLookup            githubauth.EnvironmentLookup
	HomeExpander                 *pathutils.HomeExpander
	HandlerRegistry              *mutation.Registry
	Clock                        shared.Clock
	IdentifierGenerator          IdentifierGenerator
}

// Build constructs the run command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	defaults := DefaultCommandConfiguration()
	command := &cobra.Command{
		Use:           runCommandUseConstant,
		Short:         runCommandShortDescriptionConstant,
		Long:          runCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	command.Flags().String(definitionFlagNameConstant, "", definitionFlagUsageConstant)
	command.Flags().String(organizationFlagNameConstant, "", organizationFlagUsageConstant)
	command.Flags().String(listingURLFlagNameConstant, "", listingURLFlagUsageConstant)
	command.Flags().Int(perPageFlagNameConstant, defaults.PerPage, perPageFlagUsageConstant)
	command.Flags().String(workspaceRootFlagNameConstant, "", workspaceRootFlagUsageConstant)
	command.Flags().String(skipFileFlagNameConstant, "", skipFileFlagUsageConstant)
	command.Flags().String(markerFileFlagNameConstant, "", markerFileFlagUsageConstant)
	command.Flags().String(cloneProtocolFlagNameConstant, "", flags.FormatChoiceUsage(defaults.CloneProtocol, []string{string(shared.CloneProtocolSSH), string(shared.CloneProtocolHTTPS)}, cloneProtocolFlagUsageConstant))
	command.Flags().String(pullRequestProviderFlagNameConstant, "", flags.FormatChoiceUsage(defaults.PullRequestProvider, []string{PullRequestProviderAPI, PullRequestProviderCLI}, pullRequestProviderFlagUsageConst))

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	fileSystem := builder.resolveFileSystem()
	configuration := builder.applyFlagOverrides(command, builder.resolveConfiguration())

	definitionPath := flags.OverrideString(command, definitionFlagNameConstant, "")
	if len(definitionPath) == 0 {
		return ErrDefinitionRequired
	}
	definition, definitionError := mutation.LoadDefinition(fileSystem, definitionPath)
	if definitionError != nil {
		return fmt.Errorf(definitionLoadErrorTemplateConstant, definitionError)
	}
	handler, handlerError := builder.resolveHandlerRegistry().Build(definition, mutation.Environment{FileSystem: fileSystem, Logger: logger})
	if handlerError != nil {
		return fmt.Errorf(handlerBuildErrorTemplateConstant, handlerError)
	}
	logger.Info(handlerSelectedLogMessageConstant,
		zap.String(logFieldHandlerConstant, definition.Handler),
		zap.String(logFieldBranchConstant, definition.Branch),
		zap.String(logFieldDefinitionConstant, definitionPath),
	)

	token, tokenError := githubauth.RequireToken(builder.resolveEnvironmentLookup())
	if tokenError != nil {
		return tokenError
	}

	cloneProtocol, protocolError := shared.ParseCloneProtocol(configuration.CloneProtocol)
	if protocolError != nil {
		return fmt.Errorf(cloneProtocolErrorTemplateConstant, protocolError)
	}

	startURL := configuration.ListingURL
	if len(startURL) == 0 {
		organizationURL, listingError := discovery.OrganizationListingURL(configuration.Organization, configuration.PerPage)
		if listingError != nil {
			return fmt.Errorf(listingURLErrorTemplateConstant, listingError)
		}
		startURL = organizationURL
	}

	gitExecutor, gitHubExecutor, executorError := builder.resolveExecutors(logger, configuration)
	if executorError != nil {
		return fmt.Errorf(executorCreationErrorTemplate, executorError)
	}

	client, clientError := githubapi.NewClient(githubapi.ClientConfiguration{
		Token:       token,
		BaseURL:     configuration.APIBaseURL,
		HTTPTimeout: configuration.HTTPTimeout,
	})
	if clientError != nil {
		return fmt.Errorf(clientCreationErrorTemplateConstant, clientError)
	}

	walker, walkerError := discovery.NewPageWalker(client, logger)
	if walkerError != nil {
		return fmt.Errorf(walkerCreationErrorTemplateConstant, walkerError)
	}

	skipRegistry, skipRegistryError := skiplist.NewRegistry(fileSystem, configuration.SkipFile, configuration.SkipPatterns, logger)
	if skipRegistryError != nil {
		return fmt.Errorf(registryCreationErrorTemplate, skipRegistryError)
	}
	skipRegistry.Load()

	layout, layoutError := pathutils.NewWorkspaceLayout(builder.HomeExpander, configuration.WorkspaceRoot)
	if layoutError != nil {
		return fmt.Errorf(layoutCreationErrorTemplateConstant, layoutError)
	}

	var markerProbe localsync.MarkerProbe
	if len(configuration.MarkerFile) > 0 {
		markerProbe = githubapi.NewContentProbe(client)
	}
	synchronizer, synchronizerError := localsync.NewService(localsync.ServiceDependencies{
		Logger:         logger,
		GitExecutor:    gitExecutor,
		FileSystem:     fileSystem,
		Layout:         layout,
		MarkerProbe:    markerProbe,
		MarkerFile:     configuration.MarkerFile,
		CloneProtocol:  cloneProtocol,
		FallbackBranch: configuration.FallbackBranch,
	})
	if synchronizerError != nil {
		return fmt.Errorf(syncCreationErrorTemplateConstant, synchronizerError)
	}

	pullRequestOpener, openerError := builder.resolvePullRequestOpener(configuration.PullRequestProvider, client, gitHubExecutor)
	if openerError != nil {
		return fmt.Errorf(openerCreationErrorTemplateConstant, openerError)
	}
	publisher, publisherError := gitflow.NewService(gitflow.ServiceDependencies{
		Logger:            logger,
		GitExecutor:       gitExecutor,
		PullRequestOpener: pullRequestOpener,
		RemoteName:        configuration.RemoteName,
	})
	if publisherError != nil {
		return fmt.Errorf(workflowCreationErrorTemplateConst, publisherError)
	}

	fleetOrchestrator, orchestratorError := NewOrchestrator(Dependencies{
		Logger:              logger,
		Walker:              walker,
		SkipEvaluator:       skipRegistry,
		Synchronizer:        synchronizer,
		Publisher:           publisher,
		StartURL:            startURL,
		Clock:               builder.Clock,
		IdentifierGenerator: builder.IdentifierGenerator,
	})
	if orchestratorError != nil {
		return fmt.Errorf(orchestratorCreationErrorTemplate, orchestratorError)
	}

	report, runError := fleetOrchestrator.Run(command.Context(), handler)
	if renderError := RenderReport(command.OutOrStdout(), report, builder.resolveColorOutput()); renderError != nil {
		return fmt.Errorf(reportRenderErrorTemplateConstant, renderError)
	}
	if runError != nil {
		return fmt.Errorf(runInterruptedErrorTemplateConstant, runError)
	}
	if report.HasFailures() {
		failedNames := make([]string, 0)
		for _, failure := range report.Failures() {
			failedNames = append(failedNames, failure.Repository)
		}
		return fmt.Errorf(repositoriesFailedTemplateConstant, ErrRepositoriesFailed, strings.Join(failedNames, failedRepositorySeparatorConstant))
	}
	return nil
}

func (builder *CommandBuilder) applyFlagOverrides(command *cobra.Command, configuration CommandConfiguration) CommandConfiguration {
	configuration.Organization = flags.OverrideString(command, organizationFlagNameConstant, configuration.Organization)
	configuration.ListingURL = flags.OverrideString(command, listingURLFlagNameConstant, configuration.ListingURL)
	configuration.PerPage = flags.OverrideInt(command, perPageFlagNameConstant, configuration.PerPage)
	configuration.WorkspaceRoot = flags.OverrideString(command, workspaceRootFlagNameConstant, configuration.WorkspaceRoot)
	configuration.SkipFile = flags.OverrideString(command, skipFileFlagNameConstant, configuration.SkipFile)
	configuration.MarkerFile = flags.OverrideString(command, markerFileFlagNameConstant, configuration.MarkerFile)
	configuration.CloneProtocol = flags.OverrideString(command, cloneProtocolFlagNameConstant, configuration.CloneProtocol)
	configuration.PullRequestProvider = flags.OverrideString(command, pullRequestProviderFlagNameConstant, configuration.PullRequestProvider)
	return configuration.Sanitize()
}

func (builder *CommandBuilder) resolveExecutors(logger *zap.Logger, configuration CommandConfiguration) (shared.GitExecutor, shared.GitHubCLIExecutor, error) {
	if builder.GitExecutor != nil && builder.GitHubCLIExecutor != nil {
		return builder.GitExecutor, builder.GitHubCLIExecutor, nil
	}

	options := []execshell.ShellExecutorOption{execshell.WithCommandTimeout(configuration.CommandTimeout)}
	if builder.humanReadableLogging() {
		options = append(options, execshell.WithCommandEventObserver(ui.NewConsoleCommandEventLogger(logger)))
	}
	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), options...)
	if executorError != nil {
		return nil, nil, executorError
	}

	var gitExecutor shared.GitExecutor = shellExecutor
	if builder.GitExecutor != nil {
		gitExecutor = builder.GitExecutor
	}
	var gitHubExecutor shared.GitHubCLIExecutor = shellExecutor
	if builder.GitHubCLIExecutor != nil {
		gitHubExecutor = builder.GitHubCLIExecutor
	}
	return gitExecutor, gitHubExecutor, nil
}

func (builder *CommandBuilder) resolvePullRequestOpener(provider string, client *github.Client, gitHubExecutor shared.GitHubCLIExecutor) (gitflow.PullRequestOpener, error) {
	switch provider {
	case PullRequestProviderAPI:
		return githubapi.NewPullRequestOpener(client), nil
	case PullRequestProviderCLI:
		cliClient, cliError := githubcli.NewClient(gitHubExecutor)
		if cliError != nil {
			return nil, cliError
		}
		return githubcli.NewPullRequestOpener(cliClient), nil
	default:
		return nil, fmt.Errorf(unsupportedProviderTemplateConstant, provider)
	}
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider != nil {
		if logger := builder.LoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveFileSystem() afero.Fs {
	if builder.FileSystem != nil {
		return builder.FileSystem
	}
	return afero.NewOsFs()
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) resolveEnvironmentLookup() githubauth.EnvironmentLookup {
	if builder.EnvironmentLookup != nil {
		return builder.EnvironmentLookup
	}
	return os.LookupEnv
}

func (builder *CommandBuilder) resolveHandlerRegistry() *mutation.Registry {
	if builder.HandlerRegistry != nil {
		return builder.HandlerRegistry
	}
	return mutation.DefaultRegistry()
}

func (builder *CommandBuilder) humanReadableLogging() bool {
	return builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider()
}

func (builder *CommandBuilder) resolveColorOutput() bool {
	if builder.ColorOutputProvider != nil {
		return builder.ColorOutputProvider()
	}
	return !color.NoColor
}
