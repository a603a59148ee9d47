package localsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/execshell"
	"github.com/temirov/repofleet/internal/shared"
	pathutils "github.com/temirov/repofleet/internal/utils/path"
)

const (
	// DefaultFallbackBranchConstant is checked out when a listing record carries no default branch.
	DefaultFallbackBranchConstant = "master"

	gitDirectoryNameConstant            = ".git"
	workspacePermissionsConstant        = 0o755
	syncErrorTemplateConstant           = "sync of %s failed during %s: %v"
	notWorkingCopyTemplateConstant      = "%s exists but is not a git working copy"
	markerMissingMessageConstant        = "marker file not present in repository"
	loggerMissingMessageConstant        = "local sync logger not configured"
	executorMissingMessageConstant      = "local sync git executor not configured"
	fileSystemMissingMessageConstant    = "local sync filesystem not configured"
	workingCopyClonedLogMessageConstant = "Working copy cloned"
	workingCopyResetLogMessageConstant  = "Working copy refreshed"
	markerMissingLogMessageConstant     = "Marker file absent; repository will not be synchronized"
	logFieldRepositoryConstant          = "repository"
	logFieldPathConstant                = "path"
	logFieldBranchConstant              = "branch"
	logFieldMarkerConstant              = "marker_file"
	gitQuietFlagConstant                = "-q"
	gitResetSubcommandConstant          = "reset"
	gitHardFlagConstant                 = "--hard"
	gitHeadReferenceConstant            = "HEAD"
	gitCleanSubcommandConstant          = "clean"
	gitCleanFlagsConstant               = "-fdq"
	gitCheckoutSubcommandConstant       = "checkout"
	gitPullSubcommandConstant           = "pull"
	gitFastForwardOnlyFlagConstant      = "--ff-only"
	gitCloneSubcommandConstant          = "clone"
)

// Step names the synchronization action that failed.
type Step string

// Synchronization steps.
const (
	StepProbe    Step = "probe"
	StepLayout   Step = "layout"
	StepInspect  Step = "inspect"
	StepPrepare  Step = "prepare"
	StepClone    Step = "clone"
	StepReset    Step = "reset"
	StepClean    Step = "clean"
	StepCheckout Step = "checkout"
	StepPull     Step = "pull"
)

var (
	// ErrMarkerMissing indicates the repository lacks the marker file and must not be synchronized.
	ErrMarkerMissing = errors.New(markerMissingMessageConstant)
	// ErrLoggerNotConfigured indicates missing logger dependency.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrGitExecutorNotConfigured indicates missing git executor dependency.
	ErrGitExecutorNotConfigured = errors.New(executorMissingMessageConstant)
	// ErrFileSystemNotConfigured indicates missing filesystem dependency.
	ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)
)

// SyncError reports a failed synchronization step for one repository.
type SyncError struct {
	Repository string
	Step       Step
	Cause      error
}

// Error describes the failure.
func (syncError SyncError) Error() string {
	return fmt.Sprintf(syncErrorTemplateConstant, syncError.Repository, syncError.Step, syncError.Cause)
}

// Unwrap exposes the underlying cause.
func (syncError SyncError) Unwrap() error {
	return syncError.Cause
}

// MarkerProbe checks for a file in the remote repository before any local work.
type MarkerProbe interface {
	FileExists(executionContext context.Context, owner string, repository string, filePath string) (bool, error)
}

// ServiceDependencies enumerates collaborators required by Service.
type ServiceDependencies struct {
	Logger         *zap.Logger
	GitExecutor    shared.GitExecutor
	FileSystem     afero.Fs
	Layout         pathutils.WorkspaceLayout
	MarkerProbe    MarkerProbe
	MarkerFile     string
	CloneProtocol  shared.CloneProtocol
	FallbackBranch string
}

// Service synchronizes working copies beneath the workspace root.
type Service struct {
	logger         *zap.Logger
	gitExecutor    shared.GitExecutor
	fileSystem     afero.Fs
	layout         pathutils.WorkspaceLayout
	markerProbe    MarkerProbe
	markerFile     string
	cloneProtocol  shared.CloneProtocol
	fallbackBranch string
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.FileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if len(dependencies.Layout.Root()) == 0 {
		return nil, pathutils.ErrWorkspaceRootNotConfigured
	}

	cloneProtocol := dependencies.CloneProtocol
	if len(cloneProtocol) == 0 {
		cloneProtocol = shared.CloneProtocolSSH
	}
	fallbackBranch := strings.TrimSpace(dependencies.FallbackBranch)
	if len(fallbackBranch) == 0 {
		fallbackBranch = DefaultFallbackBranchConstant
	}

	return &Service{
		logger:         dependencies.Logger,
		gitExecutor:    dependencies.GitExecutor,
		fileSystem:     dependencies.FileSystem,
		layout:         dependencies.Layout,
		markerProbe:    dependencies.MarkerProbe,
		markerFile:     strings.TrimSpace(dependencies.MarkerFile),
		cloneProtocol:  cloneProtocol,
		fallbackBranch: fallbackBranch,
	}, nil
}

// Sync leaves <workspace>/<name> on the default branch at the remote tip with a
// clean tree. Local modifications and untracked files are discarded. Running it
// twice without remote changes yields the same state.
func (service *Service) Sync(executionContext context.Context, descriptor shared.RepositoryDescriptor) (shared.WorkingCopy, error) {
	repositoryName := descriptor.FullName()

	if probeError := service.probeMarker(executionContext, descriptor); probeError != nil {
		return shared.WorkingCopy{}, probeError
	}

	workingCopyPath, layoutError := service.layout.WorkingCopyPath(descriptor.Name)
	if layoutError != nil {
		return shared.WorkingCopy{}, SyncError{Repository: repositoryName, Step: StepLayout, Cause: layoutError}
	}

	defaultBranch := strings.TrimSpace(descriptor.DefaultBranch)
	if len(defaultBranch) == 0 {
		defaultBranch = service.fallbackBranch
	}

	workingCopy := shared.WorkingCopy{Descriptor: descriptor, Path: workingCopyPath, DefaultBranch: defaultBranch}

	present, inspectError := service.workingCopyPresent(workingCopyPath)
	if inspectError != nil {
		return shared.WorkingCopy{}, SyncError{Repository: repositoryName, Step: StepInspect, Cause: inspectError}
	}

	if present {
		if refreshError := service.refresh(executionContext, repositoryName, workingCopyPath, defaultBranch); refreshError != nil {
			return shared.WorkingCopy{}, refreshError
		}
		service.logger.Debug(workingCopyResetLogMessageConstant,
			zap.String(logFieldRepositoryConstant, repositoryName),
			zap.String(logFieldPathConstant, workingCopyPath),
			zap.String(logFieldBranchConstant, defaultBranch),
		)
		return workingCopy, nil
	}

	if cloneError := service.clone(executionContext, descriptor, workingCopyPath); cloneError != nil {
		return shared.WorkingCopy{}, cloneError
	}
	workingCopy.Cloned = true
	service.logger.Debug(workingCopyClonedLogMessageConstant,
		zap.String(logFieldRepositoryConstant, repositoryName),
		zap.String(logFieldPathConstant, workingCopyPath),
	)
	return workingCopy, nil
}

func (service *Service) probeMarker(executionContext context.Context, descriptor shared.RepositoryDescriptor) error {
	if service.markerProbe == nil || len(service.markerFile) == 0 {
		return nil
	}
	exists, probeError := service.markerProbe.FileExists(executionContext, descriptor.Owner, descriptor.Name, service.markerFile)
	if probeError != nil {
		return SyncError{Repository: descriptor.FullName(), Step: StepProbe, Cause: probeError}
	}
	if !exists {
		service.logger.Debug(markerMissingLogMessageConstant,
			zap.String(logFieldRepositoryConstant, descriptor.FullName()),
			zap.String(logFieldMarkerConstant, service.markerFile),
		)
		return ErrMarkerMissing
	}
	return nil
}

func (service *Service) workingCopyPresent(workingCopyPath string) (bool, error) {
	directoryExists, directoryError := afero.DirExists(service.fileSystem, workingCopyPath)
	if directoryError != nil {
		return false, directoryError
	}
	if !directoryExists {
		return false, nil
	}
	_, gitDirectoryError := service.fileSystem.Stat(filepath.Join(workingCopyPath, gitDirectoryNameConstant))
	if gitDirectoryError == nil {
		return true, nil
	}
	if errors.Is(gitDirectoryError, os.ErrNotExist) {
		return false, fmt.Errorf(notWorkingCopyTemplateConstant, workingCopyPath)
	}
	return false, gitDirectoryError
}

func (service *Service) refresh(executionContext context.Context, repositoryName string, workingCopyPath string, defaultBranch string) error {
	steps := []struct {
		step      Step
		arguments []string
	}{
		{step: StepReset, arguments: []string{gitResetSubcommandConstant, gitHardFlagConstant, gitQuietFlagConstant, gitHeadReferenceConstant}},
		{step: StepClean, arguments: []string{gitCleanSubcommandConstant, gitCleanFlagsConstant}},
		{step: StepCheckout, arguments: []string{gitCheckoutSubcommandConstant, gitQuietFlagConstant, defaultBranch}},
		{step: StepPull, arguments: []string{gitPullSubcommandConstant, gitQuietFlagConstant, gitFastForwardOnlyFlagConstant}},
	}
	for _, syncStep := range steps {
		if gitError := service.runGit(executionContext, workingCopyPath, syncStep.arguments); gitError != nil {
			return SyncError{Repository: repositoryName, Step: syncStep.step, Cause: gitError}
		}
	}
	return nil
}

func (service *Service) clone(executionContext context.Context, descriptor shared.RepositoryDescriptor, workingCopyPath string) error {
	repositoryName := descriptor.FullName()

	cloneURL, cloneURLError := descriptor.CloneURLFor(service.cloneProtocol)
	if cloneURLError != nil {
		return SyncError{Repository: repositoryName, Step: StepClone, Cause: cloneURLError}
	}

	if mkdirError := service.fileSystem.MkdirAll(service.layout.Root(), workspacePermissionsConstant); mkdirError != nil {
		return SyncError{Repository: repositoryName, Step: StepPrepare, Cause: mkdirError}
	}

	cloneArguments := []string{gitCloneSubcommandConstant, gitQuietFlagConstant, cloneURL, workingCopyPath}
	if gitError := service.runGit(executionContext, service.layout.Root(), cloneArguments); gitError != nil {
		return SyncError{Repository: repositoryName, Step: StepClone, Cause: gitError}
	}
	return nil
}

func (service *Service) runGit(executionContext context.Context, workingDirectory string, arguments []string) error {
	_, executionError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     workingDirectory,
		EnvironmentVariables: shared.NonInteractiveGitEnvironment(),
	})
	return executionError
}
