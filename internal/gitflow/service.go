package gitflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/execshell"
	"github.com/temirov/repofleet/internal/shared"
)

const (
	workflowErrorTemplateConstant        = "%s failed: %v"
	loggerMissingMessageConstant         = "git workflow logger not configured"
	executorMissingMessageConstant       = "git workflow executor not configured"
	openerMissingMessageConstant         = "pull request opener not configured"
	branchRequiredMessageConstant        = "branch name required"
	commitMessageRequiredMessageConstant = "commit message required"
	branchExistsMarkerConstant           = "already exists"
	branchReusedLogMessageConstant       = "Branch already exists; reusing it"
	stagePatternSkippedLogMessage        = "Stage pattern matched no files"
	publishCompletedLogMessageConstant   = "Changes published"
	logFieldRepositoryConstant           = "repository"
	logFieldBranchConstant               = "branch"
	logFieldPatternConstant              = "pattern"
	logFieldPullRequestConstant          = "pull_request"
	logFieldReusedConstant               = "reused"
	gitQuietFlagConstant                 = "-q"
	gitCheckoutSubcommandConstant        = "checkout"
	gitCreateBranchFlagConstant          = "-b"
	gitResetBranchFlagConstant           = "-B"
	gitListFilesSubcommandConstant       = "ls-files"
	gitCachedFlagConstant                = "--cached"
	gitOthersFlagConstant                = "--others"
	gitExcludeStandardFlagConstant       = "--exclude-standard"
	gitPathspecSeparatorConstant         = "--"
	gitAddSubcommandConstant             = "add"
	gitAllFlagConstant                   = "-A"
	gitCommitSubcommandConstant          = "commit"
	gitMessageFlagConstant               = "-m"
	gitPushSubcommandConstant            = "push"
	gitUpstreamFlagConstant              = "-u"
	gitForceWithLeaseFlagConstant        = "--force-with-lease"
)

// Stage identifies a point in the publication state machine.
type Stage string

// Publication stages in order. A Result's Stage is the last one reached.
const (
	StageStart         Stage = "start"
	StageBranchCreated Stage = "branch-created"
	StageFilesStaged   Stage = "files-staged"
	StageCommitted     Stage = "committed"
	StagePushed        Stage = "pushed"
	StagePROpened      Stage = "pr-opened"
)

// Failure stages reported by WorkflowError.
const (
	FailureBranch      Stage = "branch"
	FailureStage       Stage = "stage"
	FailureCommit      Stage = "commit"
	FailurePush        Stage = "push"
	FailurePullRequest Stage = "pull_request"
)

var (
	// ErrLoggerNotConfigured indicates missing logger dependency.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrGitExecutorNotConfigured indicates missing git executor dependency.
	ErrGitExecutorNotConfigured = errors.New(executorMissingMessageConstant)
	// ErrPullRequestOpenerNotConfigured indicates missing pull request opener.
	ErrPullRequestOpenerNotConfigured = errors.New(openerMissingMessageConstant)
	// ErrBranchRequired indicates a request without a branch name.
	ErrBranchRequired = errors.New(branchRequiredMessageConstant)
	// ErrCommitMessageRequired indicates a request without a commit message.
	ErrCommitMessageRequired = errors.New(commitMessageRequiredMessageConstant)
)

// WorkflowError reports the publication stage that failed.
type WorkflowError struct {
	Stage Stage
	Cause error
}

// Error describes the failure.
func (workflowError WorkflowError) Error() string {
	return fmt.Sprintf(workflowErrorTemplateConstant, workflowError.Stage, workflowError.Cause)
}

// Unwrap exposes the underlying cause.
func (workflowError WorkflowError) Unwrap() error {
	return workflowError.Cause
}

// PullRequestOpener opens (or reuses) a pull request for a pushed branch.
type PullRequestOpener interface {
	OpenPullRequest(executionContext context.Context, request shared.PullRequestRequest) (shared.PullRequest, error)
}

// Request describes one publication.
type Request struct {
	WorkingCopy      shared.WorkingCopy
	BranchName       string
	StagePatterns    []string
	CommitMessage    string
	PullRequestTitle string
	PullRequestBody  string
	Reviewer         string
}

// Result reports how far the publication progressed.
type Result struct {
	Stage          Stage
	BranchReused   bool
	StagedPatterns []string
	PullRequest    shared.PullRequest
}

// ServiceDependencies enumerates collaborators required by Service.
type ServiceDependencies struct {
	Logger            *zap.Logger
	GitExecutor       shared.GitExecutor
	PullRequestOpener PullRequestOpener
	RemoteName        string
}

// Service drives the branch, stage, commit, push and pull request sequence.
type Service struct {
	logger            *zap.Logger
	gitExecutor       shared.GitExecutor
	pullRequestOpener PullRequestOpener
	remoteName        string
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if dependencies.GitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if dependencies.PullRequestOpener == nil {
		return nil, ErrPullRequestOpenerNotConfigured
	}
	remoteName := strings.TrimSpace(dependencies.RemoteName)
	if len(remoteName) == 0 {
		remoteName = shared.OriginRemoteNameConstant
	}
	return &Service{
		logger:            dependencies.Logger,
		gitExecutor:       dependencies.GitExecutor,
		pullRequestOpener: dependencies.PullRequestOpener,
		remoteName:        remoteName,
	}, nil
}

// Publish runs the workflow. On failure the returned Result carries the last
// stage reached and the error is a WorkflowError. Nothing already pushed is
// rolled back.
func (service *Service) Publish(executionContext context.Context, request Request) (Result, error) {
	result := Result{Stage: StageStart}
	branchName := strings.TrimSpace(request.BranchName)
	if len(branchName) == 0 {
		return result, WorkflowError{Stage: FailureBranch, Cause: ErrBranchRequired}
	}
	commitMessage := strings.TrimSpace(request.CommitMessage)
	if len(commitMessage) == 0 {
		return result, WorkflowError{Stage: FailureCommit, Cause: ErrCommitMessageRequired}
	}
	workingDirectory := request.WorkingCopy.Path
	repositoryName := request.WorkingCopy.Descriptor.FullName()

	branchReused, branchError := service.createBranch(executionContext, workingDirectory, branchName)
	if branchError != nil {
		return result, WorkflowError{Stage: FailureBranch, Cause: branchError}
	}
	if branchReused {
		service.logger.Info(branchReusedLogMessageConstant, zap.String(logFieldRepositoryConstant, repositoryName), zap.String(logFieldBranchConstant, branchName))
	}
	result.Stage = StageBranchCreated
	result.BranchReused = branchReused

	stagedPatterns, stageError := service.stage(executionContext, workingDirectory, repositoryName, request.StagePatterns)
	if stageError != nil {
		return result, WorkflowError{Stage: FailureStage, Cause: stageError}
	}
	result.Stage = StageFilesStaged
	result.StagedPatterns = stagedPatterns

	if commitError := service.runGit(executionContext, workingDirectory, gitCommitSubcommandConstant, gitQuietFlagConstant, gitMessageFlagConstant, commitMessage); commitError != nil {
		return result, WorkflowError{Stage: FailureCommit, Cause: commitError}
	}
	result.Stage = StageCommitted

	pushArguments := []string{gitPushSubcommandConstant, gitQuietFlagConstant}
	if branchReused {
		pushArguments = append(pushArguments, gitForceWithLeaseFlagConstant)
	}
	pushArguments = append(pushArguments, gitUpstreamFlagConstant, service.remoteName, branchName)
	if pushError := service.runGit(executionContext, workingDirectory, pushArguments...); pushError != nil {
		return result, WorkflowError{Stage: FailurePush, Cause: pushError}
	}
	result.Stage = StagePushed

	title := strings.TrimSpace(request.PullRequestTitle)
	if len(title) == 0 {
		title = commitMessage
	}
	pullRequest, openError := service.pullRequestOpener.OpenPullRequest(executionContext, shared.PullRequestRequest{
		Owner:      request.WorkingCopy.Descriptor.Owner,
		Repository: request.WorkingCopy.Descriptor.Name,
		Head:       branchName,
		Base:       request.WorkingCopy.DefaultBranch,
		Title:      title,
		Body:       request.PullRequestBody,
		Reviewer:   strings.TrimSpace(request.Reviewer),
	})
	result.PullRequest = pullRequest
	if openError != nil {
		return result, WorkflowError{Stage: FailurePullRequest, Cause: openError}
	}
	result.Stage = StagePROpened

	service.logger.Info(publishCompletedLogMessageConstant,
		zap.String(logFieldRepositoryConstant, repositoryName),
		zap.String(logFieldBranchConstant, branchName),
		zap.String(logFieldPullRequestConstant, pullRequest.URL),
		zap.Bool(logFieldReusedConstant, pullRequest.Reused),
	)
	return result, nil
}

// createBranch creates branchName. An existing branch is reset onto the current
// HEAD so the regenerated working-tree edits carry over; the caller then pushes
// with a lease because the branch history was rewritten.
func (service *Service) createBranch(executionContext context.Context, workingDirectory string, branchName string) (bool, error) {
	createError := service.runGit(executionContext, workingDirectory, gitCheckoutSubcommandConstant, gitQuietFlagConstant, gitCreateBranchFlagConstant, branchName)
	if createError == nil {
		return false, nil
	}
	var failedError execshell.CommandFailedError
	if !errors.As(createError, &failedError) || !strings.Contains(failedError.Result.StandardError, branchExistsMarkerConstant) {
		return false, createError
	}
	if resetError := service.runGit(executionContext, workingDirectory, gitCheckoutSubcommandConstant, gitQuietFlagConstant, gitResetBranchFlagConstant, branchName); resetError != nil {
		return false, resetError
	}
	return true, nil
}

// stage adds each pattern that matches at least one tracked or untracked path.
// Patterns matching nothing are skipped; the commit then fails if nothing was staged.
func (service *Service) stage(executionContext context.Context, workingDirectory string, repositoryName string, patterns []string) ([]string, error) {
	var stagedPatterns []string
	for _, pattern := range patterns {
		trimmedPattern := strings.TrimSpace(pattern)
		if len(trimmedPattern) == 0 {
			continue
		}
		listing, listError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
			Arguments:            []string{gitListFilesSubcommandConstant, gitCachedFlagConstant, gitOthersFlagConstant, gitExcludeStandardFlagConstant, gitPathspecSeparatorConstant, trimmedPattern},
			WorkingDirectory:     workingDirectory,
			EnvironmentVariables: shared.NonInteractiveGitEnvironment(),
		})
		if listError != nil {
			return stagedPatterns, listError
		}
		if len(strings.TrimSpace(listing.StandardOutput)) == 0 {
			service.logger.Debug(stagePatternSkippedLogMessage, zap.String(logFieldRepositoryConstant, repositoryName), zap.String(logFieldPatternConstant, trimmedPattern))
			continue
		}
		if addError := service.runGit(executionContext, workingDirectory, gitAddSubcommandConstant, gitAllFlagConstant, gitPathspecSeparatorConstant, trimmedPattern); addError != nil {
			return stagedPatterns, addError
		}
		stagedPatterns = append(stagedPatterns, trimmedPattern)
	}
	return stagedPatterns, nil
}

func (service *Service) runGit(executionContext context.Context, workingDirectory string, arguments ...string) error {
	_, executionError := service.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:            arguments,
		WorkingDirectory:     workingDirectory,
		EnvironmentVariables: shared.NonInteractiveGitEnvironment(),
	})
	return executionError
}
