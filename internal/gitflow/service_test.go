package gitflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/repofleet/internal/gitflow"
	"github.com/temirov/repofleet/internal/shared"
	"github.com/temirov/repofleet/internal/testsupport"
)

type recordingOpener struct {
	requests    []shared.PullRequestRequest
	pullRequest shared.PullRequest
	openError   error
}

func (opener *recordingOpener) OpenPullRequest(_ context.Context, request shared.PullRequestRequest) (shared.PullRequest, error) {
	opener.requests = append(opener.requests, request)
	return opener.pullRequest, opener.openError
}

func testRequest() gitflow.Request {
	return gitflow.Request{
		WorkingCopy: shared.WorkingCopy{
			Descriptor:    shared.RepositoryDescriptor{Owner: "acme", Name: "api", DefaultBranch: "main"},
			Path:          "/workspace/api",
			DefaultBranch: "main",
		},
		BranchName:      "DEVOPS-1299/ignore-excel",
		StagePatterns:   []string{".gitignore", "*.xls"},
		CommitMessage:   "Ignore Excel files",
		PullRequestBody: "body",
		Reviewer:        "acme/devops",
	}
}

func newTestService(testInstance *testing.T, executor *testsupport.CommandExecutorStub, opener gitflow.PullRequestOpener, logger *zap.Logger) *gitflow.Service {
	testInstance.Helper()
	service, serviceError := gitflow.NewService(gitflow.ServiceDependencies{Logger: logger, GitExecutor: executor, PullRequestOpener: opener})
	require.NoError(testInstance, serviceError)
	return service
}

func TestPublishHappyPath(testInstance *testing.T) {
	executor := &testsupport.CommandExecutorStub{Responses: []testsupport.ScriptedResponse{
		{Prefix: "ls-files --cached --others --exclude-standard -- .gitignore", StandardOutput: ".gitignore\n"},
	}}
	opener := &recordingOpener{pullRequest: shared.PullRequest{Number: 9, URL: "https://github.com/acme/api/pull/9"}}
	service := newTestService(testInstance, executor, opener, zap.NewNop())

	result, publishError := service.Publish(context.Background(), testRequest())
	require.NoError(testInstance, publishError)
	require.Equal(testInstance, gitflow.StagePROpened, result.Stage)
	require.False(testInstance, result.BranchReused)
	require.Equal(testInstance, []string{".gitignore"}, result.StagedPatterns)
	require.Equal(testInstance, 9, result.PullRequest.Number)

	require.Equal(testInstance, []string{
		"checkout -q -b DEVOPS-1299/ignore-excel",
		"ls-files --cached --others --exclude-standard -- .gitignore",
		"add -A -- .gitignore",
		"ls-files --cached --others --exclude-standard -- *.xls",
		"commit -q -m Ignore Excel files",
		"push -q -u origin DEVOPS-1299/ignore-excel",
	}, executor.GitCommandLines())
	for _, details := range executor.ExecutedGitCommands {
		require.Equal(testInstance, "/workspace/api", details.WorkingDirectory)
		require.Equal(testInstance, "0", details.EnvironmentVariables["GIT_TERMINAL_PROMPT"])
	}

	require.Equal(testInstance, []shared.PullRequestRequest{{
		Owner:      "acme",
		Repository: "api",
		Head:       "DEVOPS-1299/ignore-excel",
		Base:       "main",
		Title:      "Ignore Excel files",
		Body:       "body",
		Reviewer:   "acme/devops",
	}}, opener.requests)
}

func TestPublishReusesExistingBranch(testInstance *testing.T) {
	executor := &testsupport.CommandExecutorStub{Responses: []testsupport.ScriptedResponse{
		{Prefix: "checkout -q -b", ExitCode: 128, StandardError: "fatal: a branch named 'DEVOPS-1299/ignore-excel' already exists"},
		{Prefix: "ls-files", StandardOutput: ".gitignore\n"},
	}}
	observerCore, observerLogs := observer.New(zap.InfoLevel)
	service := newTestService(testInstance, executor, &recordingOpener{}, zap.New(observerCore))

	result, publishError := service.Publish(context.Background(), testRequest())
	require.NoError(testInstance, publishError)
	require.True(testInstance, result.BranchReused)
	commandLines := executor.GitCommandLines()
	require.Equal(testInstance, "checkout -q -B DEVOPS-1299/ignore-excel", commandLines[1])
	require.Equal(testInstance, "push -q --force-with-lease -u origin DEVOPS-1299/ignore-excel", commandLines[len(commandLines)-1])
	require.Equal(testInstance, 1, observerLogs.FilterMessage("Branch already exists; reusing it").Len())
}

func TestPublishFailures(testInstance *testing.T) {
	testCases := []struct {
		name          string
		responses     []testsupport.ScriptedResponse
		openError     error
		mutate        func(request *gitflow.Request)
		expectedStage gitflow.Stage
		reachedStage  gitflow.Stage
		expectOpener  bool
	}{
		{
			name:          "branch_failure",
			responses:     []testsupport.ScriptedResponse{{Prefix: "checkout -q -b", ExitCode: 128, StandardError: "fatal: not a git repository"}},
			expectedStage: gitflow.FailureBranch,
			reachedStage:  gitflow.StageStart,
		},
		{
			name: "stage_failure",
			responses: []testsupport.ScriptedResponse{
				{Prefix: "ls-files", StandardOutput: ".gitignore\n"},
				{Prefix: "add", ExitCode: 1, StandardError: "fatal: pathspec"},
			},
			expectedStage: gitflow.FailureStage,
			reachedStage:  gitflow.StageBranchCreated,
		},
		{
			name:          "commit_with_nothing_staged",
			responses:     []testsupport.ScriptedResponse{{Prefix: "commit", ExitCode: 1, StandardError: "nothing to commit, working tree clean"}},
			expectedStage: gitflow.FailureCommit,
			reachedStage:  gitflow.StageFilesStaged,
		},
		{
			name: "push_failure",
			responses: []testsupport.ScriptedResponse{
				{Prefix: "ls-files", StandardOutput: ".gitignore\n"},
				{Prefix: "push", ExitCode: 1, StandardError: "remote: Permission denied\nfatal: unable to access"},
			},
			expectedStage: gitflow.FailurePush,
			reachedStage:  gitflow.StageCommitted,
		},
		{
			name:          "pull_request_failure_keeps_pushed_branch",
			responses:     []testsupport.ScriptedResponse{{Prefix: "ls-files", StandardOutput: ".gitignore\n"}},
			openError:     errors.New("validation failed"),
			expectedStage: gitflow.FailurePullRequest,
			reachedStage:  gitflow.StagePushed,
			expectOpener:  true,
		},
		{
			name:          "missing_branch",
			mutate:        func(request *gitflow.Request) { request.BranchName = " " },
			expectedStage: gitflow.FailureBranch,
			reachedStage:  gitflow.StageStart,
		},
		{
			name:          "missing_commit_message",
			mutate:        func(request *gitflow.Request) { request.CommitMessage = "" },
			expectedStage: gitflow.FailureCommit,
			reachedStage:  gitflow.StageStart,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &testsupport.CommandExecutorStub{Responses: testCase.responses}
			opener := &recordingOpener{openError: testCase.openError}
			service := newTestService(testInstance, executor, opener, zap.NewNop())

			request := testRequest()
			if testCase.mutate != nil {
				testCase.mutate(&request)
			}
			result, publishError := service.Publish(context.Background(), request)

			var workflowError gitflow.WorkflowError
			require.ErrorAs(testInstance, publishError, &workflowError)
			require.Equal(testInstance, testCase.expectedStage, workflowError.Stage)
			require.Equal(testInstance, testCase.reachedStage, result.Stage)
			require.Equal(testInstance, testCase.expectOpener, len(opener.requests) == 1)
			require.NotContains(testInstance, publishError.Error(), "remote:")
		})
	}
}

func TestNewServiceValidation(testInstance *testing.T) {
	_, serviceError := gitflow.NewService(gitflow.ServiceDependencies{GitExecutor: &testsupport.CommandExecutorStub{}, PullRequestOpener: &recordingOpener{}})
	require.ErrorIs(testInstance, serviceError, gitflow.ErrLoggerNotConfigured)

	_, serviceError = gitflow.NewService(gitflow.ServiceDependencies{Logger: zap.NewNop(), PullRequestOpener: &recordingOpener{}})
	require.ErrorIs(testInstance, serviceError, gitflow.ErrGitExecutorNotConfigured)

	_, serviceError = gitflow.NewService(gitflow.ServiceDependencies{Logger: zap.NewNop(), GitExecutor: &testsupport.CommandExecutorStub{}})
	require.ErrorIs(testInstance, serviceError, gitflow.ErrPullRequestOpenerNotConfigured)
}
