package gitflow_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/gitflow"
	"github.com/temirov/repofleet/internal/shared"
	"github.com/temirov/repofleet/internal/testsupport"
)

func TestPublishAgainstRealRepository(testInstance *testing.T) {
	testsupport.RequireGit(testInstance)

	remotePath := testsupport.NewRemoteRepository(testInstance, "api", map[string]string{".gitignore": "node_modules/\n", "legacy.tf": "x\n"})
	workingCopyPath := filepath.Join(testInstance.TempDir(), "api")
	testsupport.RunGit(testInstance, filepath.Dir(workingCopyPath), "clone", "-q", remotePath, workingCopyPath)

	require.NoError(testInstance, os.WriteFile(filepath.Join(workingCopyPath, ".gitignore"), []byte("node_modules/\n*.xls*\n"), 0o644))
	require.NoError(testInstance, os.Remove(filepath.Join(workingCopyPath, "legacy.tf")))

	opener := &recordingOpener{pullRequest: shared.PullRequest{Number: 1, URL: "https://example.com/pull/1"}}
	service, serviceError := gitflow.NewService(gitflow.ServiceDependencies{
		Logger:            zap.NewNop(),
		GitExecutor:       testsupport.NewShellExecutor(testInstance, nil),
		PullRequestOpener: opener,
	})
	require.NoError(testInstance, serviceError)

	workingCopy := shared.WorkingCopy{
		Descriptor:    shared.RepositoryDescriptor{Owner: "acme", Name: "api", DefaultBranch: "main"},
		Path:          workingCopyPath,
		DefaultBranch: "main",
	}
	result, publishError := service.Publish(context.Background(), gitflow.Request{
		WorkingCopy:   workingCopy,
		BranchName:    "TICKET-1/ignore-excel",
		StagePatterns: []string{".gitignore", "legacy.tf", "absent.txt"},
		CommitMessage: "Ignore Excel files",
	})
	require.NoError(testInstance, publishError)
	require.Equal(testInstance, gitflow.StagePROpened, result.Stage)
	require.Equal(testInstance, []string{".gitignore", "legacy.tf"}, result.StagedPatterns)

	remoteTree := testsupport.RunGit(testInstance, remotePath, "ls-tree", "--name-only", "TICKET-1/ignore-excel")
	require.Equal(testInstance, ".gitignore", remoteTree)
	require.Equal(testInstance, "main", opener.requests[0].Base)

	testsupport.RunGit(testInstance, workingCopyPath, "checkout", "-q", "main")
	require.NoError(testInstance, os.WriteFile(filepath.Join(workingCopyPath, "notes.txt"), []byte("follow up\n"), 0o644))

	secondResult, secondError := service.Publish(context.Background(), gitflow.Request{
		WorkingCopy:   workingCopy,
		BranchName:    "TICKET-1/ignore-excel",
		StagePatterns: []string{"notes.txt"},
		CommitMessage: "Add notes",
	})
	require.NoError(testInstance, secondError)
	require.True(testInstance, secondResult.BranchReused)
	require.Contains(testInstance, testsupport.RunGit(testInstance, remotePath, "ls-tree", "--name-only", "TICKET-1/ignore-excel"), "notes.txt")
}

func TestPublishReusesBranchCarryingConflictingCommit(testInstance *testing.T) {
	testsupport.RequireGit(testInstance)

	remotePath := testsupport.NewRemoteRepository(testInstance, "web", map[string]string{".gitignore": "node_modules/\n"})
	workingCopyPath := filepath.Join(testInstance.TempDir(), "web")
	testsupport.RunGit(testInstance, filepath.Dir(workingCopyPath), "clone", "-q", remotePath, workingCopyPath)

	gitignorePath := filepath.Join(workingCopyPath, ".gitignore")
	testsupport.RunGit(testInstance, workingCopyPath, "checkout", "-q", "-b", "TICKET-1/x")
	require.NoError(testInstance, os.WriteFile(gitignorePath, []byte("node_modules/\n*.xls*\n"), 0o644))
	testsupport.RunGit(testInstance, workingCopyPath, "commit", "-q", "-a", "-m", "Interrupted run")
	testsupport.RunGit(testInstance, workingCopyPath, "push", "-q", "-u", "origin", "TICKET-1/x")
	testsupport.RunGit(testInstance, workingCopyPath, "checkout", "-q", "main")

	testCases := []struct {
		name     string
		contents string
	}{
		{name: "same_edit", contents: "node_modules/\n*.xls*\n"},
		{name: "different_edit", contents: "node_modules/\n*.xls*\n*.csv\n"},
	}
	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testsupport.RunGit(testInstance, workingCopyPath, "checkout", "-q", "main")
			require.NoError(testInstance, os.WriteFile(gitignorePath, []byte(testCase.contents), 0o644))

			service, serviceError := gitflow.NewService(gitflow.ServiceDependencies{
				Logger:            zap.NewNop(),
				GitExecutor:       testsupport.NewShellExecutor(testInstance, nil),
				PullRequestOpener: &recordingOpener{pullRequest: shared.PullRequest{Number: 2}},
			})
			require.NoError(testInstance, serviceError)

			result, publishError := service.Publish(context.Background(), gitflow.Request{
				WorkingCopy: shared.WorkingCopy{
					Descriptor:    shared.RepositoryDescriptor{Owner: "acme", Name: "web", DefaultBranch: "main"},
					Path:          workingCopyPath,
					DefaultBranch: "main",
				},
				BranchName:    "TICKET-1/x",
				StagePatterns: []string{".gitignore"},
				CommitMessage: "Ignore Excel files",
			})
			require.NoError(testInstance, publishError)
			require.True(testInstance, result.BranchReused)
			require.Equal(testInstance, gitflow.StagePROpened, result.Stage)

			remoteContents := testsupport.RunGit(testInstance, remotePath, "show", "TICKET-1/x:.gitignore")
			require.Equal(testInstance, strings.TrimSpace(testCase.contents), remoteContents)
			commitCount := testsupport.RunGit(testInstance, remotePath, "rev-list", "--count", "main..TICKET-1/x")
			require.Equal(testInstance, "1", commitCount)
		})
	}
}
