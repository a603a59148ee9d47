// Package testsupport provides fixtures shared by package tests: real git
// repositories in temporary directories and scripted executors.
package testsupport

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/execshell"
)

const (
	gitExecutableNameConstant    = "git"
	fixtureBranchNameConstant    = "main"
	fixtureAuthorNameConstant    = "Fleet Fixture"
	fixtureAuthorEmailConstant   = "fixture@example.com"
	fixtureSeedDirectoryName     = "seed"
	fixtureRemoteDirectorySuffix = ".git"
	skipWithoutGitMessage        = "git executable not available"
)

// RequireGit skips the test when git is missing and pins a deterministic identity.
func RequireGit(testInstance *testing.T) {
	testInstance.Helper()
	if _, lookupError := exec.LookPath(gitExecutableNameConstant); lookupError != nil {
		testInstance.Skip(skipWithoutGitMessage)
	}
	testInstance.Setenv("GIT_AUTHOR_NAME", fixtureAuthorNameConstant)
	testInstance.Setenv("GIT_AUTHOR_EMAIL", fixtureAuthorEmailConstant)
	testInstance.Setenv("GIT_COMMITTER_NAME", fixtureAuthorNameConstant)
	testInstance.Setenv("GIT_COMMITTER_EMAIL", fixtureAuthorEmailConstant)
	testInstance.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	testInstance.Setenv("GIT_CONFIG_GLOBAL", os.DevNull)
}

// RunGit executes git in directory and returns trimmed standard output.
func RunGit(testInstance *testing.T, directory string, arguments ...string) string {
	testInstance.Helper()
	command := exec.Command(gitExecutableNameConstant, arguments...)
	command.Dir = directory
	output, runError := command.CombinedOutput()
	require.NoErrorf(testInstance, runError, "git %s: %s", strings.Join(arguments, " "), string(output))
	return strings.TrimSpace(string(output))
}

// NewRemoteRepository creates a bare repository named name beneath a temporary
// directory whose main branch holds files. It returns the bare repository path.
func NewRemoteRepository(testInstance *testing.T, name string, files map[string]string) string {
	testInstance.Helper()
	fixtureRoot := testInstance.TempDir()
	seedPath := filepath.Join(fixtureRoot, fixtureSeedDirectoryName)
	require.NoError(testInstance, os.MkdirAll(seedPath, 0o755))

	RunGit(testInstance, seedPath, "init", "-q", "-b", fixtureBranchNameConstant)
	for relativePath, contents := range files {
		absolutePath := filepath.Join(seedPath, relativePath)
		require.NoError(testInstance, os.MkdirAll(filepath.Dir(absolutePath), 0o755))
		require.NoError(testInstance, os.WriteFile(absolutePath, []byte(contents), 0o644))
	}
	RunGit(testInstance, seedPath, "add", "-A")
	RunGit(testInstance, seedPath, "commit", "-q", "--allow-empty", "-m", "seed")

	remotePath := filepath.Join(fixtureRoot, name+fixtureRemoteDirectorySuffix)
	RunGit(testInstance, fixtureRoot, "clone", "-q", "--bare", seedPath, remotePath)
	return remotePath
}

// PushRemoteChange commits a file to the remote's main branch through a scratch clone.
func PushRemoteChange(testInstance *testing.T, remotePath string, relativePath string, contents string) {
	testInstance.Helper()
	scratchPath := filepath.Join(testInstance.TempDir(), "scratch")
	RunGit(testInstance, filepath.Dir(scratchPath), "clone", "-q", remotePath, scratchPath)
	absolutePath := filepath.Join(scratchPath, relativePath)
	require.NoError(testInstance, os.MkdirAll(filepath.Dir(absolutePath), 0o755))
	require.NoError(testInstance, os.WriteFile(absolutePath, []byte(contents), 0o644))
	RunGit(testInstance, scratchPath, "add", "-A")
	RunGit(testInstance, scratchPath, "commit", "-q", "-m", "remote change")
	RunGit(testInstance, scratchPath, "push", "-q", "origin", fixtureBranchNameConstant)
}

// NewShellExecutor returns a ShellExecutor backed by the operating system runner.
func NewShellExecutor(testInstance *testing.T, logger *zap.Logger) *execshell.ShellExecutor {
	testInstance.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	executor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	require.NoError(testInstance, executorError)
	return executor
}
