package testsupport

import (
	"context"
	"strings"

	"github.com/temirov/repofleet/internal/execshell"
)

// ScriptedResponse is returned by CommandExecutorStub when a command line starts with its prefix.
type ScriptedResponse struct {
	Prefix         string
	StandardOutput string
	StandardError  string
	ExitCode       int
	Error          error
	// Once consumes the response after its first match.
	Once bool
}

// CommandExecutorStub records git and GitHub CLI invocations and replays scripted results.
type CommandExecutorStub struct {
	Responses              []ScriptedResponse
	ExecutedGitCommands    []execshell.CommandDetails
	ExecutedGitHubCommands []execshell.CommandDetails
}

// ExecuteGit records details and returns the first matching scripted response.
func (executor *CommandExecutorStub) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.ExecutedGitCommands = append(executor.ExecutedGitCommands, details)
	return executor.respond(execshell.CommandGit, details)
}

// ExecuteGitHubCLI records details and returns the first matching scripted response.
func (executor *CommandExecutorStub) ExecuteGitHubCLI(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.ExecutedGitHubCommands = append(executor.ExecutedGitHubCommands, details)
	return executor.respond(execshell.CommandGitHub, details)
}

// GitCommandLines renders recorded git invocations as space separated argument lines.
func (executor *CommandExecutorStub) GitCommandLines() []string {
	lines := make([]string, 0, len(executor.ExecutedGitCommands))
	for _, details := range executor.ExecutedGitCommands {
		lines = append(lines, strings.Join(details.Arguments, " "))
	}
	return lines
}

func (executor *CommandExecutorStub) respond(commandName execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	commandLine := strings.Join(details.Arguments, " ")
	for responseIndex, response := range executor.Responses {
		if !strings.HasPrefix(commandLine, response.Prefix) {
			continue
		}
		if response.Once {
			executor.Responses = append(executor.Responses[:responseIndex:responseIndex], executor.Responses[responseIndex+1:]...)
		}
		if response.Error != nil {
			return execshell.ExecutionResult{}, response.Error
		}
		result := execshell.ExecutionResult{
			StandardOutput: response.StandardOutput,
			StandardError:  response.StandardError,
			ExitCode:       response.ExitCode,
		}
		if result.ExitCode != 0 {
			return execshell.ExecutionResult{}, execshell.CommandFailedError{
				Command: execshell.ShellCommand{Name: commandName, Details: details},
				Result:  result,
			}
		}
		return result, nil
	}
	return execshell.ExecutionResult{}, nil
}
