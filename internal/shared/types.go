// Package shared holds value types exchanged between the repofleet pipeline stages.
package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/temirov/repofleet/internal/execshell"
)

const (
	// OriginRemoteNameConstant identifies the default upstream remote.
	OriginRemoteNameConstant = "origin"
	// GitTerminalPromptVariableConstant disables interactive credential prompts in git.
	GitTerminalPromptVariableConstant = "GIT_TERMINAL_PROMPT"
	// GitTerminalPromptDisabledValueConstant disables the prompt when assigned to GitTerminalPromptVariableConstant.
	GitTerminalPromptDisabledValueConstant = "0"

	fullNameTemplateConstant        = "%s/%s"
	unsupportedProtocolTemplate     = "unsupported clone protocol %q"
	missingCloneURLTemplateConstant = "repository %s has no %s clone URL"
)

// CloneProtocol enumerates supported clone transports.
type CloneProtocol string

// Supported clone protocols.
const (
	CloneProtocolSSH   CloneProtocol = "ssh"
	CloneProtocolHTTPS CloneProtocol = "https"
)

// ParseCloneProtocol normalizes a configured clone protocol.
func ParseCloneProtocol(rawProtocol string) (CloneProtocol, error) {
	switch CloneProtocol(strings.ToLower(strings.TrimSpace(rawProtocol))) {
	case CloneProtocolSSH:
		return CloneProtocolSSH, nil
	case CloneProtocolHTTPS:
		return CloneProtocolHTTPS, nil
	default:
		return "", fmt.Errorf(unsupportedProtocolTemplate, rawProtocol)
	}
}

// RepositoryDescriptor identifies one repository yielded by discovery. Raw keeps
// the listing record untouched for handlers that need more than the core fields.
type RepositoryDescriptor struct {
	Owner         string
	Name          string
	DefaultBranch string
	CloneURL      string
	SSHURL        string
	Raw           json.RawMessage
}

// FullName returns owner/name.
func (descriptor RepositoryDescriptor) FullName() string {
	return fmt.Sprintf(fullNameTemplateConstant, descriptor.Owner, descriptor.Name)
}

// CloneURLFor selects the clone URL matching the requested protocol.
func (descriptor RepositoryDescriptor) CloneURLFor(protocol CloneProtocol) (string, error) {
	var selectedURL string
	switch protocol {
	case CloneProtocolSSH:
		selectedURL = descriptor.SSHURL
	case CloneProtocolHTTPS:
		selectedURL = descriptor.CloneURL
	default:
		return "", fmt.Errorf(unsupportedProtocolTemplate, string(protocol))
	}
	if len(strings.TrimSpace(selectedURL)) == 0 {
		return "", fmt.Errorf(missingCloneURLTemplateConstant, descriptor.FullName(), protocol)
	}
	return selectedURL, nil
}

// WorkingCopy is a synchronized local checkout of a repository.
type WorkingCopy struct {
	Descriptor    RepositoryDescriptor
	Path          string
	DefaultBranch string
	Cloned        bool
}

// GitExecutor exposes the subset of shell execution used by the pipeline stages.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// GitHubCLIExecutor exposes gh invocations.
type GitHubCLIExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// NonInteractiveGitEnvironment returns the environment applied to every git invocation.
func NonInteractiveGitEnvironment() map[string]string {
	return map[string]string{GitTerminalPromptVariableConstant: GitTerminalPromptDisabledValueConstant}
}

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}
