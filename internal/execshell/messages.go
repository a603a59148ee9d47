package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	exitCodeSuffixTemplateConstant          = " (exit code %d%s)"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	currentRepositoryLabelConstant          = "current repository"
	flagPrefixConstant                      = "-"
	pathspecSeparatorConstant               = "--"
	remoteProgressLinePrefixConstant        = "remote:"
	pathspecJoinSeparatorConstant           = ", "
	newlineSeparatorConstant                = "\n"
)

const (
	gitCloneSubcommandNameConstant    = "clone"
	gitResetSubcommandNameConstant    = "reset"
	gitCleanSubcommandNameConstant    = "clean"
	gitCheckoutSubcommandNameConstant = "checkout"
	gitPullSubcommandNameConstant     = "pull"
	gitLSFilesSubcommandNameConstant  = "ls-files"
	gitAddSubcommandNameConstant      = "add"
	gitCommitSubcommandNameConstant   = "commit"
	gitPushSubcommandNameConstant     = "push"
	gitCreateBranchFlagConstant       = "-b"
	gitMessageFlagConstant            = "-m"

	githubPullRequestSubcommandNameConstant       = "pr"
	githubPullRequestCreateSubcommandNameConstant = "create"
	githubPullRequestListSubcommandNameConstant   = "list"
	githubRepoFlagConstant                        = "--repo"
	githubHeadFlagConstant                        = "--head"
	githubBaseFlagConstant                        = "--base"
)

// lifecycleTemplates holds one message template per lifecycle stage. Failure
// templates receive the subjects followed by the exit code suffix; execution
// failure templates receive the subjects followed by the failure text.
type lifecycleTemplates struct {
	start            string
	success          string
	failure          string
	executionFailure string
}

var (
	gitCloneTemplates = lifecycleTemplates{
		start:            "Cloning %s into %s",
		success:          "Cloned %s into %s",
		failure:          "Failed to clone %s into %s%s",
		executionFailure: "Unable to clone %s into %s: %s",
	}
	gitResetTemplates = lifecycleTemplates{
		start:            "Discarding local changes in %s",
		success:          "Discarded local changes in %s",
		failure:          "Failed to discard local changes in %s%s",
		executionFailure: "Unable to discard local changes in %s: %s",
	}
	gitCleanTemplates = lifecycleTemplates{
		start:            "Removing untracked files in %s",
		success:          "Removed untracked files in %s",
		failure:          "Failed to remove untracked files in %s%s",
		executionFailure: "Unable to remove untracked files in %s: %s",
	}
	gitBranchCreationTemplates = lifecycleTemplates{
		start:            "Creating branch %s in %s",
		success:          "Created branch %s in %s",
		failure:          "Failed to create branch %s in %s%s",
		executionFailure: "Unable to create branch %s in %s: %s",
	}
	gitCheckoutTemplates = lifecycleTemplates{
		start:            "Switching %s to branch %s",
		success:          "%s now on branch %s",
		failure:          "Failed to switch %s to branch %s%s",
		executionFailure: "Unable to switch %s to branch %s: %s",
	}
	gitPullTemplates = lifecycleTemplates{
		start:            "Pulling latest changes into %s",
		success:          "Pulled latest changes into %s",
		failure:          "Failed to pull latest changes into %s%s",
		executionFailure: "Unable to pull latest changes into %s: %s",
	}
	gitLSFilesTemplates = lifecycleTemplates{
		start:            "Inspecting files matching %s in %s",
		success:          "Inspected files matching %s in %s",
		failure:          "Failed to inspect files matching %s in %s%s",
		executionFailure: "Unable to inspect files matching %s in %s: %s",
	}
	gitAddTemplates = lifecycleTemplates{
		start:            "Staging %s in %s",
		success:          "Staged %s in %s",
		failure:          "Failed to stage %s in %s%s",
		executionFailure: "Unable to stage %s in %s: %s",
	}
	gitCommitTemplates = lifecycleTemplates{
		start:            "Creating commit in %s with message %q",
		success:          "Created commit in %s with message %q",
		failure:          "Failed to create commit in %s with message %q%s",
		executionFailure: "Unable to create commit in %s with message %q: %s",
	}
	gitPushTemplates = lifecycleTemplates{
		start:            "Pushing %s to %s from %s",
		success:          "Pushed %s to %s from %s",
		failure:          "Failed to push %s to %s from %s%s",
		executionFailure: "Unable to push %s to %s from %s: %s",
	}
	githubPullRequestCreateTemplates = lifecycleTemplates{
		start:            "Opening pull request from %s into %s for %s",
		success:          "Opened pull request from %s into %s for %s",
		failure:          "Failed to open pull request from %s into %s for %s%s",
		executionFailure: "Unable to open pull request from %s into %s for %s: %s",
	}
	githubPullRequestListTemplates = lifecycleTemplates{
		start:            "Looking up open pull requests from %s for %s",
		success:          "Looked up open pull requests from %s for %s",
		failure:          "Failed to look up open pull requests from %s for %s%s",
		executionFailure: "Unable to look up open pull requests from %s for %s: %s",
	}
)

// Flags whose following argument is a value rather than a positional argument.
var valueFlags = map[string]struct{}{
	gitCreateBranchFlagConstant: {},
	gitMessageFlagConstant:      {},
	githubRepoFlagConstant:      {},
	githubHeadFlagConstant:      {},
	githubBaseFlagConstant:      {},
	"--title":                   {},
	"--body":                    {},
	"--reviewer":                {},
	"--json":                    {},
	"--state":                   {},
	"--jq":                      {},
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	templates, subjects, recognized := formatter.describe(command)
	if !recognized {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates.start, subjects...)
	case messageStageSuccess:
		return fmt.Sprintf(templates.success, subjects...)
	case messageStageFailure:
		exitSuffix := fmt.Sprintf(exitCodeSuffixTemplateConstant, result.ExitCode, formatter.formatStandardErrorSuffix(formatter.sanitizeStandardError(command, result.StandardError)))
		return fmt.Sprintf(templates.failure, append(subjects, exitSuffix)...)
	case messageStageExecutionFailure:
		return fmt.Sprintf(templates.executionFailure, append(subjects, formatter.describeFailure(failure))...)
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) describe(command ShellCommand) (lifecycleTemplates, []any, bool) {
	arguments := command.Details.Arguments
	if len(arguments) == 0 {
		return lifecycleTemplates{}, nil, false
	}
	workingDirectory := formatter.describeWorkingDirectory(command)
	subcommand := strings.TrimSpace(arguments[0])
	remaining := arguments[1:]

	switch command.Name {
	case CommandGit:
		positional := positionalArguments(remaining)
		switch subcommand {
		case gitCloneSubcommandNameConstant:
			return gitCloneTemplates, []any{formatter.argumentAtIndex(positional, 0), formatter.argumentAtIndex(positional, 1)}, true
		case gitResetSubcommandNameConstant:
			return gitResetTemplates, []any{workingDirectory}, true
		case gitCleanSubcommandNameConstant:
			return gitCleanTemplates, []any{workingDirectory}, true
		case gitCheckoutSubcommandNameConstant:
			if newBranch := findFlagValue(remaining, gitCreateBranchFlagConstant); len(newBranch) > 0 {
				return gitBranchCreationTemplates, []any{newBranch, workingDirectory}, true
			}
			return gitCheckoutTemplates, []any{workingDirectory, formatter.argumentAtIndex(positional, 0)}, true
		case gitPullSubcommandNameConstant:
			return gitPullTemplates, []any{workingDirectory}, true
		case gitLSFilesSubcommandNameConstant:
			return gitLSFilesTemplates, []any{formatter.describePathspecs(remaining), workingDirectory}, true
		case gitAddSubcommandNameConstant:
			return gitAddTemplates, []any{formatter.describePathspecs(remaining), workingDirectory}, true
		case gitCommitSubcommandNameConstant:
			return gitCommitTemplates, []any{workingDirectory, formatter.ensureValue(findFlagValue(remaining, gitMessageFlagConstant))}, true
		case gitPushSubcommandNameConstant:
			return gitPushTemplates, []any{formatter.argumentAtIndex(positional, 1), formatter.argumentAtIndex(positional, 0), workingDirectory}, true
		}
	case CommandGitHub:
		if subcommand != githubPullRequestSubcommandNameConstant || len(remaining) == 0 {
			return lifecycleTemplates{}, nil, false
		}
		repository := findFlagValue(remaining, githubRepoFlagConstant)
		if len(repository) == 0 {
			repository = currentRepositoryLabelConstant
		}
		head := formatter.ensureValue(findFlagValue(remaining, githubHeadFlagConstant))
		switch strings.TrimSpace(remaining[0]) {
		case githubPullRequestCreateSubcommandNameConstant:
			return githubPullRequestCreateTemplates, []any{head, formatter.ensureValue(findFlagValue(remaining, githubBaseFlagConstant)), repository}, true
		case githubPullRequestListSubcommandNameConstant:
			return githubPullRequestListTemplates, []any{head, repository}, true
		}
	}
	return lifecycleTemplates{}, nil, false
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

// sanitizeStandardError drops remote progress chatter that git push prints on stderr.
func (formatter CommandMessageFormatter) sanitizeStandardError(command ShellCommand, standardError string) string {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 || strings.TrimSpace(command.Details.Arguments[0]) != gitPushSubcommandNameConstant {
		return strings.TrimSpace(standardError)
	}
	keptLines := make([]string, 0)
	for _, line := range strings.Split(standardError, newlineSeparatorConstant) {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 || strings.HasPrefix(trimmedLine, remoteProgressLinePrefixConstant) {
			continue
		}
		keptLines = append(keptLines, trimmedLine)
	}
	return strings.Join(keptLines, newlineSeparatorConstant)
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandLabel := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLabel = commandLabel + commandArgumentsJoinSeparatorConstant + strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant)
	}
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return commandLabel
	}
	return commandLabel + fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) describePathspecs(arguments []string) string {
	for index, argument := range arguments {
		if strings.TrimSpace(argument) == pathspecSeparatorConstant {
			pathspecs := arguments[index+1:]
			if len(pathspecs) == 0 {
				break
			}
			return strings.Join(pathspecs, pathspecJoinSeparatorConstant)
		}
	}
	return formatter.ensureValue(formatter.argumentAtIndex(positionalArguments(arguments), 0))
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return fallbackUnknownValueLabelConstant
	}
	return formatter.ensureValue(arguments[index])
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

// positionalArguments returns non-flag arguments, skipping the values of known value flags.
func positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		trimmed := strings.TrimSpace(arguments[index])
		if len(trimmed) == 0 || trimmed == pathspecSeparatorConstant {
			continue
		}
		if strings.HasPrefix(trimmed, flagPrefixConstant) {
			if _, takesValue := valueFlags[trimmed]; takesValue {
				index++
			}
			continue
		}
		positional = append(positional, trimmed)
	}
	return positional
}

func findFlagValue(arguments []string, flag string) string {
	for index := 0; index < len(arguments); index++ {
		if strings.TrimSpace(arguments[index]) == flag && index+1 < len(arguments) {
			return strings.TrimSpace(arguments[index+1])
		}
	}
	return emptyStringConstant
}
