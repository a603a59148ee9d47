package skiplist

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	skipCommandUseConstant              = "skip"
	skipCommandShortDescriptionConstant = "Manage repositories excluded from runs"
	skipCommandLongDescriptionConstant  = "skip maintains the skip file consulted by run. Names are appended and never removed by the tool."
	addCommandUseConstant               = "add <repository>..."
	addCommandShortDescriptionConstant  = "Append repositories to the skip file"
	listCommandUseConstant              = "list"
	listCommandShortDescriptionConstant = "Print repositories recorded in the skip file"
	checkCommandUseConstant             = "check <repository>..."
	checkCommandShortDescConstant       = "Explain whether repositories would be skipped"
	registryCreationErrorTemplate       = "unable to construct skip registry: %w"
	registryLoadErrorTemplate           = "unable to read skip file: %w"
	appendFailureErrorTemplate          = "unable to record %s in skip file: %w"
	checkSkippedLineTemplate            = "%s\tskip\t%s\n"
	checkProcessedLineTemplate          = "%s\tprocess\n"
	listLineTemplate                    = "%s\n"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the skip command group.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	FileSystem            afero.Fs
	ConfigurationProvider func() CommandConfiguration
}

// Build constructs the skip command with its add, list and check subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           skipCommandUseConstant,
		Short:         skipCommandShortDescriptionConstant,
		Long:          skipCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
	}

	command.AddCommand(&cobra.Command{
		Use:           addCommandUseConstant,
		Short:         addCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MinimumNArgs(1),
		RunE:          builder.runAdd,
	})
	command.AddCommand(&cobra.Command{
		Use:           listCommandUseConstant,
		Short:         listCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runList,
	})
	command.AddCommand(&cobra.Command{
		Use:           checkCommandUseConstant,
		Short:         checkCommandShortDescConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MinimumNArgs(1),
		RunE:          builder.runCheck,
	})

	return command, nil
}

func (builder *CommandBuilder) runAdd(command *cobra.Command, arguments []string) error {
	registry, registryError := builder.loadRegistry(true)
	if registryError != nil {
		return registryError
	}
	for _, repositoryName := range arguments {
		if appendError := registry.Append(repositoryName); appendError != nil {
			return fmt.Errorf(appendFailureErrorTemplate, strings.TrimSpace(repositoryName), appendError)
		}
	}
	return nil
}

func (builder *CommandBuilder) runList(command *cobra.Command, arguments []string) error {
	registry, registryError := builder.loadRegistry(true)
	if registryError != nil {
		return registryError
	}
	for _, repositoryName := range registry.Names() {
		fmt.Fprintf(command.OutOrStdout(), listLineTemplate, repositoryName)
	}
	return nil
}

func (builder *CommandBuilder) runCheck(command *cobra.Command, arguments []string) error {
	registry, registryError := builder.loadRegistry(false)
	if registryError != nil {
		return registryError
	}
	for _, repositoryName := range arguments {
		decision := registry.Evaluate(repositoryName)
		if decision.Skip {
			fmt.Fprintf(command.OutOrStdout(), checkSkippedLineTemplate, repositoryName, decision.Describe())
			continue
		}
		fmt.Fprintf(command.OutOrStdout(), checkProcessedLineTemplate, repositoryName)
	}
	return nil
}

// loadRegistry builds and loads the registry. When strict is set an unreadable
// skip file is an error, since add and list operate on the file itself.
func (builder *CommandBuilder) loadRegistry(strict bool) (*Registry, error) {
	configuration := builder.resolveConfiguration()
	registry, registryError := NewRegistry(builder.resolveFileSystem(), configuration.SkipFile, configuration.SkipPatterns, builder.resolveLogger())
	if registryError != nil {
		return nil, fmt.Errorf(registryCreationErrorTemplate, registryError)
	}
	registry.Load()
	if strict && registry.Degraded() {
		return nil, fmt.Errorf(registryLoadErrorTemplate, registry.LoadError())
	}
	return registry, nil
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
	return builder.ConfigurationProvider().Sanitize()
}
