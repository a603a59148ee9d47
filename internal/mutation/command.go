package mutation

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const (
	handlersCommandUseConstant              = "handlers"
	handlersCommandShortDescriptionConstant = "List mutation handlers available to definition files"
	handlersLineTemplateConstant            = "%s\t%s\n"
	handlersNoneMessageConstant             = "no handlers registered\n"
	handlersTableMinimumWidthConstant       = 0
	handlersTableTabWidthConstant           = 4
	handlersTablePaddingConstant            = 2
	handlersTablePaddingCharacterConstant   = ' '
)

// CommandBuilder assembles the handlers command.
type CommandBuilder struct {
	Registry *Registry
}

// Build constructs the handlers command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	return &cobra.Command{
		Use:           handlersCommandUseConstant,
		Short:         handlersCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	registry := builder.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	registrations := registry.Registrations()
	if len(registrations) == 0 {
		_, writeError := fmt.Fprint(command.OutOrStdout(), handlersNoneMessageConstant)
		return writeError
	}

	writer := tabwriter.NewWriter(command.OutOrStdout(), handlersTableMinimumWidthConstant, handlersTableTabWidthConstant, handlersTablePaddingConstant, handlersTablePaddingCharacterConstant, 0)
	for _, registration := range registrations {
		if _, writeError := fmt.Fprintf(writer, handlersLineTemplateConstant, registration.Name, registration.Description); writeError != nil {
			return writeError
		}
	}
	return writer.Flush()
}
