package flags

import (
	"strings"

	"github.com/spf13/cobra"
)

// OverrideString returns the flag value when the operator set the flag explicitly and
// it is not blank; otherwise the configured value is kept.
func OverrideString(command *cobra.Command, flagName string, configuredValue string) string {
	if command == nil {
		return configuredValue
	}
	flag := command.Flags().Lookup(flagName)
	if flag == nil || !flag.Changed {
		return configuredValue
	}
	if trimmedValue := strings.TrimSpace(flag.Value.String()); len(trimmedValue) > 0 {
		return trimmedValue
	}
	return configuredValue
}

// OverrideInt returns the flag value when the operator set the flag explicitly.
func OverrideInt(command *cobra.Command, flagName string, configuredValue int) int {
	if command == nil || !command.Flags().Changed(flagName) {
		return configuredValue
	}
	flagValue, flagError := command.Flags().GetInt(flagName)
	if flagError != nil {
		return configuredValue
	}
	return flagValue
}
