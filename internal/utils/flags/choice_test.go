package flags_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/temirov/repofleet/internal/utils/flags"
)

func TestFormatChoiceUsage(testInstance *testing.T) {
	testCases := []struct {
		name           string
		defaultChoice  string
		choices        []string
		description    string
		expectedOutput string
	}{
		{
			name:           "default_first",
			defaultChoice:  "api",
			choices:        []string{"api", "cli"},
			description:    "Pull request provider.",
			expectedOutput: "<API|cli> Pull request provider.",
		},
		{
			name:           "default_second",
			defaultChoice:  "https",
			choices:        []string{"ssh", "https"},
			description:    "Clone protocol.",
			expectedOutput: "<ssh|HTTPS> Clone protocol.",
		},
		{
			name:           "empty_description",
			defaultChoice:  "ssh",
			choices:        []string{"ssh", "https"},
			expectedOutput: "<SSH|https>",
		},
		{
			name:           "duplicates_and_blanks_dropped",
			defaultChoice:  " CLI ",
			choices:        []string{"api", " ", "API", "cli"},
			description:    "Provider.",
			expectedOutput: "<api|CLI> Provider.",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedOutput, flags.FormatChoiceUsage(testCase.defaultChoice, testCase.choices, testCase.description))
		})
	}
}

func TestOverridesPreferExplicitFlags(testInstance *testing.T) {
	command := &cobra.Command{Use: "run"}
	command.Flags().String("organization", "", "")
	command.Flags().String("skip-file", "", "")
	command.Flags().String("marker-file", "", "")
	command.Flags().Int("per-page", 0, "")
	require.NoError(testInstance, command.Flags().Parse([]string{"--organization", "acme", "--per-page", "25", "--marker-file", " "}))

	require.Equal(testInstance, "acme", flags.OverrideString(command, "organization", "configured"))
	require.Equal(testInstance, "configured", flags.OverrideString(command, "skip-file", "configured"))
	require.Equal(testInstance, "configured", flags.OverrideString(command, "marker-file", "configured"))
	require.Equal(testInstance, "configured", flags.OverrideString(command, "missing", "configured"))
	require.Equal(testInstance, 25, flags.OverrideInt(command, "per-page", 100))
	require.Equal(testInstance, 100, flags.OverrideInt(nil, "per-page", 100))
}
