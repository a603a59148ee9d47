package utils_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/repofleet/internal/utils"
)

func TestCommandContextAccessor(testInstance *testing.T) {
	accessor := utils.NewCommandContextAccessor()

	testCases := []struct {
		name               string
		buildContext       func() context.Context
		expectedConfigPath string
		expectedRunID      string
	}{
		{
			name:         "empty_context",
			buildContext: context.Background,
		},
		{
			name: "both_values",
			buildContext: func() context.Context {
				executionContext := accessor.WithConfigurationFilePath(context.Background(), "/etc/repofleet/config.yaml")
				return accessor.WithRunIdentifier(executionContext, "run-0001")
			},
			expectedConfigPath: "/etc/repofleet/config.yaml",
			expectedRunID:      "run-0001",
		},
		{
			name: "blank_values_are_absent",
			buildContext: func() context.Context {
				return accessor.WithRunIdentifier(accessor.WithConfigurationFilePath(context.Background(), ""), "")
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executionContext := testCase.buildContext()

			configPath, configPathAvailable := accessor.ConfigurationFilePath(executionContext)
			require.Equal(testInstance, len(testCase.expectedConfigPath) > 0, configPathAvailable)
			require.Equal(testInstance, testCase.expectedConfigPath, configPath)

			runIdentifier, runIdentifierAvailable := accessor.RunIdentifier(executionContext)
			require.Equal(testInstance, len(testCase.expectedRunID) > 0, runIdentifierAvailable)
			require.Equal(testInstance, testCase.expectedRunID, runIdentifier)
		})
	}
}
