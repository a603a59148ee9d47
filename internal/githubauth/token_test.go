package githubauth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/repofleet/internal/githubauth"
)

func staticLookup(values map[string]string) githubauth.EnvironmentLookup {
	return func(key string) (string, bool) {
		value, exists := values[key]
		return value, exists
	}
}

func TestResolveTokenWithLookupPreferenceOrder(testInstance *testing.T) {
	testCases := []struct {
		name          string
		overrides     map[string]string
		environment   map[string]string
		expectedToken string
		expectedFound bool
	}{
		{
			name:          "gh_token_wins",
			environment:   map[string]string{githubauth.EnvGitHubCLIToken: "cli", githubauth.EnvGitHubToken: "github"},
			expectedToken: "cli",
			expectedFound: true,
		},
		{
			name:          "blank_values_ignored",
			environment:   map[string]string{githubauth.EnvGitHubCLIToken: "  ", githubauth.EnvGitHubAPIToken: " api "},
			expectedToken: "api",
			expectedFound: true,
		},
		{
			name:          "overrides_take_precedence",
			overrides:     map[string]string{githubauth.EnvGitHubToken: "override"},
			environment:   map[string]string{githubauth.EnvGitHubCLIToken: "cli"},
			expectedToken: "override",
			expectedFound: true,
		},
		{
			name:        "nothing_configured",
			environment: map[string]string{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			token, found := githubauth.ResolveTokenWithLookup(testCase.overrides, staticLookup(testCase.environment))
			require.Equal(testInstance, testCase.expectedFound, found)
			require.Equal(testInstance, testCase.expectedToken, token)
		})
	}
}

func TestRequireTokenReportsMissingToken(testInstance *testing.T) {
	_, tokenError := githubauth.RequireToken(staticLookup(nil))
	require.ErrorIs(testInstance, tokenError, githubauth.ErrTokenMissing)
	require.Contains(testInstance, tokenError.Error(), githubauth.EnvGitHubAPIToken)

	token, tokenError := githubauth.RequireToken(staticLookup(map[string]string{githubauth.EnvGitHubToken: "secret"}))
	require.NoError(testInstance, tokenError)
	require.Equal(testInstance, "secret", token)
}
