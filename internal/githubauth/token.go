// Package githubauth resolves the bearer credential used for GitHub access.
package githubauth

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variable names consulted for the GitHub token, in preference order.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitHubAPIToken = "GITHUB_API_TOKEN"
)

const (
	tokenMissingMessageConstant  = "github token not provided"
	tokenMissingTemplateConstant = "%w: set one of %s"
	tokenVariableSeparator       = ", "
)

// ErrTokenMissing indicates none of the supported environment variables carried a token.
var ErrTokenMissing = errors.New(tokenMissingMessageConstant)

var tokenPreference = []string{
	EnvGitHubCLIToken,
	EnvGitHubToken,
	EnvGitHubAPIToken,
}

// EnvironmentLookup mirrors os.LookupEnv.
type EnvironmentLookup func(key string) (string, bool)

// ResolveToken returns the first non-empty token found in the override map and,
// failing that, in the process environment.
func ResolveToken(overrides map[string]string) (string, bool) {
	return ResolveTokenWithLookup(overrides, os.LookupEnv)
}

// ResolveTokenWithLookup is ResolveToken with an injectable environment source.
func ResolveTokenWithLookup(overrides map[string]string, lookup EnvironmentLookup) (string, bool) {
	mapLookup := func(key string) (string, bool) {
		value, exists := overrides[key]
		return value, exists
	}
	for _, source := range []EnvironmentLookup{mapLookup, lookup} {
		if source == nil {
			continue
		}
		for _, key := range tokenPreference {
			if value, exists := source(key); exists {
				if trimmedValue := strings.TrimSpace(value); len(trimmedValue) > 0 {
					return trimmedValue, true
				}
			}
		}
	}
	return "", false
}

// RequireToken resolves a token or reports ErrTokenMissing naming the variables consulted.
func RequireToken(lookup EnvironmentLookup) (string, error) {
	token, found := ResolveTokenWithLookup(nil, lookup)
	if !found {
		return "", fmt.Errorf(tokenMissingTemplateConstant, ErrTokenMissing, strings.Join(tokenPreference, tokenVariableSeparator))
	}
	return token, nil
}
