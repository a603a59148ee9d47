// Package githubcli wraps the GitHub CLI for repofleet pull request workflows.
//
// It layers typed request and response structures over gh pr list and gh pr
// create, and integrates with execshell so interactions with GitHub can be
// stubbed during testing.
package githubcli
