// Package gitflow publishes a working copy's changes: it creates or reuses a
// feature branch, stages the handler's paths, commits, pushes, and opens a
// pull request against the default branch.
package gitflow
