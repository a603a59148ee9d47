// Package localsync brings a local working copy of a discovered repository to
// the tip of its default branch, cloning it when absent and discarding any
// local state when present.
package localsync
