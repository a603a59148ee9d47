// Package execshell provides structured helpers for invoking external tools.
//
// ShellExecutor wraps a CommandRunner with structured logging, optional
// per-command timeouts, and lifecycle notifications. OSCommandRunner is the
// default os/exec backed runner. Every git and gh invocation made by repofleet
// flows through this package so that results are returned as values and
// non-zero exit codes surface as CommandFailedError.
package execshell
