// Package cli constructs the repofleet command-line interface, wiring the
// Cobra command hierarchy, configuration loader, and structured logging
// primitives. Configuration is layered from built-in defaults, an embedded
// document, an optional config file and REPOFLEET_ prefixed environment
// variables.
package cli
