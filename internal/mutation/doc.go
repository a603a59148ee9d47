// Package mutation defines the contract every per-repository transformation
// implements, the registry that resolves handlers by name, and the YAML
// definition format that selects and configures a handler for a run.
package mutation
