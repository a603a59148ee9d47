// Package orchestrator drives a fleet run: it walks the organization listing,
// filters repositories through the skip registry, synchronizes each working
// copy, invokes one mutation handler and publishes the resulting changes.
//
// Every repository ends in exactly one Outcome. Failures are recorded and the
// loop advances; only a discovery failure or a cancelled context ends a run
// early, and the partial Report is still returned.
package orchestrator
