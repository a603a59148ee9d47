// Package ui renders command lifecycle events for console output while
// structured telemetry continues to flow through the executor's logger.
package ui
