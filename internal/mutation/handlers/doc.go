// Package handlers registers the built-in mutation handlers: line-append,
// file-remove, pattern-replace and yaml-field. Import it for its side effects.
package handlers
