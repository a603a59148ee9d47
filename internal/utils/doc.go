// Package utils exposes reusable helpers consumed by the repofleet commands.
//
// ConfigurationLoader layers embedded defaults, an optional configuration file,
// and REPOFLEET_ prefixed environment variables through Viper. LoggerFactory
// builds zap loggers in structured or console form. CommandContextAccessor
// carries per-invocation values such as the run identifier through contexts.
package utils
