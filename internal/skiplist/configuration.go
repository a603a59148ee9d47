package skiplist

import "strings"

// CommandConfiguration captures the persisted skip settings shared by run and skip commands.
type CommandConfiguration struct {
	SkipFile     string   `mapstructure:"skip_file"`
	SkipPatterns []string `mapstructure:"skip_patterns"`
}

// DefaultCommandConfiguration returns the built-in skip settings.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		SkipFile:     DefaultSkipFileNameConstant,
		SkipPatterns: append([]string(nil), DefaultSkipPatterns...),
	}
}

// Sanitize trims values, drops blank patterns, and restores the default skip file.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.SkipFile = strings.TrimSpace(configuration.SkipFile)
	if len(sanitized.SkipFile) == 0 {
		sanitized.SkipFile = DefaultSkipFileNameConstant
	}
	sanitized.SkipPatterns = nil
	for _, pattern := range configuration.SkipPatterns {
		trimmedPattern := strings.TrimSpace(pattern)
		if len(trimmedPattern) == 0 {
			continue
		}
		sanitized.SkipPatterns = append(sanitized.SkipPatterns, trimmedPattern)
	}
	return sanitized
}
