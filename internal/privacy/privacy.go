// Package privacy detects and redacts sensitive content before it reaches
// memory files. Detection is regex-only; nothing leaves the process.
package privacy

import (
	"fmt"
	"regexp"
)

// Filter matches text against a set of case-insensitive patterns.
type Filter struct {
	enabled  bool
	compiled []*regexp.Regexp
	patterns []string
}

// NewFilter compiles the given patterns. Invalid patterns are an error so a
// typo in config does not silently disable protection.
func NewFilter(patterns []string, enabled bool) (*Filter, error) {
	f := &Filter{enabled: enabled, patterns: patterns}
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("invalid privacy pattern %q: %w", p, err)
		}
		f.compiled = append(f.compiled, re)
	}
	return f, nil
}

// ContainsSensitive reports whether text matches any pattern.
func (f *Filter) ContainsSensitive(text string) bool {
	if !f.enabled {
		return false
	}
	for _, re := range f.compiled {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Violations returns the source patterns that matched text.
func (f *Filter) Violations(text string) []string {
	if !f.enabled {
		return nil
	}
	var out []string
	for i, re := range f.compiled {
		if re.MatchString(text) {
			out = append(out, f.patterns[i])
		}
	}
	return out
}

// Redact replaces every match with [REDACTED].
func (f *Filter) Redact(text string) string {
	if !f.enabled {
		return text
	}
	for _, re := range f.compiled {
		text = re.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}
