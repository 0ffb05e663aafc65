// Package matcher decides which log lines raise an alert.
package matcher

import (
	"errors"
	"fmt"
	"regexp"
)

// Matcher tests lines against one compiled pattern. It holds no mutable state
// and is safe for concurrent use.
type Matcher struct {
	re *regexp.Regexp
}

// New compiles pattern (RE2 syntax). Case-insensitivity must be requested by
// the pattern itself, e.g. "(?i)error".
func New(pattern string) (*Matcher, error) {
	if pattern == "" {
		return nil, errors.New("matcher: empty pattern")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("matcher: compile %q: %w", pattern, err)
	}
	return &Matcher{re: re}, nil
}

// Test reports whether the pattern occurs anywhere in line.
func (m *Matcher) Test(line string) bool {
	return m.re.MatchString(line)
}

// String returns the source pattern.
func (m *Matcher) String() string {
	return m.re.String()
}
