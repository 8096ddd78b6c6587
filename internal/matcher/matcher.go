package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	ModeSubstring = "substring"
	ModeRegex     = "regex"
)

// Matcher classifies a log line as alert-worthy
// Implementations are pure and safe for any input, including empty lines
type Matcher interface {
	Match(line string) bool
	String() string
}

// Substring matches lines containing a fixed marker
type Substring struct {
	marker     string
	foldedCase bool
}

// NewSubstring creates a substring matcher
// Matching is case-sensitive unless caseInsensitive is set
func NewSubstring(marker string, caseInsensitive bool) *Substring {
	if caseInsensitive {
		marker = strings.ToLower(marker)
	}
	return &Substring{marker: marker, foldedCase: caseInsensitive}
}

// Match reports whether line contains the marker
func (m *Substring) Match(line string) bool {
	if m.foldedCase {
		line = strings.ToLower(line)
	}
	return strings.Contains(line, m.marker)
}

func (m *Substring) String() string {
	return fmt.Sprintf("substring(%q)", m.marker)
}

// Regex matches lines against a compiled regular expression
type Regex struct {
	re *regexp.Regexp
}

// NewRegex compiles pattern into a matcher
func NewRegex(pattern string, caseInsensitive bool) (*Regex, error) {
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid alert pattern: %w", err)
	}
	return &Regex{re: re}, nil
}

// Match reports whether line contains a match of the pattern
func (m *Regex) Match(line string) bool {
	return m.re.MatchString(line)
}

func (m *Regex) String() string {
	return fmt.Sprintf("regex(%q)", m.re.String())
}

// New builds a matcher for the configured mode
func New(mode, marker string, caseInsensitive bool) (Matcher, error) {
	if marker == "" {
		return nil, fmt.Errorf("alert marker is empty")
	}

	switch mode {
	case "", ModeSubstring:
		return NewSubstring(marker, caseInsensitive), nil
	case ModeRegex:
		return NewRegex(marker, caseInsensitive)
	default:
		return nil, fmt.Errorf("unsupported match mode: %s (use '%s' or '%s')", mode, ModeSubstring, ModeRegex)
	}
}
