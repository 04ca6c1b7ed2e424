package validate

import (
	"fmt"
	"strings"

	"github.com/at-bus-load/pkg/atbus/models"
)

// Violation is a single failed constraint at a field path such as
// data[3].attributes.stop_lat
type Violation struct {
	Path       string
	Constraint string
	Message    string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Path, v.Message, v.Constraint)
}

// ValidationError lists every violation found in an envelope, not just the first
type ValidationError struct {
	Kind       models.Kind
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid %s payload, %d violation(s): %s",
		e.Kind, len(e.Violations), strings.Join(parts, "; "))
}

// Paths returns the offending field paths in report order
func (e *ValidationError) Paths() []string {
	paths := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		paths[i] = v.Path
	}
	return paths
}

// WithPrefix returns a copy whose paths start with prefix, e.g. pages[2].
func (e *ValidationError) WithPrefix(prefix string) *ValidationError {
	out := &ValidationError{Kind: e.Kind, Violations: make([]Violation, len(e.Violations))}
	for i, v := range e.Violations {
		v.Path = prefix + v.Path
		out.Violations[i] = v
	}
	return out
}

func (e *ValidationError) add(path, constraint, message string) {
	e.Violations = append(e.Violations, Violation{Path: path, Constraint: constraint, Message: message})
}
