package check

import (
	"fmt"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// Severity represents the severity level of a finding.
type Severity int

const (
	// SeverityError indicates a tree that tools will misread or reject.
	SeverityError Severity = iota
	// SeverityWarning indicates a potential issue that should be addressed.
	SeverityWarning
	// SeverityInfo indicates an informational note or suggestion.
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSeverity parses "error", "warning" or "info".
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return SeverityError, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "info":
		return SeverityInfo, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// Rule is a consistency rule applied to a device.
type Rule interface {
	// ID returns the unique identifier for this rule (e.g., "FLD001").
	ID() string
	// Name returns a human-readable name for the rule.
	Name() string
	// Category returns the rule category (e.g., "layout", "derive").
	Category() string
	// DefaultSeverity returns the default severity level.
	DefaultSeverity() Severity
	// Check applies the rule to a device and returns any violations.
	Check(dev *svd.Device) []Violation
}

// Violation is a single finding of a rule.
type Violation struct {
	// RuleID is the ID of the rule that was violated.
	RuleID string `json:"rule"`
	// Severity is the severity level of this violation.
	Severity Severity `json:"severity"`
	// Message describes what went wrong.
	Message string `json:"message"`
	// Path locates the element, e.g. "GPIOA/MODER/MODER0".
	Path string `json:"path,omitempty"`
	// Suggestion provides a suggested fix (if applicable).
	Suggestion string `json:"suggestion,omitempty"`
}

// String returns a formatted string representation of the violation.
func (v Violation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: ", v.RuleID, v.Severity)
	if v.Path != "" {
		sb.WriteString(v.Path)
		sb.WriteString(": ")
	}
	sb.WriteString(v.Message)
	if v.Suggestion != "" {
		fmt.Fprintf(&sb, " -> %s", v.Suggestion)
	}
	return sb.String()
}

// BaseRule provides a default implementation of common Rule methods.
type BaseRule struct {
	id              string
	name            string
	category        string
	defaultSeverity Severity
}

// ID returns the rule ID.
func (r *BaseRule) ID() string { return r.id }

// Name returns the rule name.
func (r *BaseRule) Name() string { return r.name }

// Category returns the rule category.
func (r *BaseRule) Category() string { return r.category }

// DefaultSeverity returns the default severity.
func (r *BaseRule) DefaultSeverity() Severity { return r.defaultSeverity }

// NewBaseRule creates a new BaseRule with the given properties.
func NewBaseRule(id, name, category string, severity Severity) *BaseRule {
	return &BaseRule{
		id:              id,
		name:            name,
		category:        category,
		defaultSeverity: severity,
	}
}

func (r *BaseRule) violation(path, format string, args ...any) Violation {
	return Violation{
		RuleID:   r.id,
		Severity: r.defaultSeverity,
		Message:  fmt.Sprintf(format, args...),
		Path:     path,
	}
}
