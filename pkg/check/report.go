package check

// Report is the result of a registry run.
type Report struct {
	// Rules lists the IDs of the rules that ran.
	Rules []string `json:"rules"`
	// Violations holds the findings in rule order.
	Violations []Violation `json:"violations"`
}

// HasErrors returns true if any violation has severity Error.
func (r *Report) HasErrors() bool {
	return r.Count(SeverityError) > 0
}

// Count returns the number of violations with the given severity.
func (r *Report) Count(s Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == s {
			n++
		}
	}
	return n
}

// Filter returns violations at or above the given severity level.
func (r *Report) Filter(minSeverity Severity) []Violation {
	var filtered []Violation
	for _, v := range r.Violations {
		if v.Severity <= minSeverity {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// Strict promotes warnings to errors.
func (r *Report) Strict() {
	for i := range r.Violations {
		if r.Violations[i].Severity == SeverityWarning {
			r.Violations[i].Severity = SeverityError
		}
	}
}
