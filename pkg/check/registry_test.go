package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

type stubRule struct {
	*BaseRule
	found []string
}

func (r *stubRule) Check(*svd.Device) []Violation {
	var out []Violation
	for _, p := range r.found {
		out = append(out, r.violation(p, "found"))
	}
	return out
}

func newStub(id, category string, sev Severity, found ...string) *stubRule {
	return &stubRule{BaseRule: NewBaseRule(id, id, category, sev), found: found}
}

func TestDefaultRegistryOrder(t *testing.T) {
	reg := NewDefaultRegistry()

	var ids []string
	for _, r := range reg.AllRules() {
		ids = append(ids, r.ID())
	}
	assert.Equal(t, []string{
		"DESC001", "DRV001", "DRV002", "FLD001", "FLD002", "ADR001", "DIM001", "ENM001", "NAM001",
	}, ids)
	assert.Equal(t, 9, reg.Count())
	assert.Equal(t, []string{CategoryDerive, CategoryDim, CategoryEnum, CategoryLayout, CategoryNaming}, reg.Categories())
}

func TestRegistryEnableDisable(t *testing.T) {
	reg := NewRuleRegistry()
	reg.Register(newStub("A", "x", SeverityError, "P"))
	reg.Register(newStub("B", "y", SeverityWarning, "Q"))

	reg.Disable("A")
	assert.False(t, reg.IsEnabled("A"))
	report := reg.Run(&svd.Device{})
	assert.Equal(t, []string{"B"}, report.Rules)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "Q", report.Violations[0].Path)
	assert.False(t, report.HasErrors())

	reg.DisableCategory("y")
	reg.EnableCategory("x")
	report = reg.Run(&svd.Device{})
	assert.Equal(t, []string{"A"}, report.Rules)
	assert.True(t, report.HasErrors())
}

func TestRegistrySeverityOverride(t *testing.T) {
	reg := NewRuleRegistry()
	reg.Register(newStub("A", "x", SeverityWarning, "P", "Q"))
	reg.SetSeverity("A", SeverityInfo)

	report := reg.Run(&svd.Device{})
	assert.Equal(t, 2, report.Count(SeverityInfo))
	assert.Empty(t, report.Filter(SeverityWarning))
	assert.Len(t, report.Filter(SeverityInfo), 2)
}

func TestReportStrict(t *testing.T) {
	report := &Report{Violations: []Violation{
		{RuleID: "A", Severity: SeverityWarning},
		{RuleID: "B", Severity: SeverityInfo},
	}}
	assert.False(t, report.HasErrors())

	report.Strict()
	assert.True(t, report.HasErrors())
	assert.Equal(t, SeverityInfo, report.Violations[1].Severity)
}

func TestViolationString(t *testing.T) {
	v := Violation{
		RuleID:     "FLD002",
		Severity:   SeverityError,
		Message:    "bits [32:31] exceed the 32 bit register",
		Path:       "TIM1/CR/EN",
		Suggestion: "fix it",
	}
	assert.Equal(t, "[FLD002] error: TIM1/CR/EN: bits [32:31] exceed the 32 bit register -> fix it", v.String())
}

func TestParseSeverity(t *testing.T) {
	for in, want := range map[string]Severity{
		"error":   SeverityError,
		"Warning": SeverityWarning,
		"warn":    SeverityWarning,
		" info ":  SeverityInfo,
	} {
		got, err := ParseSeverity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSeverity("fatal")
	assert.Error(t, err)

	text, err := SeverityWarning.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "warning", string(text))
}
