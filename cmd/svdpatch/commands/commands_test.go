package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"github.com/svdpatch/svdpatch-go/pkg/patch"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// unpack extracts testdata/timer.txtar into a fresh directory.
func unpack(t *testing.T) string {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", "timer.txtar"))
	require.NoError(t, err)

	dir := t.TempDir()
	for _, f := range ar.Files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0644))
	}
	return dir
}

func run(fn func([]string, *bytes.Buffer, *bytes.Buffer) int, args ...string) (int, string, string) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := fn(args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func patchCmd(args []string, stdout, stderr *bytes.Buffer) int { return RunPatch(args, stdout, stderr) }
func checkCmd(args []string, stdout, stderr *bytes.Buffer) int { return RunCheck(args, stdout, stderr) }
func showCmd(args []string, stdout, stderr *bytes.Buffer) int { return RunShow(args, stdout, stderr) }
func traceCmd(args []string, stdout, stderr *bytes.Buffer) int { return RunTrace(args, stdout, stderr) }

func TestRunPatch_WritesPatchedFile(t *testing.T) {
	dir := unpack(t)

	code, stdout, stderr := run(patchCmd, filepath.Join(dir, "rules.yaml"))
	require.Equal(t, exitSuccess, code, stderr)

	out := filepath.Join(dir, "device.svd.patched")
	assert.Contains(t, stdout, "wrote "+out)

	dev, err := svd.ParseFile(out)
	require.NoError(t, err)
	assert.Nil(t, dev.Peripheral("TIM1").Children.Register("SR"))
	assert.Equal(t, "Timer 2", dev.Peripheral("TIM2").Description)
}

func TestRunPatch_OutFlag(t *testing.T) {
	dir := unpack(t)
	out := filepath.Join(dir, "custom.svd")

	code, _, stderr := run(patchCmd, "--out", out, filepath.Join(dir, "rules.yaml"))
	require.Equal(t, exitSuccess, code, stderr)
	assert.FileExists(t, out)
	assert.NoFileExists(t, filepath.Join(dir, "device.svd.patched"))
}

func TestRunPatch_OutNeedsSingleFile(t *testing.T) {
	dir := unpack(t)
	rulesPath := filepath.Join(dir, "rules.yaml")

	code, _, stderr := run(patchCmd, "-o", "x.svd", rulesPath, rulesPath)
	assert.Equal(t, exitCommandError, code)
	assert.Contains(t, stderr, "--out needs a single rule file")
}

func TestRunPatch_NoFiles(t *testing.T) {
	code, _, stderr := run(patchCmd)
	assert.Equal(t, exitCommandError, code)
	assert.Contains(t, stderr, "no rule files specified")
}

func TestRunPatch_FailureSuggests(t *testing.T) {
	dir := unpack(t)

	code, stdout, stderr := run(patchCmd, "--show-patch-on-error", filepath.Join(dir, "broken.yaml"))
	assert.Equal(t, exitFailure, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, `"TIMX" matched nothing`)
	assert.Contains(t, stderr, "TIM1")
	assert.Contains(t, stderr, "in rule:")
	assert.NoFileExists(t, filepath.Join(dir, "device.svd.patched"))
}

func TestRunPatch_ParallelJSON(t *testing.T) {
	dir := unpack(t)

	code, stdout, stderr := run(patchCmd, "--json", "-j", "2", "--check",
		filepath.Join(dir, "rules.yaml"), filepath.Join(dir, "broken.yaml"))
	assert.Equal(t, exitFailure, code, stderr)

	var results []PatchOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)

	assert.Equal(t, filepath.Join(dir, "rules.yaml"), results[0].Rules)
	assert.Nil(t, results[0].Error)
	assert.Zero(t, results[0].Errors)
	assert.NotEmpty(t, results[0].RunID)

	require.NotNil(t, results[1].Error)
	assert.Equal(t, "match", results[1].Error.Kind)
}

func TestRunPatch_Diff(t *testing.T) {
	dir := unpack(t)

	code, stdout, stderr := run(patchCmd, "--diff", filepath.Join(dir, "rules.yaml"))
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, stdout, "--- "+filepath.Join(dir, "device.svd"))

	var removed, added []string
	for _, line := range strings.Split(stdout, "\n") {
		switch {
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			removed = append(removed, strings.TrimSpace(line[1:]))
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			added = append(added, strings.TrimSpace(line[1:]))
		}
	}
	assert.Contains(t, removed, "<name>SR</name>")
	assert.Contains(t, added, "<description>Timer 2</description>")
}

func TestRunPatch_ConfigFile(t *testing.T) {
	dir := unpack(t)
	trace := filepath.Join(dir, "run.ptrace")
	cfg := filepath.Join(dir, "svdpatch.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("check: true\ntrace: "+trace+"\n"), 0644))

	code, _, stderr := run(patchCmd, "--config", cfg, filepath.Join(dir, "rules.yaml"))
	require.Equal(t, exitSuccess, code, stderr)
	assert.FileExists(t, trace)
}

func TestPatchConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "svdpatch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("check: true\nenum_derive: none\ntrace: a.ptrace\n"), 0644))

	opts, err := parsePatchArgs([]string{"--config", cfgPath, "--check=false", "--trace", "b.ptrace", "r.yaml"})
	require.NoError(t, err)

	cfg, trace, err := patchConfig(opts)
	require.NoError(t, err)
	assert.False(t, cfg.Check)
	assert.Equal(t, patch.EnumDeriveNone, cfg.EnumDerive)
	assert.Equal(t, "b.ptrace", trace)
}

func TestParsePatchArgs_RejectsZeroJobs(t *testing.T) {
	_, err := parsePatchArgs([]string{"-j", "0", "r.yaml"})
	assert.Error(t, err)
}

func TestRunCheck_Clean(t *testing.T) {
	dir := unpack(t)
	file := filepath.Join(dir, "device.svd")

	code, stdout, stderr := run(checkCmd, file)
	assert.Equal(t, exitSuccess, code, stderr)
	assert.Equal(t, file+": OK\n", stdout)
}

func TestRunCheck_Overlap(t *testing.T) {
	dir := unpack(t)
	file := filepath.Join(dir, "overlap.svd")

	code, stdout, _ := run(checkCmd, file)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stdout, "FAILED (1 errors, 0 warnings)")
	assert.Contains(t, stdout, "ERROR [FLD001] ADC/CR:")

	code, _, _ = run(checkCmd, "--disable", "layout", file)
	assert.Equal(t, exitSuccess, code)

	code, _, _ = run(checkCmd, "--disable", "FLD001", file)
	assert.Equal(t, exitSuccess, code)
}

func TestRunCheck_JSON(t *testing.T) {
	dir := unpack(t)
	file := filepath.Join(dir, "overlap.svd")

	code, stdout, _ := run(checkCmd, "--json", file)
	assert.Equal(t, exitFailure, code)

	var results map[string]struct {
		Valid      bool `json:"valid"`
		Violations []struct {
			Rule     string `json:"rule"`
			Severity string `json:"severity"`
		} `json:"violations"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	res := results[file]
	assert.False(t, res.Valid)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "FLD001", res.Violations[0].Rule)
	assert.Equal(t, "error", res.Violations[0].Severity)
}

func TestRunCheck_UnknownRule(t *testing.T) {
	code, _, stderr := run(checkCmd, "--disable", "XYZ999", "device.svd")
	assert.Equal(t, exitCommandError, code)
	assert.Contains(t, stderr, `unknown rule or category "XYZ999"`)
}

func TestRunCheck_MissingFile(t *testing.T) {
	code, stdout, _ := run(checkCmd, "nonexistent.svd")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stdout, "nonexistent.svd: ERROR")
}

func TestRunMakedeps(t *testing.T) {
	dir := unpack(t)
	deps := filepath.Join(dir, "deps.d")

	code, _, stderr := run(func(args []string, stdout, stderr *bytes.Buffer) int {
		return RunMakedeps(args, stdout, stderr)
	}, filepath.Join(dir, "rules.yaml"), deps)
	require.Equal(t, exitSuccess, code, stderr)

	data, err := os.ReadFile(deps)
	require.NoError(t, err)
	assert.Equal(t, deps+": "+filepath.Join(dir, "common.yaml")+"\n", string(data))
}

func TestRunShow(t *testing.T) {
	dir := unpack(t)
	file := filepath.Join(dir, "device.svd")

	code, stdout, stderr := run(showCmd, file)
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, stdout, "device TIMDEV 1.0\n")
	assert.Contains(t, stdout, "TIM1 @ 0x40010000, 2 registers")

	code, stdout, stderr = run(showCmd, file, "TIM1.CR1")
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, stdout, "CR1")
	assert.Contains(t, stdout, "CEN")

	code, _, stderr = run(showCmd, file, "TIM1/CR2")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "CR1")
}

func TestRunInterrupts(t *testing.T) {
	dir := unpack(t)
	file := filepath.Join(dir, "device.svd")

	stdout := &bytes.Buffer{}
	code := RunInterrupts([]string{file}, stdout, &bytes.Buffer{})
	require.Equal(t, exitSuccess, code)
	assert.Equal(t, "25 TIM1_UP: TIM1 update (in TIM1)\n28 TIM2: TIM2 global (in TIM2)\nGaps: 26, 27\n", stdout.String())

	stdout.Reset()
	code = RunInterrupts([]string{"--no-gaps", file}, stdout, &bytes.Buffer{})
	require.Equal(t, exitSuccess, code)
	assert.NotContains(t, stdout.String(), "Gaps")
}

func TestRunMmap(t *testing.T) {
	dir := unpack(t)

	stdout := &bytes.Buffer{}
	code := RunMmap([]string{filepath.Join(dir, "device.svd")}, stdout, &bytes.Buffer{})
	require.Equal(t, exitSuccess, code)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	assert.Contains(t, lines, "0x40010000 A PERIPHERAL TIM1")
	assert.Contains(t, lines, "0x40000000 A PERIPHERAL TIM2")
	assert.Contains(t, lines, "INTERRUPT 025: TIM1_UP (TIM1): TIM1 update")
}

func TestRunTrace(t *testing.T) {
	dir := unpack(t)
	trace := filepath.Join(dir, "run.ptrace")

	code, _, stderr := run(patchCmd, "--trace", trace, filepath.Join(dir, "rules.yaml"))
	require.Equal(t, exitSuccess, code, stderr)
	code, _, _ = run(patchCmd, "--trace", trace, filepath.Join(dir, "broken.yaml"))
	require.Equal(t, exitFailure, code)

	code, stdout, stderr := run(traceCmd, "stats", trace)
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, stdout, "Format: svdpatch-trace v1")
	assert.Contains(t, stdout, "Runs:         2 (1 failed)")
	assert.Contains(t, stdout, "_delete:")
	assert.Contains(t, stdout, "match:")

	code, stdout, stderr = run(traceCmd, "view", "--category", "directive", "--path", "TIM1", trace)
	require.Equal(t, exitSuccess, code, stderr)
	assert.Contains(t, stdout, "Directive: _delete")
	assert.Contains(t, stdout, "Removed: SR")
	assert.NotContains(t, stdout, "RUN")

	code, _, stderr = run(traceCmd, "stats", filepath.Join(dir, "device.svd"))
	assert.Equal(t, exitCommandError, code)
	assert.Contains(t, stderr, "not a trace record")
}

func TestRunTrace_BadArgs(t *testing.T) {
	code, _, _ := run(traceCmd)
	assert.Equal(t, exitCommandError, code)

	code, _, stderr := run(traceCmd, "export", "x.ptrace")
	assert.Equal(t, exitCommandError, code)
	assert.Contains(t, stderr, "Unknown trace command")

	code, _, stderr = run(traceCmd, "view", "--scope", "bank", "x.ptrace")
	assert.Equal(t, exitCommandError, code)
	assert.Contains(t, stderr, "invalid scope")
}

func TestShellExec(t *testing.T) {
	dir := unpack(t)
	dev, err := svd.ParseFile(filepath.Join(dir, "device.svd"))
	require.NoError(t, err)
	doc, err := rules.Load(filepath.Join(dir, "rules.yaml"))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	sh := NewShell(dev, doc, patch.DefaultConfig(), out)

	assert.False(t, sh.Exec("match TIM*"))
	assert.Equal(t, "TIM1 TIM2\n", out.String())

	out.Reset()
	sh.Exec("match C* TIM1")
	assert.Equal(t, "CR1\n", out.String())

	out.Reset()
	sh.Exec("match TIMX")
	assert.Contains(t, out.String(), "TIMX matches nothing (did you mean")

	out.Reset()
	sh.Exec("apply")
	assert.Contains(t, out.String(), "applied")
	assert.Nil(t, dev.Peripheral("TIM1").Children.Register("SR"))

	out.Reset()
	sh.Exec("apply")
	assert.Contains(t, out.String(), "already applied")

	out.Reset()
	sh.Exec("show TIM1/CR1/CEN")
	assert.Contains(t, out.String(), "CEN")

	out.Reset()
	sh.Exec("check")
	assert.Equal(t, "0 errors, 0 warnings\n", out.String())

	out.Reset()
	sh.Exec("frobnicate")
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	assert.True(t, sh.Exec("quit"))
}

func TestShellApplyWithoutRules(t *testing.T) {
	dir := unpack(t)
	dev, err := svd.ParseFile(filepath.Join(dir, "device.svd"))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	NewShell(dev, nil, patch.DefaultConfig(), out).Exec("apply")
	assert.Equal(t, "Error: no rule document loaded\n", out.String())
}
