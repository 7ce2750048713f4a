package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"slices"

	"github.com/svdpatch/svdpatch-go/pkg/check"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// CheckOptions configures the check command.
type CheckOptions struct {
	Strict  bool
	JSON    bool
	Verbose bool
	Disable listFlag
	Files   []string
}

// CheckOutput is the result of checking one file.
type CheckOutput struct {
	Valid      bool              `json:"valid"`
	Error      string            `json:"error,omitempty"`
	Rules      []string          `json:"rules,omitempty"`
	Violations []check.Violation `json:"violations,omitempty"`
}

// RunCheck runs the check command.
func RunCheck(args []string, stdout, stderr io.Writer) int {
	opts, err := parseCheckArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	if len(opts.Files) == 0 {
		fmt.Fprintln(stderr, "Error: no files specified")
		printCheckUsage(stderr)
		return exitCommandError
	}

	registry, err := checkRegistry(opts.Disable)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	pal := newPalette(stdout)
	hasErrors := false
	results := make(map[string]*CheckOutput)

	for _, file := range opts.Files {
		result := checkFile(file, registry, opts.Strict)
		results[file] = result
		if !result.Valid {
			hasErrors = true
		}
		if !opts.JSON {
			printCheckResult(stdout, pal, file, result, opts.Verbose)
		}
	}

	if opts.JSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(stdout, string(output))
	}

	if hasErrors {
		return exitFailure
	}
	return exitSuccess
}

// checkRegistry builds the default rule set minus the disabled rule IDs
// or categories.
func checkRegistry(disable []string) (*check.RuleRegistry, error) {
	registry := check.NewDefaultRegistry()
	categories := registry.Categories()
	for _, id := range disable {
		switch {
		case registry.GetRule(id) != nil:
			registry.Disable(id)
		case slices.Contains(categories, id):
			registry.DisableCategory(id)
		default:
			return nil, fmt.Errorf("unknown rule or category %q", id)
		}
	}
	return registry, nil
}

func checkFile(path string, registry *check.RuleRegistry, strict bool) *CheckOutput {
	dev, err := svd.ParseFile(path)
	if err != nil {
		return &CheckOutput{Error: err.Error()}
	}

	report := registry.Run(dev)
	if strict {
		report.Strict()
	}
	return &CheckOutput{
		Valid:      !report.HasErrors(),
		Rules:      report.Rules,
		Violations: report.Violations,
	}
}

func printCheckResult(w io.Writer, pal *palette, file string, result *CheckOutput, verbose bool) {
	if result.Error != "" {
		fmt.Fprintf(w, "%s: %s\n", file, pal.label(check.SeverityError))
		fmt.Fprintf(w, "  %s\n", result.Error)
		return
	}

	report := &check.Report{Violations: result.Violations}
	errs, warns := report.Count(check.SeverityError), report.Count(check.SeverityWarning)
	switch {
	case errs > 0:
		fmt.Fprintf(w, "%s: FAILED (%d errors, %d warnings)\n", file, errs, warns)
	case warns > 0:
		fmt.Fprintf(w, "%s: %s (with %d warnings)\n", file, pal.ok("OK"), warns)
	default:
		fmt.Fprintf(w, "%s: %s\n", file, pal.ok("OK"))
	}

	shown := check.SeverityWarning
	if verbose {
		shown = check.SeverityInfo
	}
	for _, v := range report.Filter(shown) {
		fmt.Fprintf(w, "  %s [%s] %s: %s", pal.label(v.Severity), v.RuleID, v.Path, v.Message)
		if v.Suggestion != "" {
			fmt.Fprintf(w, " (%s)", v.Suggestion)
		}
		fmt.Fprintln(w)
	}
}

func parseCheckArgs(args []string) (CheckOptions, error) {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	opts := CheckOptions{}

	fs.BoolVar(&opts.Strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&opts.JSON, "json", false, "Output results as JSON")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Show informational findings")
	fs.BoolVar(&opts.Verbose, "v", false, "Show informational findings (shorthand)")
	fs.Var(&opts.Disable, "disable", "Comma-separated rule IDs or categories to skip")

	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.Files = fs.Args()
	return opts, nil
}

func printCheckUsage(w io.Writer) {
	fmt.Fprintln(w, `
Usage: svdpatch check [options] <files...>

Options:
  --strict          Treat warnings as errors
  --json            Output results as JSON
  --disable IDS     Skip rules or categories (e.g. ADR001,naming)
  -v, --verbose     Show informational findings

Examples:
  svdpatch check stm32f405.svd.patched
  svdpatch check --strict --disable DESC001 *.svd`)
}
