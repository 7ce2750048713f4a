package commands

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/sync/errgroup"

	"github.com/svdpatch/svdpatch-go/pkg/check"
	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/patch"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// PatchOptions configures the patch command.
type PatchOptions struct {
	Out              string
	Check            bool
	ShowPatchOnError bool
	Config           string
	Trace            string
	Diff             bool
	Jobs             int
	JSON             bool
	Verbose          bool
	Files            []string

	// set records the flags given on the command line.
	set map[string]bool
}

// PatchOutput is the result of patching one rule document.
type PatchOutput struct {
	Rules    string       `json:"rules"`
	SVD      string       `json:"svd,omitempty"`
	Output   string       `json:"output,omitempty"`
	RunID    string       `json:"run_id,omitempty"`
	Error    *ErrorOutput `json:"error,omitempty"`
	Errors   int          `json:"check_errors,omitempty"`
	Warnings int          `json:"check_warnings,omitempty"`

	diff     string
	findings []string
}

// ErrorOutput describes a failed run.
type ErrorOutput struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Fragment string `json:"fragment,omitempty"`
}

// RunPatch runs the patch command.
func RunPatch(args []string, stdout, stderr io.Writer) int {
	opts, err := parsePatchArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	if len(opts.Files) == 0 {
		fmt.Fprintln(stderr, "Error: no rule files specified")
		printPatchUsage(stderr)
		return exitCommandError
	}
	if opts.Out != "" && len(opts.Files) > 1 {
		fmt.Fprintln(stderr, "Error: --out needs a single rule file")
		return exitCommandError
	}

	cfg, tracePath, err := patchConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	var loggers []log.Logger
	if tracePath != "" {
		fl, err := log.NewFileLogger(tracePath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: open trace: %v\n", err)
			return exitCommandError
		}
		defer func() {
			if n := fl.Dropped(); n > 0 {
				fmt.Fprintf(stderr, "Warning: %d trace events could not be written to %s\n", n, tracePath)
			}
			fl.Close()
		}()
		loggers = append(loggers, fl)
	}
	if cfg.Logger = newLogger(opts.Verbose, stderr); cfg.Logger != nil {
		loggers = append(loggers, log.NewSlogAdapter(cfg.Logger))
	}
	if len(loggers) > 0 {
		cfg.Trace = log.NewMultiLogger(loggers...)
	}

	results := make([]*PatchOutput, len(opts.Files))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(opts.Jobs)
	for i, file := range opts.Files {
		g.Go(func() error {
			out, err := patchFile(ctx, file, cfg, opts)
			results[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	failed := false
	for _, r := range results {
		if r.Error != nil || r.Errors > 0 {
			failed = true
		}
	}

	if opts.JSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(stdout, string(output))
	} else {
		for _, r := range results {
			printPatchResult(stdout, stderr, r)
		}
	}

	if failed {
		return exitFailure
	}
	return exitSuccess
}

// patchConfig merges the config file and the command line flags. Flags
// win over the file.
func patchConfig(opts PatchOptions) (patch.Config, string, error) {
	cfg := patch.DefaultConfig()
	tracePath := ""
	if opts.Config != "" {
		fc, err := patch.LoadConfig(opts.Config)
		if err != nil {
			return cfg, "", err
		}
		fc.Apply(&cfg)
		tracePath = fc.Trace
	}
	if opts.set["check"] {
		cfg.Check = opts.Check
	}
	if opts.set["show-patch-on-error"] {
		cfg.ShowPatchOnError = opts.ShowPatchOnError
	}
	if opts.set["trace"] {
		tracePath = opts.Trace
	}
	return cfg, tracePath, cfg.Validate()
}

// patchFile patches one rule document. Patch failures are reported in
// the output; only write errors are returned.
func patchFile(ctx context.Context, file string, cfg patch.Config, opts PatchOptions) (*PatchOutput, error) {
	out := &PatchOutput{Rules: file}

	res, err := patch.Run(ctx, file, cfg)
	if res != nil {
		out.SVD = res.SVDPath
		out.RunID = res.RunID
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return out, err
		}
		out.Error = errorOutput(err)
		return out, nil
	}

	out.Output = opts.Out
	if out.Output == "" {
		out.Output = res.SVDPath + ".patched"
	}
	if err := svd.WriteFile(out.Output, res.Device); err != nil {
		return out, fmt.Errorf("%s: %w", out.Output, err)
	}

	if opts.Diff {
		d, err := deviceDiff(res.SVDPath, res.Device)
		if err != nil {
			return out, err
		}
		out.diff = d
	}

	if res.Report != nil {
		out.Errors = res.Report.Count(check.SeverityError)
		out.Warnings = len(res.Report.Violations) - out.Errors
		for _, v := range res.Report.Violations {
			out.findings = append(out.findings, v.String())
		}
	}
	return out, nil
}

func errorOutput(err error) *ErrorOutput {
	var pe *patch.Error
	if errors.As(err, &pe) {
		return &ErrorOutput{Kind: pe.Kind.String(), Message: pe.Error(), Fragment: pe.Fragment}
	}
	return &ErrorOutput{Kind: "load", Message: err.Error()}
}

func printPatchResult(stdout, stderr io.Writer, r *PatchOutput) {
	if r.Error != nil {
		fmt.Fprintf(stderr, "%s: %s\n", r.Rules, r.Error.Message)
		if r.Error.Fragment != "" {
			fmt.Fprintf(stderr, "in rule:\n%s", r.Error.Fragment)
		}
		return
	}
	fmt.Fprintf(stdout, "%s: wrote %s\n", r.Rules, r.Output)
	for _, f := range r.findings {
		fmt.Fprintf(stdout, "  %s\n", f)
	}
	if r.diff != "" {
		fmt.Fprint(stdout, r.diff)
	}
}

// diffContext is the number of unchanged lines kept around each change.
const diffContext = 3

// deviceDiff renders a line diff between the input SVD, re-encoded, and
// the patched tree, so both sides share one formatting.
func deviceDiff(path string, patched *svd.Device) (string, error) {
	orig, err := svd.ParseFile(path)
	if err != nil {
		return "", err
	}
	before, err := svd.Marshal(orig)
	if err != nil {
		return "", err
	}
	after, err := svd.Marshal(patched)
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(before), string(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	changed := false
	for i, d := range diffs {
		text := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			changed = true
			writePrefixed(&sb, "-", text)
		case diffmatchpatch.DiffInsert:
			changed = true
			writePrefixed(&sb, "+", text)
		case diffmatchpatch.DiffEqual:
			writeContext(&sb, text, i > 0, i < len(diffs)-1)
		}
	}
	if !changed {
		return "", nil
	}
	return fmt.Sprintf("--- %s\n+++ %s (patched)\n%s", path, path, sb.String()), nil
}

func splitLines(s string) []string {
	return strings.SplitAfter(strings.TrimSuffix(s, "\n"), "\n")
}

func writePrefixed(sb *strings.Builder, prefix string, lines []string) {
	for _, l := range lines {
		sb.WriteString(prefix)
		sb.WriteString(strings.TrimSuffix(l, "\n"))
		sb.WriteString("\n")
	}
}

// writeContext keeps the lines next to the neighbouring changes of an
// unchanged run and elides the rest.
func writeContext(sb *strings.Builder, lines []string, after, before bool) {
	var head, tail []string
	if after {
		head = lines[:min(diffContext, len(lines))]
	}
	if before {
		tail = lines[max(len(lines)-diffContext, len(head)):]
	}
	writePrefixed(sb, " ", head)
	if len(head)+len(tail) < len(lines) {
		sb.WriteString("@@\n")
	}
	writePrefixed(sb, " ", tail)
}

func parsePatchArgs(args []string) (PatchOptions, error) {
	fs := flag.NewFlagSet("patch", flag.ContinueOnError)
	opts := PatchOptions{}

	fs.StringVar(&opts.Out, "out", "", "Output SVD path (single rule file only)")
	fs.StringVar(&opts.Out, "o", "", "Output SVD path (shorthand)")
	fs.BoolVar(&opts.Check, "check", false, "Run consistency checks on the patched tree")
	fs.BoolVar(&opts.ShowPatchOnError, "show-patch-on-error", false, "Print the failing rule")
	fs.StringVar(&opts.Config, "config", "", "YAML configuration file")
	fs.StringVar(&opts.Trace, "trace", "", "Append trace events to this file")
	fs.BoolVar(&opts.Diff, "diff", false, "Print a diff of the input and patched SVD")
	fs.IntVar(&opts.Jobs, "j", runtime.GOMAXPROCS(0), "Number of rule files patched in parallel")
	fs.BoolVar(&opts.JSON, "json", false, "Output results as JSON")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Log every applied rule to stderr")
	fs.BoolVar(&opts.Verbose, "v", false, "Log every applied rule to stderr (shorthand)")

	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.Jobs < 1 {
		return opts, fmt.Errorf("-j must be at least 1")
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	opts.Files = fs.Args()
	return opts, nil
}

func printPatchUsage(w io.Writer) {
	fmt.Fprintln(w, `
Usage: svdpatch patch [options] <rules.yaml...>

Options:
  -o, --out PATH            Output SVD path (default: <svd>.patched)
  --check                   Run consistency checks on the patched tree
  --show-patch-on-error     Print the YAML of the failing rule
  --config FILE             YAML configuration file
  --trace FILE              Append trace events to FILE
  --diff                    Print a diff of the input and patched SVD
  -j N                      Patch N rule files in parallel
  --json                    Output results as JSON
  -v, --verbose             Log every applied rule to stderr

Examples:
  svdpatch patch stm32f405.yaml
  svdpatch patch --check --trace run.ptrace devices/*.yaml`)
}

