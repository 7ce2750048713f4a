package commands

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/svdpatch/svdpatch-go/pkg/log"
)

// RunTrace dispatches the trace subcommands.
func RunTrace(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printTraceUsage(stderr)
		return exitCommandError
	}
	switch args[0] {
	case "view":
		return runTraceView(args[1:], stdout, stderr)
	case "stats":
		return runTraceStats(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown trace command: %s\n", args[0])
		printTraceUsage(stderr)
		return exitCommandError
	}
}

func printTraceUsage(w io.Writer) {
	fmt.Fprintln(w, `
Usage: svdpatch trace <view|stats> [flags] <file.ptrace>

  view    Print trace events in human-readable form
  stats   Summarize the runs of a trace file

View flags:
  --run ID           Only events of one run
  --category CAT     run, directive, warning or error
  --scope SCOPE      device, peripheral, cluster, register or field
  --directive KEY    Only events of one rule key, e.g. _merge
  --path PREFIX      Only events below a tree path, e.g. GPIOA`)
}

func runTraceView(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	fs.SetOutput(stderr)
	runID := fs.String("run", "", "Filter by run ID")
	category := fs.String("category", "", "Filter by category (run, directive, warning, error)")
	scope := fs.String("scope", "", "Filter by scope (device, peripheral, cluster, register, field)")
	directive := fs.String("directive", "", "Filter by rule key")
	path := fs.String("path", "", "Filter by tree path prefix")
	if err := fs.Parse(args); err != nil {
		return exitCommandError
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: trace file path required")
		return exitCommandError
	}

	filter := log.Filter{RunID: *runID, Directive: *directive, PathPrefix: *path}
	if *category != "" {
		c, err := ParseCategoryFlag(*category)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitCommandError
		}
		filter.Category = &c
	}
	if *scope != "" {
		s, err := ParseScopeFlag(*scope)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitCommandError
		}
		filter.Scope = &s
	}

	if err := RunView(fs.Arg(0), filter, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}
	return exitSuccess
}

func runTraceStats(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return exitCommandError
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "Error: trace file path required")
		return exitCommandError
	}

	if err := RunStats(fs.Arg(0), stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}
	return exitSuccess
}

// ParseCategoryFlag parses a category name.
func ParseCategoryFlag(s string) (log.Category, error) {
	for _, c := range []log.Category{log.CategoryRun, log.CategoryDirective, log.CategoryWarning, log.CategoryError} {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid category: %s (must be run, directive, warning or error)", s)
}

// ParseScopeFlag parses a scope name.
func ParseScopeFlag(s string) (log.Scope, error) {
	for _, sc := range []log.Scope{log.ScopeDevice, log.ScopePeripheral, log.ScopeCluster, log.ScopeRegister, log.ScopeField} {
		if strings.EqualFold(s, sc.String()) {
			return sc, nil
		}
	}
	return 0, fmt.Errorf("invalid scope: %s (must be device, peripheral, cluster, register or field)", s)
}

// RunView prints the events of a trace file that match filter.
func RunView(path string, filter log.Filter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [run:id] CATEGORY SCOPE path
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	fmt.Fprintf(w, "%s [run:%s] %-9s %s", ts, shortenID(event.RunID), event.Category, event.Scope)
	if event.Path != "" {
		fmt.Fprintf(w, " %s", event.Path)
	}
	fmt.Fprintln(w)

	switch {
	case event.Run != nil:
		r := event.Run
		fmt.Fprintf(w, "  Phase: %s\n", r.Phase)
		if r.SVDFile != "" {
			fmt.Fprintf(w, "  SVD: %s\n", r.SVDFile)
		}
		if event.RuleFile != "" && r.Phase == log.RunStart {
			fmt.Fprintf(w, "  Rules: %s\n", event.RuleFile)
		}
		if len(r.SVDDigest) > 0 {
			fmt.Fprintf(w, "  SVD digest: %s\n", hex.EncodeToString(r.SVDDigest))
		}
		if len(r.RuleDigest) > 0 {
			fmt.Fprintf(w, "  Rule digest: %s\n", hex.EncodeToString(r.RuleDigest))
		}
		for _, inc := range r.Includes {
			fmt.Fprintf(w, "  Include: %s\n", inc)
		}
		if r.Duration != nil {
			fmt.Fprintf(w, "  Duration: %s\n", r.Duration.Round(time.Microsecond))
		}
		if r.Failed {
			fmt.Fprintln(w, "  Failed: true")
		}
	case event.Directive != nil:
		d := event.Directive
		fmt.Fprintf(w, "  Directive: %s", d.Directive)
		if d.Spec != "" {
			fmt.Fprintf(w, " %s", d.Spec)
		}
		fmt.Fprintln(w)
		writeNames(w, "Matched", d.Matched)
		writeNames(w, "Created", d.Created)
		writeNames(w, "Removed", d.Removed)
	case event.Warning != nil:
		fmt.Fprintf(w, "  Warning: %s", event.Warning.Message)
		if event.Warning.Directive != "" {
			fmt.Fprintf(w, " (%s %s)", event.Warning.Directive, event.Warning.Spec)
		}
		fmt.Fprintln(w)
	case event.Error != nil:
		fmt.Fprintf(w, "  Error [%s]: %s\n", event.Error.Kind, event.Error.Message)
		if event.Error.Fragment != "" {
			for _, line := range strings.Split(strings.TrimRight(event.Error.Fragment, "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	fmt.Fprintln(w)
}

func writeNames(w io.Writer, label string, names []string) {
	if len(names) > 0 {
		fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(names, ", "))
	}
}

// shortenID returns the first 8 characters of a run ID.
func shortenID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RunStats summarizes a trace file.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats, err := log.Collect(reader)
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}
	printStats(w, stats, reader.Header())
	return nil
}

func printStats(w io.Writer, stats *log.Stats, h *log.Header) {
	fmt.Fprintln(w, "=== Patch Trace Statistics ===")
	fmt.Fprintln(w)

	if h != nil {
		fmt.Fprintf(w, "Format: %s v%d, created %s\n", h.Format, h.Version, h.Created.Format(time.RFC3339))
	}

	if stats.Events > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.FirstEvent.Format(time.RFC3339),
			stats.LastEvent.Format(time.RFC3339))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.Events)
	fmt.Fprintf(w, "Runs:         %d (%d failed)\n", stats.Runs, stats.FailedRuns)
	if stats.Runs > 0 {
		fmt.Fprintf(w, "Patch Time:   %s total, %s per run\n",
			stats.TotalTime.Round(time.Microsecond),
			(stats.TotalTime / time.Duration(stats.Runs)).Round(time.Microsecond))
	}
	fmt.Fprintln(w)

	if len(stats.Directives) > 0 {
		fmt.Fprintln(w, "Directives:")
		for _, name := range stats.DirectiveNames() {
			fmt.Fprintf(w, "  %-16s %d\n", name+":", stats.Directives[name])
		}
		fmt.Fprintln(w)
	}

	if stats.Warnings > 0 {
		fmt.Fprintf(w, "Warnings: %d\n", stats.Warnings)
	}
	if len(stats.ErrorsByKind) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, kind := range []string{"match", "structural", "reference", "unknown"} {
			if n := stats.ErrorsByKind[kind]; n > 0 {
				fmt.Fprintf(w, "  %-16s %d\n", kind+":", n)
			}
		}
	}
}
