// Package commands implements the svdpatch CLI commands.
//
// Every command has the shape
//
//	RunX(args []string, stdout, stderr io.Writer) int
//
// and returns the process exit code, so tests can drive commands with
// in-memory buffers.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/svdpatch/svdpatch-go/pkg/check"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

const (
	exitSuccess      = 0
	exitCommandError = 1
	exitFailure      = 2
)

// newLogger returns a debug logger writing text records to w, or nil
// when verbose output is off.
func newLogger(verbose bool, w io.Writer) *slog.Logger {
	if !verbose {
		return nil
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// listFlag collects comma-separated values from repeated flags.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

// loadDevice parses an SVD file, reporting failures on stderr.
func loadDevice(path string, stderr io.Writer) (*svd.Device, bool) {
	dev, err := svd.ParseFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	return dev, true
}

// palette colors severity labels.
type palette struct {
	severity map[check.Severity]func(string, ...any) string
	ok       func(string, ...any) string
}

// newPalette colors output only when w is a terminal.
func newPalette(w io.Writer) *palette {
	p := &palette{
		severity: map[check.Severity]func(string, ...any) string{
			check.SeverityError:   fmt.Sprintf,
			check.SeverityWarning: fmt.Sprintf,
			check.SeverityInfo:    fmt.Sprintf,
		},
		ok: fmt.Sprintf,
	}
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return p
	}
	p.severity[check.SeverityError] = sprintf(color.FgRed, color.Bold)
	p.severity[check.SeverityWarning] = sprintf(color.FgYellow)
	p.severity[check.SeverityInfo] = sprintf(color.FgCyan)
	p.ok = sprintf(color.FgGreen)
	return p
}

func sprintf(attrs ...color.Attribute) func(string, ...any) string {
	c := color.New(attrs...)
	c.EnableColor()
	return c.SprintfFunc()
}

func (p *palette) label(s check.Severity) string {
	return p.severity[s]("%s", strings.ToUpper(s.String()))
}
