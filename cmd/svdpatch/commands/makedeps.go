package commands

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/svdpatch/svdpatch-go/pkg/rules"
)

// RunMakedeps writes a Make rule listing every file merged into a rule
// document. With no output path the rule goes to stdout.
func RunMakedeps(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("makedeps", flag.ContinueOnError)
	fs.SetOutput(stderr)
	target := fs.String("target", "", "Make target (default: the output path)")
	if err := fs.Parse(args); err != nil {
		return exitCommandError
	}

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(stderr, "Usage: svdpatch makedeps [--target T] <rules.yaml> [deps.d]")
		return exitCommandError
	}

	doc, err := rules.Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}

	out := fs.Arg(1)
	name := *target
	if name == "" {
		name = out
	}
	if name == "" {
		name = fs.Arg(0)
	}

	var buf bytes.Buffer
	if err := rules.Makedeps(&buf, doc, name); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}

	if out == "" {
		stdout.Write(buf.Bytes())
		return exitSuccess
	}
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}
	return exitSuccess
}
