package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/svdpatch/svdpatch-go/pkg/inspect"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// ShowOptions configures the show command.
type ShowOptions struct {
	NoFields bool
	NoEnums  bool
	JSON     bool
	File     string
	Path     string
}

// RunShow prints the peripherals of a device, or the element addressed by
// a path such as GPIOA/MODER/MODER0.
func RunShow(args []string, stdout, stderr io.Writer) int {
	opts, err := parseShowArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCommandError
	}
	if opts.File == "" {
		fmt.Fprintln(stderr, "Error: no file specified")
		printShowUsage(stderr)
		return exitCommandError
	}

	dev, ok := loadDevice(opts.File, stderr)
	if !ok {
		return exitFailure
	}

	insp := inspect.NewInspector(dev)
	f := inspect.NewFormatter()
	f.ShowFields = !opts.NoFields
	f.ShowEnums = !opts.NoEnums

	if opts.Path == "" {
		if opts.JSON {
			output, _ := json.MarshalIndent(insp.Peripherals(), "", "  ")
			fmt.Fprintln(stdout, string(output))
			return exitSuccess
		}
		fmt.Fprint(stdout, f.FormatDevice(dev, insp.Peripherals()))
		return exitSuccess
	}

	out, err := showPath(insp, f, opts.Path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	fmt.Fprint(stdout, out)
	return exitSuccess
}

func showPath(insp *inspect.Inspector, f *inspect.Formatter, raw string) (string, error) {
	p, err := inspect.ParsePath(raw)
	if err != nil {
		return "", err
	}
	n, err := insp.Resolve(p)
	if err != nil {
		return "", err
	}
	var children svd.Children
	if n.Kind == inspect.KindPeripheral {
		children = insp.RegisterBlock(n.Peripheral)
	}
	return f.FormatNode(n, children), nil
}

func parseShowArgs(args []string) (ShowOptions, error) {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	opts := ShowOptions{}

	fs.BoolVar(&opts.NoFields, "no-fields", false, "Do not list register fields")
	fs.BoolVar(&opts.NoEnums, "no-enums", false, "Do not list enumerated values")
	fs.BoolVar(&opts.JSON, "json", false, "Output the peripheral list as JSON")

	fs.Usage = func() {}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 2 {
		return opts, fmt.Errorf("too many arguments")
	}

	opts.File = fs.Arg(0)
	opts.Path = fs.Arg(1)
	return opts, nil
}

func printShowUsage(w io.Writer) {
	fmt.Fprintln(w, `
Usage: svdpatch show [options] <file.svd> [PATH]

PATH addresses a peripheral, cluster, register, field or enumeration,
separated by "/" or ".", e.g. GPIOA/MODER/MODER0.

Options:
  --no-fields    Do not list register fields
  --no-enums     Do not list enumerated values
  --json         Output the peripheral list as JSON`)
}

// RunInterrupts lists the interrupts of a device ordered by number,
// followed by the unused numbers below the highest one.
func RunInterrupts(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("interrupts", flag.ContinueOnError)
	fs.SetOutput(stderr)
	noGaps := fs.Bool("no-gaps", false, "Do not list missing interrupt numbers")
	if err := fs.Parse(args); err != nil {
		return exitCommandError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: svdpatch interrupts [--no-gaps] <file.svd>")
		return exitCommandError
	}

	dev, ok := loadDevice(fs.Arg(0), stderr)
	if !ok {
		return exitFailure
	}

	f := inspect.NewFormatter()
	irqs := inspect.NewInspector(dev).Interrupts()
	fmt.Fprint(stdout, f.FormatInterrupts(irqs))
	if !*noGaps {
		fmt.Fprint(stdout, f.FormatGaps(inspect.Gaps(irqs)))
	}
	return exitSuccess
}

// RunMmap prints the text memory map of a device.
func RunMmap(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mmap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return exitCommandError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: svdpatch mmap <file.svd>")
		return exitCommandError
	}

	dev, ok := loadDevice(fs.Arg(0), stderr)
	if !ok {
		return exitFailure
	}

	for _, line := range inspect.NewInspector(dev).MemoryMap() {
		fmt.Fprintln(stdout, line)
	}
	return exitSuccess
}
