package commands

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/svdpatch/svdpatch-go/pkg/check"
	"github.com/svdpatch/svdpatch-go/pkg/inspect"
	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/patch"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// Shell is an interactive session over one device tree.
type Shell struct {
	dev       *svd.Device
	doc       *rules.Document
	cfg       patch.Config
	inspector *inspect.Inspector
	formatter *inspect.Formatter
	out       io.Writer
	applied   bool
}

// NewShell creates a session over dev. doc may be nil; apply is then
// unavailable.
func NewShell(dev *svd.Device, doc *rules.Document, cfg patch.Config, out io.Writer) *Shell {
	return &Shell{
		dev:       dev,
		doc:       doc,
		cfg:       cfg,
		inspector: inspect.NewInspector(dev),
		formatter: inspect.NewFormatter(),
		out:       out,
	}
}

// RunShell runs the interactive shell command.
func RunShell(args []string, stdin io.ReadCloser, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("verbose", false, "Log applied rules to stderr")
	if err := fs.Parse(args); err != nil {
		return exitCommandError
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(stderr, "Usage: svdpatch shell [--verbose] <file.svd> [rules.yaml]")
		return exitCommandError
	}

	dev, ok := loadDevice(fs.Arg(0), stderr)
	if !ok {
		return exitFailure
	}

	cfg := patch.DefaultConfig()
	cfg.Logger = newLogger(*verbose, stderr)

	var doc *rules.Document
	if fs.NArg() == 2 {
		var err error
		doc, err = rules.Load(fs.Arg(1), rules.WithLogger(cfg.Logger))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailure
		}
	}

	sh := NewShell(dev, doc, cfg, stdout)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "svd> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    sh.completer(),
		Stdin:           stdin,
		Stdout:          stdout,
		Stderr:          stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: failed to create readline: %v\n", err)
		return exitCommandError
	}
	defer rl.Close()

	sh.out = rl.Stdout()
	sh.printHelp()
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return exitSuccess
		}
		if sh.Exec(line) {
			return exitSuccess
		}
	}
}

func (s *Shell) completer() readline.AutoCompleter {
	peripherals := func(string) []string {
		names := make([]string, len(s.dev.Peripherals))
		for i, p := range s.dev.Peripherals {
			names[i] = p.Name
		}
		return names
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("peripherals"),
		readline.PcItem("show", readline.PcItemDynamic(peripherals)),
		readline.PcItem("match"),
		readline.PcItem("apply"),
		readline.PcItem("check"),
		readline.PcItem("interrupts"),
		readline.PcItem("quit"),
	)
}

// Exec runs one command line. It returns true when the session should
// end.
func (s *Shell) Exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "peripherals", "p":
		fmt.Fprint(s.out, s.formatter.FormatDevice(s.dev, s.inspector.Peripherals()))
	case "show", "s":
		s.cmdShow(args)
	case "match", "m":
		s.cmdMatch(args)
	case "apply", "a":
		s.cmdApply()
	case "check", "c":
		s.cmdCheck()
	case "interrupts", "i":
		fmt.Fprint(s.out, s.formatter.FormatInterrupts(s.inspector.Interrupts()))
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `Commands:
  peripherals, p           List peripherals
  show, s PATH             Show a peripheral, register, field or enumeration
  match, m SPEC [PERIPH]   Match SPEC against peripherals, or the registers of PERIPH
  apply, a                 Apply the loaded rule document
  check, c                 Run consistency checks
  interrupts, i            List interrupts
  help, ?                  Show this help
  quit, q                  Leave the shell`)
}

func (s *Shell) cmdShow(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: show PATH")
		return
	}
	out, err := showPath(s.inspector, s.formatter, args[0])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(s.out, out)
}

func (s *Shell) cmdMatch(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(s.out, "Usage: match SPEC [PERIPHERAL]")
		return
	}
	spec := match.Parse(args[0])

	var candidates []string
	if len(args) == 1 {
		for _, p := range s.dev.Peripherals {
			candidates = append(candidates, p.Name)
		}
	} else {
		per := s.dev.Peripheral(args[1])
		if per == nil {
			fmt.Fprintf(s.out, "Error: peripheral %s not found\n", args[1])
			return
		}
		for _, c := range s.inspector.RegisterBlock(per) {
			candidates = append(candidates, c.Name())
		}
	}

	matched := match.Names(candidates, spec, func(n string) string { return n })
	if len(matched) == 0 {
		fmt.Fprintf(s.out, "%s matches nothing", spec)
		if sugg := match.Suggest(spec, candidates); len(sugg) > 0 {
			fmt.Fprintf(s.out, " (did you mean %s?)", strings.Join(sugg, ", "))
		}
		fmt.Fprintln(s.out)
		return
	}
	fmt.Fprintln(s.out, strings.Join(matched, " "))
}

func (s *Shell) cmdApply() {
	if s.doc == nil {
		fmt.Fprintln(s.out, "Error: no rule document loaded")
		return
	}
	if s.applied {
		fmt.Fprintln(s.out, "Error: rules already applied")
		return
	}
	if err := patch.Apply(s.dev, s.doc, s.cfg); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	s.applied = true
	fmt.Fprintf(s.out, "applied %s\n", s.doc.Path)
}

func (s *Shell) cmdCheck() {
	report := check.NewDefaultRegistry().Run(s.dev)
	for _, v := range report.Violations {
		fmt.Fprintln(s.out, v.String())
	}
	fmt.Fprintf(s.out, "%d errors, %d warnings\n",
		report.Count(check.SeverityError), report.Count(check.SeverityWarning))
}
