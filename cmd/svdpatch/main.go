// svdpatch applies YAML rule documents to CMSIS-SVD device descriptions
// and inspects the result.
package main

import (
	"fmt"
	"os"

	"github.com/svdpatch/svdpatch-go/cmd/svdpatch/commands"
	"github.com/svdpatch/svdpatch-go/pkg/version"
)

const (
	exitSuccess      = 0
	exitCommandError = 1
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitCommandError)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var exitCode int
	switch cmd {
	case "patch":
		exitCode = commands.RunPatch(args, os.Stdout, os.Stderr)
	case "check":
		exitCode = commands.RunCheck(args, os.Stdout, os.Stderr)
	case "makedeps":
		exitCode = commands.RunMakedeps(args, os.Stdout, os.Stderr)
	case "show":
		exitCode = commands.RunShow(args, os.Stdout, os.Stderr)
	case "shell":
		exitCode = commands.RunShell(args, os.Stdin, os.Stdout, os.Stderr)
	case "interrupts":
		exitCode = commands.RunInterrupts(args, os.Stdout, os.Stderr)
	case "mmap":
		exitCode = commands.RunMmap(args, os.Stdout, os.Stderr)
	case "trace":
		exitCode = commands.RunTrace(args, os.Stdout, os.Stderr)
	case "help", "-h", "--help":
		printUsage()
		exitCode = exitSuccess
	case "version", "-v", "--version":
		fmt.Println(version.String())
		exitCode = exitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		exitCode = exitCommandError
	}

	os.Exit(exitCode)
}

func printUsage() {
	fmt.Println(`svdpatch - SVD patch engine

Usage:
  svdpatch <command> [options] [files...]

Commands:
  patch        Apply rule documents to the SVD files they name
  check        Run consistency checks on SVD files
  makedeps     Write a Make dependency file for a rule document
  show         Print a device tree or one element of it
  shell        Explore an SVD file interactively
  interrupts   List the interrupts of an SVD file
  mmap         Print a text memory map of an SVD file
  trace        View or summarize patch trace files

Options:
  -h, --help     Show this help message
  -v, --version  Show version information

Examples:
  svdpatch patch --check stm32f405.yaml
  svdpatch patch -j 4 --trace run.ptrace devices/*.yaml
  svdpatch check --strict stm32f405.svd.patched
  svdpatch show stm32f405.svd GPIOA/MODER
  svdpatch trace stats run.ptrace

For command-specific help, run:
  svdpatch <command> --help`)
}
