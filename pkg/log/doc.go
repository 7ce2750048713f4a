// Package log provides the structured patch trace.
//
// A trace records what a patch run did: which directives matched which
// elements, what was created or removed, warnings about accepted but
// suspicious rules, and the error that aborted a run. It is separate from
// operational logging (slog) and meant for tooling.
//
// # Basic Usage
//
//	// Console output via slog
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// Binary trace file
//	cfg.Trace, _ = log.NewFileLogger("stm32f405.ptrace")
//
//	// Both
//	cfg.Trace = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Trace files hold a stream of CBOR encoded events with integer keys and
// use the .ptrace extension. "svdpatch trace" views and summarizes them.
package log
