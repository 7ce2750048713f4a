package patch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/check"
	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// Result is the outcome of Run.
type Result struct {
	// RunID identifies the run in trace files.
	RunID string

	// SVDPath is the input device file named by _svd.
	SVDPath string

	// Device is the patched tree.
	Device *svd.Device

	// Document is the loaded rule document.
	Document *rules.Document

	// Report holds checker findings when Config.Check is set.
	Report *check.Report

	// Duration is the time spent loading and patching.
	Duration time.Duration
}

// Apply patches dev in place with the rules of doc. The first failing
// directive aborts the run; dev is then partially patched.
func Apply(dev *svd.Device, doc *rules.Document, cfg Config) error {
	return newPatcher(context.Background(), dev, doc, cfg, uuid.NewString()).device()
}

// Run loads the rule document at rulePath and the SVD file it names,
// applies the rules and, if cfg.Check is set, runs the checker.
func Run(ctx context.Context, rulePath string, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}

	doc, err := rules.Load(rulePath, rules.WithReader(cfg.reader()), rules.WithLogger(cfg.Logger))
	if err != nil {
		return nil, err
	}
	res.Document = doc

	svdPath, err := doc.SVDPath()
	if err != nil {
		return nil, err
	}
	res.SVDPath = svdPath

	data, err := cfg.reader().ReadFile(svdPath)
	if err != nil {
		return nil, fmt.Errorf("read svd: %w", err)
	}
	dev, err := svd.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", svdPath, err)
	}
	res.Device = dev

	p := newPatcher(ctx, dev, doc, cfg, res.RunID)
	p.emit(log.Event{
		Category: log.CategoryRun,
		Scope:    log.ScopeDevice,
		Run: &log.RunEvent{
			Phase:      log.RunStart,
			SVDFile:    svdPath,
			RuleDigest: p.ruleDigest(),
			SVDDigest:  digest(data),
			Includes:   doc.Includes(),
		},
	})

	err = p.device()
	res.Duration = time.Since(start)
	if err != nil {
		p.traceError(err)
	}
	p.emit(log.Event{
		Category: log.CategoryRun,
		Scope:    log.ScopeDevice,
		Run:      &log.RunEvent{Phase: log.RunEnd, Duration: &res.Duration, Failed: err != nil},
	})
	if err != nil {
		return res, err
	}

	if cfg.Check {
		reg := cfg.Checks
		if reg == nil {
			reg = check.NewDefaultRegistry()
		}
		res.Report = reg.Run(dev)
	}
	return res, nil
}

func digest(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// patcher holds the state of one rule document application.
type patcher struct {
	ctx   context.Context
	dev   *svd.Device
	doc   *rules.Document
	cfg   Config
	runID string
}

func newPatcher(ctx context.Context, dev *svd.Device, doc *rules.Document, cfg Config, runID string) *patcher {
	return &patcher{ctx: ctx, dev: dev, doc: doc, cfg: cfg, runID: runID}
}

// debugLog logs a debug message if a logger is configured.
func (p *patcher) debugLog(msg string, args ...any) {
	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug(msg, args...)
	}
}

func (p *patcher) emit(ev log.Event) {
	if p.cfg.Trace == nil {
		return
	}
	ev.Timestamp = time.Now()
	ev.RunID = p.runID
	ev.RuleFile = p.doc.Path
	p.cfg.Trace.Log(ev)
}

// trace records an applied directive.
func (p *patcher) trace(scope log.Scope, path string, d rules.Directive, spec string, matched, created, removed []string) {
	p.emit(log.Event{
		Category: log.CategoryDirective,
		Scope:    scope,
		Path:     path,
		Directive: &log.DirectiveEvent{
			Directive: d.String(),
			Spec:      spec,
			Matched:   matched,
			Created:   created,
			Removed:   removed,
		},
	})
}

// warn records a rule that was applied but looks suspicious.
func (p *patcher) warn(scope log.Scope, path string, d rules.Directive, spec, msg string) {
	p.debugLog("patch warning", "path", path, "directive", d.String(), "spec", spec, "warning", msg)
	p.emit(log.Event{
		Category: log.CategoryWarning,
		Scope:    scope,
		Path:     path,
		Warning:  &log.WarningEvent{Directive: d.String(), Spec: spec, Message: msg},
	})
}

func (p *patcher) traceError(err error) {
	pe := toError(err)
	p.emit(log.Event{
		Category: log.CategoryError,
		Scope:    log.ScopeDevice,
		Error: &log.ErrorEventData{
			Kind:     pe.Kind.String(),
			Message:  pe.Error(),
			Spec:     pe.Spec,
			Fragment: pe.Fragment,
		},
	})
}

// ruleDigest hashes the root rule document and every include, in load
// order.
func (p *patcher) ruleDigest() []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil
	}
	for _, path := range append([]string{p.doc.Path}, p.doc.Includes()...) {
		data, err := p.cfg.reader().ReadFile(path)
		if err != nil {
			p.debugLog("digest: skipping unreadable rule file", "path", path, "error", err)
			continue
		}
		h.Write(data)
	}
	return h.Sum(nil)
}

// step binds a directive to its handler.
type step struct {
	dir rules.Directive
	run func(*yaml.Node) error
}

// run executes the steps whose directive is present in b, in order.
func (p *patcher) run(b *rules.Block, steps []step) error {
	for _, s := range steps {
		n := b.Get(s.dir)
		if n == nil {
			continue
		}
		if err := s.run(n); err != nil {
			return p.annotate(err, s.dir, n)
		}
	}
	return nil
}

// annotate attaches the rule location, and the failing fragment when
// requested, to the innermost directive that failed.
func (p *patcher) annotate(err error, d rules.Directive, n *yaml.Node) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	pe := toError(err)
	if pe.File == "" {
		pe.File, pe.Line = p.doc.Origin(n)
	}
	if p.cfg.ShowPatchOnError && pe.Fragment == "" {
		pe.Fragment = rules.Encode(rules.MapNode(rules.StringNode(d.String()), n))
	}
	return pe
}

// annotateEntry is annotate for a child specifier of a block.
func (p *patcher) annotateEntry(err error, e rules.Entry) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	pe := toError(err)
	if pe.File == "" {
		pe.File, pe.Line = p.doc.Origin(e.Key)
	}
	if p.cfg.ShowPatchOnError && pe.Fragment == "" {
		pe.Fragment = rules.Encode(rules.MapNode(e.Key, e.Value))
	}
	return pe
}
