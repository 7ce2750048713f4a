package log

import (
	"context"
	"log/slog"
	"strings"
)

// SlogAdapter writes trace events to an slog.Logger. It backs the CLI
// --verbose output.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event at Debug level; warnings and errors use the
// matching slog levels.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("run_id", event.RunID),
		slog.String("category", event.Category.String()),
		slog.String("scope", event.Scope.String()),
	}
	if event.Path != "" {
		attrs = append(attrs, slog.String("path", event.Path))
	}

	level := slog.LevelDebug
	switch {
	case event.Run != nil:
		attrs = append(attrs, slog.String("phase", event.Run.Phase.String()))
		if event.RuleFile != "" {
			attrs = append(attrs, slog.String("rules", event.RuleFile))
		}
		if event.Run.SVDFile != "" {
			attrs = append(attrs, slog.String("svd", event.Run.SVDFile))
		}
		if event.Run.Duration != nil {
			attrs = append(attrs, slog.Duration("duration", *event.Run.Duration))
		}
		if event.Run.Failed {
			attrs = append(attrs, slog.Bool("failed", true))
		}
	case event.Directive != nil:
		attrs = append(attrs, slog.String("directive", event.Directive.Directive))
		if event.Directive.Spec != "" {
			attrs = append(attrs, slog.String("spec", event.Directive.Spec))
		}
		if len(event.Directive.Matched) > 0 {
			attrs = append(attrs, slog.String("matched", strings.Join(event.Directive.Matched, ",")))
		}
		if len(event.Directive.Created) > 0 {
			attrs = append(attrs, slog.String("created", strings.Join(event.Directive.Created, ",")))
		}
		if len(event.Directive.Removed) > 0 {
			attrs = append(attrs, slog.String("removed", strings.Join(event.Directive.Removed, ",")))
		}
	case event.Warning != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("directive", event.Warning.Directive),
			slog.String("warning", event.Warning.Message),
		)
	case event.Error != nil:
		level = slog.LevelError
		attrs = append(attrs,
			slog.String("kind", event.Error.Kind),
			slog.String("error_msg", event.Error.Message),
		)
		if event.Error.Spec != "" {
			attrs = append(attrs, slog.String("spec", event.Error.Spec))
		}
	}

	a.logger.LogAttrs(context.Background(), level, "patch", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
