package log

import (
	"time"
)

// Event represents one step of a patch run.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// RunID identifies the patch run (UUID).
	RunID string `cbor:"2,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// Scope is the tree level the event applies to.
	Scope Scope `cbor:"4,keyasint"`

	// RuleFile is the root rule document of the run.
	RuleFile string `cbor:"5,keyasint,omitempty"`

	// Path locates the element in the device tree, e.g. "GPIOA/MODER".
	Path string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Run       *RunEvent       `cbor:"10,keyasint,omitempty"`
	Directive *DirectiveEvent `cbor:"11,keyasint,omitempty"`
	Warning   *WarningEvent   `cbor:"12,keyasint,omitempty"`
	Error     *ErrorEventData `cbor:"13,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryRun marks the start or end of a run.
	CategoryRun Category = 0
	// CategoryDirective records one applied directive.
	CategoryDirective Category = 1
	// CategoryWarning records a suspicious but accepted rule.
	CategoryWarning Category = 2
	// CategoryError records the error that aborted a run.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRun:
		return "RUN"
	case CategoryDirective:
		return "DIRECTIVE"
	case CategoryWarning:
		return "WARNING"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Scope is the device tree level of an event.
type Scope uint8

const (
	ScopeDevice     Scope = 0
	ScopePeripheral Scope = 1
	ScopeCluster    Scope = 2
	ScopeRegister   Scope = 3
	ScopeField      Scope = 4
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopeDevice:
		return "DEVICE"
	case ScopePeripheral:
		return "PERIPHERAL"
	case ScopeCluster:
		return "CLUSTER"
	case ScopeRegister:
		return "REGISTER"
	case ScopeField:
		return "FIELD"
	default:
		return "UNKNOWN"
	}
}

// RunPhase distinguishes run start and end events.
type RunPhase uint8

const (
	RunStart RunPhase = 0
	RunEnd   RunPhase = 1
)

// String returns the phase name.
func (p RunPhase) String() string {
	switch p {
	case RunStart:
		return "START"
	case RunEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// RunEvent brackets a patch run.
type RunEvent struct {
	Phase RunPhase `cbor:"1,keyasint"`

	// SVDFile is the device file being patched.
	SVDFile string `cbor:"2,keyasint,omitempty"`

	// RuleDigest and SVDDigest are BLAKE2b-256 sums of the inputs.
	RuleDigest []byte `cbor:"3,keyasint,omitempty"`
	SVDDigest  []byte `cbor:"4,keyasint,omitempty"`

	// Includes lists every rule file merged into the root document.
	Includes []string `cbor:"5,keyasint,omitempty"`

	// Duration of the run, set on RunEnd. Stored as nanoseconds.
	Duration *time.Duration `cbor:"6,keyasint,omitempty"`

	// Failed is set on RunEnd when the run aborted.
	Failed bool `cbor:"7,keyasint,omitempty"`
}

// DirectiveEvent records one directive applied to one scope.
type DirectiveEvent struct {
	// Directive is the rule key, e.g. "_merge".
	Directive string `cbor:"1,keyasint"`

	// Spec is the name specifier the directive was applied with.
	Spec string `cbor:"2,keyasint,omitempty"`

	// Matched names the elements selected by Spec.
	Matched []string `cbor:"3,keyasint,omitempty"`

	// Created and Removed name elements added to or deleted from the tree.
	Created []string `cbor:"4,keyasint,omitempty"`
	Removed []string `cbor:"5,keyasint,omitempty"`
}

// WarningEvent records a rule that was applied but deserves attention.
type WarningEvent struct {
	Directive string `cbor:"1,keyasint,omitempty"`
	Spec      string `cbor:"2,keyasint,omitempty"`
	Message   string `cbor:"3,keyasint"`
}

// ErrorEventData captures the error that aborted a run.
type ErrorEventData struct {
	// Kind is the error class (match, structural, reference).
	Kind string `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Spec is the failing specifier, if any.
	Spec string `cbor:"3,keyasint,omitempty"`

	// Fragment is the YAML text of the failing rule, if requested.
	Fragment string `cbor:"4,keyasint,omitempty"`
}
