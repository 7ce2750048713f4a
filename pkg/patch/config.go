package patch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/check"
	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnumDerive selects how fields sharing an enumeration refer to it.
type EnumDerive string

const (
	// EnumDeriveEnum sets derivedFrom on the enumeratedValues of the other
	// fields.
	EnumDeriveEnum EnumDerive = "enum"
	// EnumDeriveField derives the other fields as a whole.
	EnumDeriveField EnumDerive = "field"
	// EnumDeriveNone copies the values into every field.
	EnumDeriveNone EnumDerive = "none"
)

// ParseEnumDerive parses an EnumDerive mode. The empty string selects the
// default.
func ParseEnumDerive(s string) (EnumDerive, error) {
	switch EnumDerive(s) {
	case "":
		return EnumDeriveEnum, nil
	case EnumDeriveEnum, EnumDeriveField, EnumDeriveNone:
		return EnumDerive(s), nil
	}
	return "", fmt.Errorf("%w: enum derive mode %q", ErrInvalidConfig, s)
}

// DeviceLoader loads the SVD files named by peripheral _copy rules.
type DeviceLoader interface {
	LoadDevice(path string) (*svd.Device, error)
}

// FileLoader reads SVD files from disk.
type FileLoader struct{}

// LoadDevice parses the SVD file at path.
func (FileLoader) LoadDevice(path string) (*svd.Device, error) {
	return svd.ParseFile(path)
}

// Config controls a patch run.
type Config struct {
	// Check runs the consistency checker on the patched tree.
	Check bool

	// ShowPatchOnError attaches the YAML text of the failing directive to
	// the returned error.
	ShowPatchOnError bool

	// EnumDerive selects how shared enumerations are referenced.
	// Default: EnumDeriveEnum
	EnumDerive EnumDerive

	// UpdateFields enables field specs at register scope: enumerated
	// values, write constraint ranges, read and write actions. Registers
	// produced by _array always process them.
	// Default: true
	UpdateFields bool

	// Logger receives debug output. Nil disables it.
	Logger *slog.Logger

	// Trace receives structured patch events. Nil disables tracing.
	Trace log.Logger

	// Loader loads SVD files referenced by _copy.
	// Default: FileLoader
	Loader DeviceLoader

	// Reader reads rule documents and the input SVD file.
	// Default: rules.OSReader
	Reader rules.FileReader

	// Checks is the rule set used when Check is enabled.
	// Default: check.NewDefaultRegistry()
	Checks *check.RuleRegistry
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EnumDerive:   EnumDeriveEnum,
		UpdateFields: true,
		Loader:       FileLoader{},
		Reader:       rules.OSReader{},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := ParseEnumDerive(string(c.EnumDerive)); err != nil {
		return err
	}
	return nil
}

func (c *Config) loader() DeviceLoader {
	if c.Loader == nil {
		return FileLoader{}
	}
	return c.Loader
}

func (c *Config) reader() rules.FileReader {
	if c.Reader == nil {
		return rules.OSReader{}
	}
	return c.Reader
}

func (c *Config) enumDerive() EnumDerive {
	if c.EnumDerive == "" {
		return EnumDeriveEnum
	}
	return c.EnumDerive
}

// FileConfig is the on-disk form of Config. Unset entries leave the
// corresponding Config field alone.
type FileConfig struct {
	Check            *bool  `yaml:"check"`
	ShowPatchOnError *bool  `yaml:"show_patch_on_error"`
	EnumDerive       string `yaml:"enum_derive"`
	UpdateFields     *bool  `yaml:"update_fields"`

	// Trace names a trace file to write.
	Trace string `yaml:"trace"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	fc, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fc, nil
}

// ParseConfig decodes a YAML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (*FileConfig, error) {
	var fc FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := ParseEnumDerive(fc.EnumDerive); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Apply copies the set entries of fc into cfg.
func (fc *FileConfig) Apply(cfg *Config) {
	if fc.Check != nil {
		cfg.Check = *fc.Check
	}
	if fc.ShowPatchOnError != nil {
		cfg.ShowPatchOnError = *fc.ShowPatchOnError
	}
	if fc.EnumDerive != "" {
		cfg.EnumDerive = EnumDerive(fc.EnumDerive)
	}
	if fc.UpdateFields != nil {
		cfg.UpdateFields = *fc.UpdateFields
	}
}
