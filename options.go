package structsynth

import (
	"bytes"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/structsynth/document"
	"github.com/wippyai/structsynth/errors"
	"github.com/wippyai/structsynth/synth"
	"github.com/wippyai/structsynth/walker"
)

// NumberPolicy selects the Go type of document numbers.
type NumberPolicy = walker.NumberPolicy

const (
	NumberAuto    = walker.NumberAuto
	NumberInt64   = walker.NumberInt64
	NumberFloat64 = walker.NumberFloat64
)

// Environment variables read by LoadOptions.
const (
	EnvMaxDepth = "STRUCTSYNTH_MAX_DEPTH"
	EnvArrays   = "STRUCTSYNTH_ARRAYS"
	EnvNumbers  = "STRUCTSYNTH_NUMBERS"
)

// Options configures a Synthesizer.
type Options struct {
	// Logger overrides the package logger.
	Logger *zap.Logger `yaml:"-"`
	// Registry receives synthesized types. Nil selects synth.Default(),
	// so types are shared process-wide.
	Registry *synth.Registry `yaml:"-"`
	// Numbers selects how numbers map to Go types.
	Numbers NumberPolicy `yaml:"numbers"`
	// MaxDepth limits object and array nesting; the root object is depth 1.
	MaxDepth int `yaml:"max_depth"`
	// Arrays enables list synthesis for document arrays.
	Arrays bool `yaml:"arrays"`
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Numbers:  NumberAuto,
		MaxDepth: walker.DefaultMaxDepth,
	}
}

// LoadOptions reads YAML options from path on top of DefaultOptions, then
// applies environment overrides. A missing file yields the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Options{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read options file "+path)
	}
	if err == nil {
		if opts, err = ParseOptions(data); err != nil {
			return Options{}, err
		}
	}

	if err := opts.applyEnvOverrides(); err != nil {
		return Options{}, err
	}
	return opts, opts.Validate()
}

// ParseOptions decodes YAML options on top of DefaultOptions. Unknown keys
// are rejected.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if len(bytes.TrimSpace(data)) == 0 {
		return opts, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil {
		return Options{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "decode options")
	}
	return opts, opts.Validate()
}

func (o *Options) applyEnvOverrides() error {
	if v := os.Getenv(EnvMaxDepth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, EnvMaxDepth)
		}
		o.MaxDepth = n
	}
	if v := os.Getenv(EnvArrays); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, EnvArrays)
		}
		o.Arrays = b
	}
	if v := os.Getenv(EnvNumbers); v != "" {
		o.Numbers = NumberPolicy(v)
	}
	return nil
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.MaxDepth < 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("max_depth").
			Value(o.MaxDepth).
			Detail("must not be negative").
			Build()
	}
	if o.MaxDepth > document.MaxParseDepth {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("max_depth").
			Value(o.MaxDepth).
			Detail("must not exceed the parser limit of %d", document.MaxParseDepth).
			Build()
	}
	if !o.Numbers.Valid() {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("numbers").
			Value(string(o.Numbers)).
			Detail("unknown number policy %q (want auto, int64 or float64)", string(o.Numbers)).
			Build()
	}
	return nil
}
