package structsynth

import (
	"io/fs"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/structsynth/document"
	"github.com/wippyai/structsynth/errors"
	"github.com/wippyai/structsynth/synth"
	"github.com/wippyai/structsynth/walker"
)

// Format identifies a document syntax.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file name extension: .json, .yaml or .yml.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errors.New(errors.PhaseParse, errors.KindInvalidInput).
		Detail("cannot tell document format of %q", name).
		Build()
}

// Parse parses data in the given format into a document tree.
func Parse(data []byte, format Format) (document.Node, error) {
	switch format {
	case FormatJSON, "":
		return document.ParseJSON(data)
	case FormatYAML:
		return document.ParseYAML(data)
	}
	return nil, errors.InvalidInput(errors.PhaseParse, "unknown document format "+string(format))
}

// Synthesizer turns documents into synthesized values. All values from
// one Synthesizer share its registry, so equal shapes share types.
type Synthesizer struct {
	walker *walker.Walker
	reg    *synth.Registry
	log    *zap.Logger
	opts   Options
}

// New creates a Synthesizer.
func New(opts Options) (*Synthesizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		opts.Registry = synth.Default()
	}
	if opts.Logger == nil {
		opts.Logger = Logger()
	}
	if opts.Numbers == "" {
		opts.Numbers = NumberAuto
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = walker.DefaultMaxDepth
	}

	return &Synthesizer{
		walker: walker.New(walker.Options{
			Registry: opts.Registry,
			Logger:   opts.Logger,
			Numbers:  opts.Numbers,
			MaxDepth: opts.MaxDepth,
			Arrays:   opts.Arrays,
		}),
		reg:  opts.Registry,
		log:  opts.Logger,
		opts: opts,
	}, nil
}

// Options returns the effective options.
func (s *Synthesizer) Options() Options {
	return s.opts
}

// Registry returns the registry holding synthesized types.
func (s *Synthesizer) Registry() *synth.Registry {
	return s.reg
}

// Synthesize synthesizes the JSON document text.
func (s *Synthesizer) Synthesize(text string) (*synth.ValueHandle, error) {
	return s.SynthesizeBytes([]byte(text), FormatJSON)
}

// SynthesizeBytes parses data in format and synthesizes it.
func (s *Synthesizer) SynthesizeBytes(data []byte, format Format) (*synth.ValueHandle, error) {
	doc, err := Parse(data, format)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	return s.SynthesizeDocument(doc)
}

// SynthesizeFile reads name from fsys and synthesizes it. The format
// follows the file extension.
func (s *Synthesizer) SynthesizeFile(fsys fs.FS, name string) (*synth.ValueHandle, error) {
	format, err := FormatOf(name)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindNotFound, err, "read "+name)
	}

	v, err := s.SynthesizeBytes(data, format)
	if err != nil {
		return nil, err
	}
	s.log.Debug("synthesized file", zap.String("file", name))
	return v, nil
}

// SynthesizeDocument synthesizes an already parsed document tree.
func (s *Synthesizer) SynthesizeDocument(doc document.Node) (*synth.ValueHandle, error) {
	v, err := s.walker.Walk(doc)
	if err != nil {
		s.fail(err)
		return nil, err
	}

	if ce := s.log.Check(zap.DebugLevel, "synthesis complete"); ce != nil {
		stats := s.reg.Arena().Stats()
		ce.Write(
			zap.Uint32("root_type", v.Type().ID()),
			zap.Int("types", s.reg.Len()),
			zap.Int("blobs", stats.Blobs),
		)
	}
	return v, nil
}

// MustSynthesize is like Synthesize but panics on error. It is meant for
// package-level variables initialised from document literals.
func (s *Synthesizer) MustSynthesize(text string) *synth.ValueHandle {
	v, err := s.Synthesize(text)
	if err != nil {
		panic(err)
	}
	return v
}

func (s *Synthesizer) fail(err error) {
	var se *errors.Error
	if !errors.As(err, &se) {
		s.log.Warn("synthesis failed", zap.Error(err))
		return
	}
	s.log.Warn("synthesis failed",
		zap.String("kind", string(se.Kind)),
		zap.String("path", se.KeyPath()),
		zap.Error(err),
	)
}

var (
	defaultSynth     *Synthesizer
	defaultSynthOnce sync.Once
)

// Default returns the Synthesizer used by the package-level functions. It
// uses DefaultOptions and the process-wide registry.
func Default() *Synthesizer {
	defaultSynthOnce.Do(func() {
		s, err := New(DefaultOptions())
		if err != nil {
			panic(err)
		}
		defaultSynth = s
	})
	return defaultSynth
}

// Synthesize synthesizes the JSON document text with the default
// Synthesizer.
func Synthesize(text string) (*synth.ValueHandle, error) {
	return Default().Synthesize(text)
}

// MustSynthesize is like Synthesize but panics on error.
func MustSynthesize(text string) *synth.ValueHandle {
	return Default().MustSynthesize(text)
}

// SynthesizeFile synthesizes a JSON or YAML file with the default
// Synthesizer.
func SynthesizeFile(fsys fs.FS, name string) (*synth.ValueHandle, error) {
	return Default().SynthesizeFile(fsys, name)
}
