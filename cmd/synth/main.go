// Command synth synthesizes static Go types and constants from JSON or
// YAML documents and prints them as Go source, WIT, JSON or values.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/structsynth"
	"github.com/wippyai/structsynth/arena"
	"github.com/wippyai/structsynth/canon"
	"github.com/wippyai/structsynth/synth"
	"github.com/wippyai/structsynth/walker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err, isTerminal(os.Stderr)))
		os.Exit(1)
	}
}

// Output formats.
const (
	formatGo    = "go"
	formatWIT   = "wit"
	formatJSON  = "json"
	formatValue = "value"
)

type rootFlags struct {
	exprs       []string
	config      string
	format      string
	name        string
	numbers     string
	maxDepth    int
	arrays      bool
	lower       bool
	interactive bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "synth [files...]",
		Short: "Synthesize static types and constants from structured documents",
		Long: `synth parses JSON or YAML documents and synthesizes one Go struct type
per distinct object shape, plus the constant holding the document.

Documents are read from the files given as arguments (format picked by
extension) and from --expr JSON literals. All documents share one type
registry, so equal shapes are reported with the same type id.`,
		Example: `  synth config.json
  synth -e '{"outer": "hello", "inner": {"number": 42}}' --format wit
  synth --arrays --lower service.yaml`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(cmd, f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringArrayVarP(&f.exprs, "expr", "e", nil, "inline JSON document (repeatable)")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "explore the first document in a TUI")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.config, "config", "c", "", "YAML options file")
	pf.StringVarP(&f.format, "format", "f", formatGo, "output format: go, wit, json or value")
	pf.StringVar(&f.name, "name", "", "WIT record name of the root (default: file name)")
	pf.StringVar(&f.numbers, "numbers", string(walker.NumberAuto), "number policy: auto, int64 or float64")
	pf.IntVar(&f.maxDepth, "max-depth", walker.DefaultMaxDepth, "maximum object nesting depth")
	pf.BoolVar(&f.arrays, "arrays", false, "synthesize lists for document arrays")
	pf.BoolVar(&f.lower, "lower", false, "lower each value into wasm linear memory and dump it")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging to stderr")

	cmd.AddCommand(newWatchCmd(f))
	return cmd
}

// input is one document to synthesize.
type input struct {
	name   string
	path   string
	data   []byte
	format structsynth.Format
}

// result is a synthesized input.
type result struct {
	input
	value *synth.ValueHandle
}

func runSynth(cmd *cobra.Command, f *rootFlags, args []string) error {
	if len(args) == 0 && len(f.exprs) == 0 {
		return fmt.Errorf("no documents: pass files or --expr")
	}
	if !validFormat(f.format) {
		return fmt.Errorf("unknown output format %q", f.format)
	}

	log, err := newLogger(f.verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	s, err := newSynthesizer(cmd, f, log)
	if err != nil {
		return err
	}

	inputs := collectInputs(args, f.exprs)
	results, err := synthesizeAll(cmd.Context(), s, inputs)
	if err != nil {
		return err
	}

	if f.interactive {
		return runInteractive(results[0], f.rootName(results[0].input))
	}

	out := newPrinter(cmd.OutOrStdout(), s.Registry())
	for i, r := range results {
		if i > 0 {
			out.line("")
		}
		if err := out.result(r, f); err != nil {
			return err
		}
		if f.lower {
			if err := out.lowered(cmd.Context(), r); err != nil {
				return err
			}
		}
	}
	if len(results) > 1 {
		out.summary()
	}
	return nil
}

func validFormat(format string) bool {
	switch format {
	case formatGo, formatWIT, formatJSON, formatValue:
		return true
	}
	return false
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	synth.SetLogger(log)
	walker.SetLogger(log)
	canon.SetLogger(log)
	structsynth.SetLogger(log)
	return log, nil
}

// newSynthesizer builds options from --config, then the flags the user set
// explicitly. Each invocation gets a fresh registry.
func newSynthesizer(cmd *cobra.Command, f *rootFlags, log *zap.Logger) (*structsynth.Synthesizer, error) {
	opts := structsynth.DefaultOptions()
	if f.config != "" {
		loaded, err := structsynth.LoadOptions(f.config)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	fl := cmd.Flags()
	if fl.Changed("numbers") {
		opts.Numbers = structsynth.NumberPolicy(f.numbers)
	}
	if fl.Changed("max-depth") {
		opts.MaxDepth = f.maxDepth
	}
	if fl.Changed("arrays") {
		opts.Arrays = f.arrays
	}
	opts.Logger = log
	opts.Registry = synth.NewRegistry(arena.New())
	return structsynth.New(opts)
}

func collectInputs(files, exprs []string) []input {
	inputs := make([]input, 0, len(files)+len(exprs))
	for _, path := range files {
		inputs = append(inputs, input{name: path, path: path})
	}
	for i, e := range exprs {
		inputs = append(inputs, input{
			name:   fmt.Sprintf("expr#%d", i+1),
			data:   []byte(e),
			format: structsynth.FormatJSON,
		})
	}
	return inputs
}

// synthesizeAll reads and synthesizes inputs concurrently into the
// synthesizer's shared registry. Results keep input order.
func synthesizeAll(ctx context.Context, s *structsynth.Synthesizer, inputs []input) ([]result, error) {
	results := make([]result, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if in.path != "" {
				format, err := structsynth.FormatOf(in.path)
				if err != nil {
					return err
				}
				data, err := os.ReadFile(in.path)
				if err != nil {
					return fmt.Errorf("read %s: %w", in.path, err)
				}
				in.data, in.format = data, format
			}
			v, err := s.SynthesizeBytes(in.data, in.format)
			if err != nil {
				return fmt.Errorf("%s: %w", in.name, err)
			}
			results[i] = result{input: in, value: v}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// rootName picks the WIT record name of a document root.
func (f *rootFlags) rootName(in input) string {
	if f.name != "" {
		return f.name
	}
	if in.path == "" {
		return "document"
	}
	base := filepath.Base(in.path)
	return canon.Kebab(strings.TrimSuffix(base, filepath.Ext(base)))
}
