package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/structsynth"
)

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 150 * time.Millisecond

func newWatchCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch file...",
		Short: "Re-synthesize documents whenever they change",
		Long: `watch synthesizes each file, then again every time it is written.
The registry is kept between runs, so an edit that keeps the shape of a
document reports the same type id.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, f, args)
		},
	}
}

type watcher struct {
	s     *structsynth.Synthesizer
	out   *printer
	flags *rootFlags
	log   *zap.Logger
	types map[string]uint32
}

func runWatch(cmd *cobra.Command, f *rootFlags, files []string) error {
	log, err := newLogger(f.verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	s, err := newSynthesizer(cmd, f, log)
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		if _, err := structsynth.FormatOf(abs); err != nil {
			return err
		}
		targets[abs] = true

		// Watch the directory: editors replace files on save.
		dir := filepath.Dir(abs)
		if !dirs[dir] {
			if err := fw.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			dirs[dir] = true
		}
	}

	w := &watcher{
		s:     s,
		out:   newPrinter(cmd.OutOrStdout(), s.Registry()),
		flags: f,
		log:   log,
		types: make(map[string]uint32),
	}
	for _, name := range sortedKeys(targets) {
		w.synthesize(cmd.Context(), name)
	}
	w.out.line("%s", w.out.style(helpStyle, fmt.Sprintf("watching %d file(s), ctrl+c to stop", len(targets))))

	return w.loop(cmd.Context(), fw, targets)
}

func (w *watcher) loop(ctx context.Context, fw *fsnotify.Watcher, targets map[string]bool) error {
	pending := make(map[string]bool)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if !targets[name] || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.Debug("document changed", zap.String("file", name), zap.Stringer("op", ev.Op))
			pending[name] = true
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			for _, name := range sortedKeys(pending) {
				w.synthesize(ctx, name)
			}
			clear(pending)
		}
	}
}

// synthesize reports one run. Failures are printed, not returned, so the
// watch keeps going while the document is being fixed.
func (w *watcher) synthesize(ctx context.Context, path string) {
	in := input{name: filepath.Base(path), path: path}
	results, err := synthesizeAll(ctx, w.s, []input{in})
	if err != nil {
		w.out.line("%s", renderError(err, w.out.styled))
		return
	}
	r := results[0]

	id := r.value.Type().ID()
	if prev, ok := w.types[path]; ok && prev == id {
		w.out.line("%s %s", w.out.style(titleStyle, r.name), w.out.style(helpStyle, fmt.Sprintf("shape unchanged (type #%d)", id)))
		if w.flags.format == formatJSON || w.flags.format == formatValue {
			w.printBody(r)
		}
		return
	}
	w.types[path] = id
	if err := w.out.result(r, w.flags); err != nil {
		w.out.line("%s", renderError(err, w.out.styled))
	}
}

func (w *watcher) printBody(r result) {
	text, err := renderValue(w.out.codec, r.value, w.flags.format, w.flags.rootName(r.input))
	if err != nil {
		w.out.line("%s", renderError(err, w.out.styled))
		return
	}
	w.out.line("%s", text)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
