package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/structsynth/canon"
	"github.com/wippyai/structsynth/synth"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printer writes results, styled only when the destination is a terminal.
type printer struct {
	w      io.Writer
	reg    *synth.Registry
	codec  *canon.Codec
	styled bool
}

func newPrinter(w io.Writer, reg *synth.Registry) *printer {
	return &printer{w: w, reg: reg, codec: canon.NewCodec(), styled: isTerminal(w)}
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) result(r result, f *rootFlags) error {
	t := r.value.Type()
	p.line("%s %s", p.style(titleStyle, r.name), p.style(typeStyle, fmt.Sprintf("type #%d", t.ID())))

	text, err := renderValue(p.codec, r.value, f.format, f.rootName(r.input))
	if err != nil {
		return err
	}
	p.line("%s", strings.TrimRight(text, "\n"))
	return nil
}

// renderValue renders v in one of the output formats.
func renderValue(codec *canon.Codec, v *synth.ValueHandle, format, name string) (string, error) {
	switch format {
	case formatGo:
		return v.Type().GoString(), nil
	case formatWIT:
		return codec.WITText(v.Type(), name), nil
	case formatJSON:
		data, err := json.MarshalIndent(v.Interface(), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}
		return string(data), nil
	case formatValue:
		return v.String(), nil
	}
	return "", fmt.Errorf("unknown output format %q", format)
}

// lowered lowers the value into a fresh wasm memory, lifts it back to
// check the round trip and dumps the root record.
func (p *printer) lowered(ctx context.Context, r result) error {
	dump, err := lowerDump(ctx, p.codec, p.reg, r.value)
	if err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	p.line("%s", p.style(helpStyle, dump.summary()))
	p.line("%s", strings.TrimRight(hex.Dump(dump.record), "\n"))
	return nil
}

type loweredValue struct {
	record []byte
	layout canon.Layout
	ptr    uint32
	used   uint32
}

func (l loweredValue) summary() string {
	return fmt.Sprintf("lowered at 0x%x: size %d, align %d, %d bytes of memory used",
		l.ptr, l.layout.Size, l.layout.Align, l.used)
}

func lowerDump(ctx context.Context, codec *canon.Codec, reg *synth.Registry, v *synth.ValueHandle) (loweredValue, error) {
	lm, err := canon.NewLinearMemory(ctx, canon.MemoryConfig{InitialPages: 1})
	if err != nil {
		return loweredValue{}, err
	}
	defer lm.Close(ctx)

	ptr, err := codec.Lower(v, lm.Memory(), lm.Allocator())
	if err != nil {
		return loweredValue{}, err
	}

	back, err := codec.Lift(reg, v.Type(), lm.Memory(), ptr)
	if err != nil {
		return loweredValue{}, err
	}
	if !back.Equal(v) {
		return loweredValue{}, fmt.Errorf("lifted value differs from the original")
	}

	layout := codec.Layout(v.Type())
	record, err := lm.Memory().Read(ptr, layout.Size)
	if err != nil {
		return loweredValue{}, err
	}
	return loweredValue{
		record: append([]byte(nil), record...),
		layout: layout,
		ptr:    ptr,
		used:   lm.Allocator().Used(),
	}, nil
}

func (p *printer) summary() {
	reg := p.reg
	stats := reg.Arena().Stats()
	p.line("")
	p.line("%s", p.style(helpStyle, fmt.Sprintf("%d types, %d interned strings", reg.Len(), stats.Blobs)))
}

func renderError(err error, styled bool) string {
	text := "Error: " + err.Error()
	if !styled {
		return text
	}
	return errorStyle.Render(text)
}
