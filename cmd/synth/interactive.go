package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/structsynth/canon"
	"github.com/wippyai/structsynth/errors"
	"github.com/wippyai/structsynth/synth"
)

type modelState int

const (
	stateTree modelState = iota
	stateSource
	stateQuery
)

// treeNode is one member, list element or the root of the explored value.
type treeNode struct {
	typ      *synth.TypeHandle
	value    reflect.Value
	key      string
	path     []string
	children []*treeNode
	depth    int
	expanded bool
}

func buildTree(key string, t *synth.TypeHandle, rv reflect.Value, path []string, depth int) *treeNode {
	n := &treeNode{typ: t, value: rv, key: key, path: path, depth: depth}
	switch t.Kind() {
	case synth.KindStruct:
		for i := 0; i < t.NumMembers(); i++ {
			m := t.Member(i)
			n.children = append(n.children,
				buildTree(m.Name, m.Type, rv.Field(i), childPath(path, m.Name), depth+1))
		}
	case synth.KindList:
		for i := 0; i < rv.Len(); i++ {
			seg := "[" + strconv.Itoa(i) + "]"
			n.children = append(n.children,
				buildTree(seg, t.Elem(), rv.Index(i), childPath(path, seg), depth+1))
		}
	}
	return n
}

func childPath(path []string, seg string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

// flatten lists the visible nodes in display order.
func flatten(n *treeNode, out []*treeNode) []*treeNode {
	out = append(out, n)
	if n.expanded {
		for _, c := range n.children {
			out = flatten(c, out)
		}
	}
	return out
}

func (n *treeNode) summary() string {
	switch n.typ.Kind() {
	case synth.KindStruct:
		return fmt.Sprintf("{%d} #%d", len(n.children), n.typ.ID())
	case synth.KindList:
		return fmt.Sprintf("[%d] #%d", len(n.children), n.typ.ID())
	}
	return scalarText(n.value) + " " + n.typ.String()
}

func scalarText(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.String:
		return strconv.Quote(rv.String())
	case reflect.Struct:
		return "null"
	}
	return fmt.Sprint(rv.Interface())
}

type interactiveModel struct {
	err      error
	value    *synth.ValueHandle
	root     *treeNode
	codec    *canon.Codec
	name     string
	filename string
	result   string
	source   string
	visible  []*treeNode
	query    textinput.Model
	view     viewport.Model
	selected int
	state    modelState
}

func newInteractiveModel(r result, name string) *interactiveModel {
	root := buildTree(name, r.value.Type(), r.value.Value(), nil, 0)
	root.expanded = true

	q := textinput.New()
	q.Placeholder = "inner.number or points[0].x"
	q.Prompt = "path: "
	q.Width = 40

	m := &interactiveModel{
		value:    r.value,
		root:     root,
		codec:    canon.NewCodec(),
		name:     name,
		filename: r.name,
		query:    q,
		view:     viewport.New(80, 20),
		state:    stateTree,
	}
	m.refresh()
	return m
}

func (m *interactiveModel) refresh() {
	m.visible = flatten(m.root, m.visible[:0])
	if m.selected >= len(m.visible) {
		m.selected = len(m.visible) - 1
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-4, 1)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.state {
		case stateTree:
			return m.updateTree(msg)
		case stateSource:
			return m.updateSource(msg)
		case stateQuery:
			return m.updateQuery(msg)
		}
	}
	return m, nil
}

func (m *interactiveModel) updateTree(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cur := m.visible[m.selected]
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.visible)-1 {
			m.selected++
		}

	case "enter", " ":
		if len(cur.children) > 0 {
			cur.expanded = !cur.expanded
			m.refresh()
		}

	case "right", "l":
		if len(cur.children) > 0 && !cur.expanded {
			cur.expanded = true
			m.refresh()
		}

	case "left", "h":
		if cur.expanded {
			cur.expanded = false
			m.refresh()
			break
		}
		for i := m.selected - 1; i >= 0; i-- {
			if m.visible[i].depth < cur.depth {
				m.selected = i
				break
			}
		}

	case "g":
		m.showSource(cur.typ.GoString())

	case "w":
		m.showSource(m.codec.WITText(cur.typ, m.witName(cur)))

	case "/":
		m.state = stateQuery
		m.result, m.err = "", nil
		m.query.SetValue(errors.JoinPath(cur.path))
		return m, m.query.Focus()
	}
	return m, nil
}

func (m *interactiveModel) witName(n *treeNode) string {
	if n == m.root || strings.HasPrefix(n.key, "[") {
		return m.name
	}
	return n.key
}

func (m *interactiveModel) showSource(text string) {
	m.source = text
	m.view.SetContent(text)
	m.view.GotoTop()
	m.state = stateSource
}

func (m *interactiveModel) updateSource(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.state = stateTree
		return m, nil
	}
	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m *interactiveModel) updateQuery(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.query.Blur()
		m.state = stateTree
		return m, nil

	case "enter":
		v, err := m.value.Get(splitKeyPath(m.query.Value())...)
		if err != nil {
			m.result, m.err = "", err
			return m, nil
		}
		m.result, m.err = fmt.Sprintf("%+v", v), nil
		return m, nil
	}
	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	return m, cmd
}

// splitKeyPath splits "a.b[2].c" into ["a", "b", "[2]", "c"], the inverse
// of errors.JoinPath.
func splitKeyPath(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ".") {
		for part != "" {
			i := strings.IndexByte(part[1:], '[')
			if i < 0 {
				out = append(out, part)
				break
			}
			out = append(out, part[:i+1])
			part = part[i+1:]
		}
	}
	return out
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Synth Explorer"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateTree:
		for i, n := range m.visible {
			line := m.formatNode(n)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter expand • g go type • w wit • / query • q quit"))

	case stateSource:
		b.WriteString(m.view.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • esc back"))

	case stateQuery:
		b.WriteString(m.query.View())
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else if m.result != "" {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter lookup • esc back"))
	}

	return b.String()
}

func (m *interactiveModel) formatNode(n *treeNode) string {
	marker := "  "
	if len(n.children) > 0 {
		marker = "▸ "
		if n.expanded {
			marker = "▾ "
		}
	}
	return strings.Repeat("  ", n.depth) + marker +
		keyStyle.Render(n.key) + " " + typeStyle.Render(n.summary())
}

func runInteractive(r result, name string) error {
	p := tea.NewProgram(newInteractiveModel(r, name), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
