package structsynth

import (
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/structsynth/arena"
	"github.com/wippyai/structsynth/document"
	"github.com/wippyai/structsynth/errors"
	"github.com/wippyai/structsynth/synth"
)

//go:embed testdata
var testdata embed.FS

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSynthesizer(t *testing.T, opts Options) *Synthesizer {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = synth.NewRegistry(arena.New())
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

func get(t *testing.T, v *synth.ValueHandle, path ...string) any {
	t.Helper()
	got, err := v.Get(path...)
	require.NoError(t, err)
	return got
}

func TestSynthesize_Scenarios(t *testing.T) {
	t.Run("outer and inner", func(t *testing.T) {
		s := newSynthesizer(t, Options{})
		v, err := s.Synthesize(`{"outer": "text", "inner": {"field": "yes", "number": 2996}}`)
		require.NoError(t, err)
		assert.Equal(t, "text", get(t, v, "outer"))
		assert.Equal(t, "yes", get(t, v, "inner", "field"))
		assert.Equal(t, int64(2996), get(t, v, "inner", "number"))

		rv := v.Value()
		assert.Equal(t, "text", rv.FieldByName("Outer").String())
		assert.Equal(t, "yes", rv.FieldByName("Inner").FieldByName("Field").String())
		assert.Equal(t, int64(2996), rv.FieldByName("Inner").FieldByName("Number").Int())
	})

	t.Run("capital keys", func(t *testing.T) {
		s := newSynthesizer(t, Options{})
		v, err := s.Synthesize(`{"A": 1, "B": {"C": "h"}}`)
		require.NoError(t, err)
		rv := v.Value()
		assert.Equal(t, int64(1), rv.FieldByName("A").Int())
		assert.Equal(t, "h", rv.FieldByName("B").FieldByName("C").String())
	})

	t.Run("empty object", func(t *testing.T) {
		s := newSynthesizer(t, Options{})
		v, err := s.Synthesize(`{}`)
		require.NoError(t, err)
		assert.Equal(t, 0, v.Type().NumMembers())
		assert.Empty(t, v.Fields())
	})

	t.Run("duplicate key", func(t *testing.T) {
		s := newSynthesizer(t, Options{})
		v, err := s.Synthesize(`{"x": 1, "x": 2}`)
		assert.Nil(t, v)
		assert.ErrorIs(t, err, errors.ErrDuplicateKey)
		assert.Equal(t, 0, s.Registry().Len())
	})

	t.Run("same shape in one program", func(t *testing.T) {
		s := newSynthesizer(t, Options{})
		v1, err := s.Synthesize(`{"a": {"b": 1}}`)
		require.NoError(t, err)
		v2, err := s.Synthesize(`{"a": {"b": 2}}`)
		require.NoError(t, err)

		a1 := v1.Value().Field(0)
		a2 := v2.Value().Field(0)
		assert.Equal(t, a1.Type(), a2.Type())
		assert.Same(t, v1.Type().Member(0).Type, v2.Type().Member(0).Type)
		assert.Equal(t, int64(1), a1.Field(0).Int())
		assert.Equal(t, int64(2), a2.Field(0).Int())
	})

	t.Run("three levels", func(t *testing.T) {
		s := newSynthesizer(t, Options{})
		v, err := s.Synthesize(`{"a":{"b":{"c":5}}}`)
		require.NoError(t, err)
		assert.Equal(t, int64(5), get(t, v, "a", "b", "c"))
		assert.Equal(t, 3, s.Registry().Len())

		seen := map[*synth.TypeHandle]bool{}
		for typ := v.Type(); typ.Kind() == synth.KindStruct; typ = typ.Member(0).Type {
			seen[typ] = true
		}
		assert.Len(t, seen, 3)
	})
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target error
		path   string
	}{
		{name: "scalar root", text: `"text"`, target: errors.ErrInvalidRoot},
		{name: "array root", text: `[1, 2]`, target: errors.ErrInvalidRoot},
		{name: "nested duplicate", text: `{"outer": {"inner": {"bad": 1, "bad": 2}}}`, target: errors.ErrDuplicateKey, path: "outer.inner.bad"},
		{name: "array without extension", text: `{"a": [1]}`, target: errors.ErrUnsupportedNodeKind, path: "a"},
		{name: "mangled names collide", text: `{"my-key": 1, "my_key": 2}`, target: errors.ErrDuplicateMember, path: "my_key"},
		{name: "syntax", text: `{"a": }`, target: &errors.Error{Phase: errors.PhaseParse, Kind: errors.KindInvalidData}},
		{name: "trailing data", text: `{} {}`, target: &errors.Error{Phase: errors.PhaseParse, Kind: errors.KindInvalidData}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSynthesizer(t, Options{})
			v, err := s.Synthesize(tt.text)
			assert.Nil(t, v)
			require.ErrorIs(t, err, tt.target)
			if tt.path != "" {
				var se *errors.Error
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.path, se.KeyPath())
				assert.Contains(t, err.Error(), " at "+tt.path)
			}
		})
	}
}

func TestMustSynthesize(t *testing.T) {
	s := newSynthesizer(t, Options{})
	v := s.MustSynthesize(`{"ok": true}`)
	assert.Equal(t, true, get(t, v, "ok"))

	assert.PanicsWithError(t, `[walk] duplicate_key at k: key "k" appears more than once`, func() {
		s.MustSynthesize(`{"k": 1, "k": 1}`)
	})
}

func TestPackageLevel(t *testing.T) {
	v, err := Synthesize(`{"pkg": "level"}`)
	require.NoError(t, err)
	assert.Equal(t, "level", get(t, v, "pkg"))

	again := MustSynthesize(`{"pkg": "other"}`)
	assert.Same(t, v.Type(), again.Type())
	assert.Same(t, synth.Default(), Default().Registry())
}

// genObject renders a random object of strings, integers, booleans and
// nested objects as JSON text, and records each leaf by key path.
func genObject(r *rand.Rand, depth int, prefix []string, leaves map[string]any) string {
	var b strings.Builder
	b.WriteByte('{')
	n := r.Intn(4)
	if depth == 1 {
		n++
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		key := fmt.Sprintf("k%d_%d", depth, i)
		path := append(prefix[:len(prefix):len(prefix)], key)
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')

		switch kind := r.Intn(4); {
		case kind == 0 && depth < 5:
			b.WriteString(genObject(r, depth+1, path, leaves))
		case kind == 1:
			num := r.Int63n(1<<40) - 1<<39
			leaves[strings.Join(path, ".")] = num
			b.WriteString(strconv.FormatInt(num, 10))
		case kind == 2:
			v := r.Intn(2) == 0
			leaves[strings.Join(path, ".")] = v
			b.WriteString(strconv.FormatBool(v))
		default:
			s := fmt.Sprintf("s-%x \"q\" é", r.Uint32())
			leaves[strings.Join(path, ".")] = s
			b.WriteString(strconv.Quote(s))
		}
	}
	b.WriteByte('}')
	return b.String()
}

func TestSynthesize_RoundTrip(t *testing.T) {
	s := newSynthesizer(t, Options{})
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		leaves := map[string]any{}
		text := genObject(r, 1, nil, leaves)

		v, err := s.Synthesize(text)
		require.NoError(t, err, text)

		for path, want := range leaves {
			got, err := v.Get(strings.Split(path, ".")...)
			require.NoError(t, err, path)
			assert.Equal(t, want, got, "%s in %s", path, text)
		}

		doc, err := document.ParseJSONString(text)
		require.NoError(t, err)
		assert.Equal(t, document.Depth(doc), depthOf(v.Type()), text)
	}
}

func depthOf(t *synth.TypeHandle) int {
	if t.Kind() != synth.KindStruct {
		return 0
	}
	d := 0
	for _, m := range t.Members() {
		if c := depthOf(m.Type); c > d {
			d = c
		}
	}
	return d + 1
}

func TestSynthesize_Dedup(t *testing.T) {
	s := newSynthesizer(t, Options{})
	r := rand.New(rand.NewSource(11))

	for i := 0; i < 50; i++ {
		text := genObject(r, 1, nil, map[string]any{})
		doc, err := document.ParseJSONString(text)
		require.NoError(t, err)

		v1, err := s.SynthesizeDocument(doc)
		require.NoError(t, err)
		v2, err := s.SynthesizeDocument(perturb(doc))
		require.NoError(t, err)

		assert.Same(t, v1.Type(), v2.Type(), text)
		assert.Equal(t, v1.Type().GoType(), v2.Type().GoType())
	}
}

// perturb returns a copy of n with every leaf changed but its kind kept.
func perturb(n document.Node) document.Node {
	switch v := n.(type) {
	case *document.Object:
		out := &document.Object{Fields: make([]document.Field, len(v.Fields))}
		for i, f := range v.Fields {
			out.Fields[i] = document.F(f.Key, perturb(f.Value))
		}
		return out
	case document.String:
		return v + "!"
	case document.Bool:
		return !v
	case document.Number:
		return v + "1"
	default:
		return n
	}
}

func TestSynthesize_OrderPreserved(t *testing.T) {
	s := newSynthesizer(t, Options{})
	keys := []string{"zeta", "alpha", "mid", "beta", "omega"}

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%d", k, i)
	}
	b.WriteByte('}')

	v, err := s.Synthesize(b.String())
	require.NoError(t, err)

	got := make([]string, 0, len(keys))
	for _, f := range v.Fields() {
		got = append(got, f.Name)
	}
	if diff := cmp.Diff(keys, got); diff != "" {
		t.Errorf("member order mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesizeFile(t *testing.T) {
	s := newSynthesizer(t, Options{})

	fromJSON, err := s.SynthesizeFile(testdata, "testdata/service.json")
	require.NoError(t, err)
	fromYAML, err := s.SynthesizeFile(testdata, "testdata/service.yaml")
	require.NoError(t, err)

	assert.Same(t, fromJSON.Type(), fromYAML.Type())
	assert.True(t, fromJSON.Equal(fromYAML))
	assert.Equal(t, 1.5, get(t, fromJSON, "limits", "burst"))
	assert.Equal(t, synth.Null{}, get(t, fromYAML, "owner"))

	t.Run("map fs", func(t *testing.T) {
		fsys := fstest.MapFS{"conf/app.yml": {Data: []byte("a: 1\n")}}
		v, err := s.SynthesizeFile(fsys, "conf/app.yml")
		require.NoError(t, err)
		assert.Equal(t, int64(1), get(t, v, "a"))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.SynthesizeFile(testdata, "testdata/missing.json")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := s.SynthesizeFile(testdata, "testdata/service.toml")
		assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})
	})
}

func TestSynthesizeBytes(t *testing.T) {
	s := newSynthesizer(t, Options{})
	v, err := s.SynthesizeBytes([]byte("list: [1]\n"), FormatYAML)
	assert.Nil(t, v)
	assert.ErrorIs(t, err, errors.ErrUnsupportedNodeKind)

	_, err = s.SynthesizeBytes([]byte("{}"), Format("toml"))
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})
}

func TestSynthesizer_Logging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := newSynthesizer(t, Options{Logger: zap.New(core)})

	_, err := s.Synthesize(`{"a": {"b": "c"}}`)
	require.NoError(t, err)
	_, err = s.Synthesize(`{"a": {"b": 1, "b": 2}}`)
	require.Error(t, err)

	done := logs.FilterMessage("synthesis complete").All()
	require.Len(t, done, 1)
	assert.Equal(t, int64(2), done[0].ContextMap()["types"])

	failed := logs.FilterMessage("synthesis failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "duplicate_key", failed[0].ContextMap()["kind"])
	assert.Equal(t, "a.b", failed[0].ContextMap()["path"])
}

func TestOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := newSynthesizer(t, Options{})
		opts := s.Options()
		assert.Equal(t, NumberAuto, opts.Numbers)
		assert.Equal(t, 64, opts.MaxDepth)
		assert.False(t, opts.Arrays)
	})

	t.Run("validate", func(t *testing.T) {
		_, err := New(Options{MaxDepth: -1})
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput})
		_, err = New(Options{Numbers: "int32"})
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput})
		_, err = New(Options{MaxDepth: document.MaxParseDepth + 1})
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput})
		assert.NoError(t, Options{MaxDepth: document.MaxParseDepth}.Validate())
	})

	t.Run("parser depth limit", func(t *testing.T) {
		s := newSynthesizer(t, Options{MaxDepth: document.MaxParseDepth})
		levels := document.MaxParseDepth + 1
		_, err := s.Synthesize(strings.Repeat(`{"a":`, levels) + "1" + strings.Repeat("}", levels))
		assert.ErrorIs(t, err, errors.ErrNestingTooDeep)
		assert.Equal(t, 0, s.Registry().Len())
	})

	t.Run("parse", func(t *testing.T) {
		data, err := testdata.ReadFile("testdata/options.yaml")
		require.NoError(t, err)
		opts, err := ParseOptions(data)
		require.NoError(t, err)
		assert.Equal(t, Options{Numbers: NumberFloat64, MaxDepth: 8, Arrays: true}, opts)

		opts, err = ParseOptions(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions(), opts)

		_, err = ParseOptions([]byte("unknown: 1\n"))
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidData})

		_, err = ParseOptions([]byte("numbers: int32\n"))
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput})
	})

	t.Run("load with env", func(t *testing.T) {
		dir := t.TempDir()
		file := filepath.Join(dir, "synth.yaml")
		require.NoError(t, os.WriteFile(file, []byte("max_depth: 3\n"), 0o644))

		t.Setenv(EnvArrays, "true")
		opts, err := LoadOptions(file)
		require.NoError(t, err)
		assert.Equal(t, 3, opts.MaxDepth)
		assert.True(t, opts.Arrays)
		assert.Equal(t, NumberAuto, opts.Numbers)

		t.Setenv(EnvMaxDepth, "nope")
		_, err = LoadOptions(file)
		assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput})
	})

	t.Run("load missing file", func(t *testing.T) {
		opts, err := LoadOptions(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions(), opts)
	})

	t.Run("options reach the walker", func(t *testing.T) {
		s := newSynthesizer(t, Options{Arrays: true, Numbers: NumberFloat64, MaxDepth: 2})
		v, err := s.Synthesize(`{"l": [1, 2]}`)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, get(t, v, "l"))

		_, err = s.Synthesize(`{"a": {"b": {}}}`)
		assert.ErrorIs(t, err, errors.ErrNestingTooDeep)
	})
}

func TestFormatOf(t *testing.T) {
	for name, want := range map[string]Format{
		"a.json":     FormatJSON,
		"dir/b.YAML": FormatYAML,
		"c.yml":      FormatYAML,
	} {
		got, err := FormatOf(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := FormatOf("noext")
	assert.Error(t, err)
}
