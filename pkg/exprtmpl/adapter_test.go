package exprtmpl

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type Base struct {
	ID int
}

type person struct {
	Base
	Name    string `tmpl:"name"`
	Secret  string `tmpl:"-"`
	private int
	Born    time.Time
	Tags    []string
	Manager *person
}

type color string

func TestFromGoScalars(t *testing.T) {
	n := 5
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 3, 3.0},
		{"uint8", uint8(7), 7.0},
		{"float32", float32(0.5), 0.5},
		{"string", "x", "x"},
		{"named string", color("red"), "red"},
		{"bytes", []byte("raw"), "raw"},
		{"pointer", &n, 5.0},
		{"nil pointer", (*int)(nil), nil},
		{"nil map", map[string]any(nil), nil},
		{"value", StringValue("v"), "v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromGo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Export())
		})
	}
}

func TestFromGoCollections(t *testing.T) {
	v, err := FromGo(map[string]any{
		"z":    1,
		"a":    []any{"x", 2, nil},
		"m":    map[string]int{"k": 1},
		"arr":  [2]bool{true, false},
		"when": time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, KindTable, v.Kind())
	assert.Equal(t, []string{"a", "arr", "m", "when", "z"}, v.t.Keys())

	want := map[string]any{
		"z":   1.0,
		"a":   []any{"x", 2.0, nil},
		"m":   map[string]any{"k": 1.0},
		"arr": []any{true, false},
		"when": map[string]any{
			"year": 2024.0, "month": 3.0, "day": 5.0,
			"hour": 0.0, "minute": 0.0, "second": 0.0, "millisecond": 0.0,
			"dayofyear": 65.0, "dayofweek": 2.0,
		},
	}
	if diff := cmp.Diff(want, v.Export()); diff != "" {
		t.Errorf("Export() mismatch (-want +got):\n%s", diff)
	}

	_, ok := v.t.Get("missing")
	assert.False(t, ok)
}

func TestHostIdentity(t *testing.T) {
	m := map[string]any{"a": 1}
	s := []int{1, 2}
	p := &person{Name: "Ada"}

	same := func(x any) bool {
		a, err := FromGo(x)
		require.NoError(t, err)
		b, err := FromGo(x)
		require.NoError(t, err)
		return Equal(a, b)
	}
	assert.True(t, same(m), "map")
	assert.True(t, same(s), "slice")
	assert.True(t, same(p), "struct pointer")
	assert.False(t, same(*p), "struct value")
	assert.False(t, same([2]int{1, 2}), "array value")

	// children are converted once, so reads through one adapter agree
	v, err := FromGo(map[string]any{"inner": map[string]any{}})
	require.NoError(t, err)
	first, _ := v.t.Get("inner")
	second, _ := v.t.Get("inner")
	assert.True(t, Equal(first, second))

	// a sub-slice is different host data
	a, _ := FromGo(s)
	b, _ := FromGo(s[:1])
	assert.False(t, Equal(a, b))

	// zero-capacity slices and zero-size pointees can share one address
	e1, err := FromGo(make([]int, 0))
	require.NoError(t, err)
	e2, err := FromGo(make([]int, 0))
	require.NoError(t, err)
	assert.False(t, Equal(e1, e2))
	assert.True(t, Equal(e1, e1))

	type marker struct{}
	m1, err := FromGo(&marker{})
	require.NoError(t, err)
	m2, err := FromGo(&marker{})
	require.NoError(t, err)
	assert.False(t, Equal(m1, m2))
	assert.True(t, Equal(m1, m1))

	// an empty slice with its own backing array still has host identity
	backed := make([]int, 0, 4)
	b1, _ := FromGo(backed)
	b2, _ := FromGo(backed)
	assert.True(t, Equal(b1, b2))
}

func TestFromGoStruct(t *testing.T) {
	p := &person{
		Base:    Base{ID: 7},
		Name:    "Ada",
		Secret:  "hidden",
		private: 1,
		Born:    time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC),
		Tags:    []string{"math"},
	}
	v, err := FromGo(p)
	require.NoError(t, err)
	require.Equal(t, KindTable, v.Kind())
	assert.Equal(t, []string{"ID", "name", "Born", "Tags", "Manager"}, v.t.Keys())

	id, ok := v.t.Get("ID")
	require.True(t, ok)
	assert.Equal(t, 7.0, id.n)

	_, ok = v.t.Get("Secret")
	assert.False(t, ok)
	_, ok = v.t.Get("private")
	assert.False(t, ok)

	born, _ := v.t.Get("Born")
	year, _ := born.t.Get("year")
	assert.Equal(t, 1815.0, year.n)

	mgr, ok := v.t.Get("Manager")
	require.True(t, ok)
	assert.True(t, mgr.IsNull())

	out := mustRender(t, "={p.name} #={p.ID} ={p.Tags[0]}", map[string]any{"p": p})
	assert.Equal(t, "Ada #7 math", out)
}

func TestFromGoNilEmbeddedPointer(t *testing.T) {
	type wrapper struct {
		*Base
		X int
	}
	v, err := FromGo(wrapper{X: 1})
	require.NoError(t, err)
	id, ok := v.t.Get("ID")
	assert.True(t, ok)
	assert.True(t, id.IsNull())
}

func TestFromGoUnsupported(t *testing.T) {
	for name, in := range map[string]any{
		"chan":         make(chan int),
		"func":         func() {},
		"int map keys": map[int]string{1: "a"},
		"complex":      complex(1, 2),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromGo(in)
			assert.ErrorIs(t, err, ErrUnsupportedHost)
		})
	}

	// nested members fail lazily, on first access
	v, err := FromGo(map[string]any{"ok": 1, "bad": make(chan int)})
	require.NoError(t, err)
	func() {
		defer func() {
			err := RecoverError(recover())
			assert.ErrorIs(t, err, ErrUnsupportedHost)
		}()
		v.t.Get("bad")
		t.Fatal("expected a panic")
	}()
}

func TestToTableAndSequence(t *testing.T) {
	tbl, err := ToTable(nil)
	require.NoError(t, err)
	assert.Empty(t, tbl.Keys())

	_, err = ToTable(5)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	tbl, err = ToTable(NewMapTable(0).Set("a", Null))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tbl.Keys())

	seq, err := ToSequence([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, seq.Len())
	_, ok := seq.Index(2)
	assert.False(t, ok)

	_, err = ToSequence("ab")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestFromCty(t *testing.T) {
	obj := cty.ObjectVal(map[string]cty.Value{
		"name": cty.StringVal("x"),
		"n":    cty.NumberIntVal(3),
		"half": cty.NumberFloatVal(0.5),
		"ok":   cty.True,
		"list": cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
		"tup":  cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.True}),
		"set":  cty.SetVal([]cty.Value{cty.NumberIntVal(2), cty.NumberIntVal(1)}),
		"m":    cty.MapVal(map[string]cty.Value{"k": cty.StringVal("v")}),
		"nil":  cty.NullVal(cty.String),
		"unk":  cty.UnknownVal(cty.Number),
	})
	v, err := FromCty(obj)
	require.NoError(t, err)
	require.Equal(t, KindTable, v.Kind())
	assert.Equal(t, []string{"half", "list", "m", "n", "name", "nil", "ok", "set", "tup", "unk"}, v.t.Keys())

	want := map[string]any{
		"name": "x",
		"n":    3.0,
		"half": 0.5,
		"ok":   true,
		"list": []any{"a", "b"},
		"tup":  []any{"a", true},
		"set":  []any{1.0, 2.0},
		"m":    map[string]any{"k": "v"},
		"nil":  nil,
		"unk":  nil,
	}
	if diff := cmp.Diff(want, v.Export()); diff != "" {
		t.Errorf("FromCty mismatch (-want +got):\n%s", diff)
	}

	_, ok := v.t.Get("absent")
	assert.False(t, ok)
	m, _ := v.t.Get("m")
	_, ok = m.t.Get("absent")
	assert.False(t, ok)

	// cty values passed to FromGo take the same path
	g, err := FromGo(cty.StringVal("s"))
	require.NoError(t, err)
	assert.Equal(t, "s", g.s)

	marked, err := FromCty(cty.StringVal("secret").Mark("sensitive"))
	require.NoError(t, err)
	assert.Equal(t, "secret", marked.s)

	null, err := FromCty(cty.NullVal(cty.DynamicPseudoType))
	require.NoError(t, err)
	assert.True(t, null.IsNull())

	out := mustRender(t, "#for x in cfg.list\n={x}\n#end\n", map[string]any{"cfg": obj})
	assert.Equal(t, "a\nb\n", out)
}
