package exprtmpl

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderTemplate(t *testing.T, src string, data any) (string, error) {
	t.Helper()
	tmpl, err := CompileString(src)
	if err != nil {
		return "", err
	}
	return tmpl.RenderData(data)
}

func mustRender(t *testing.T, src string, data any) string {
	t.Helper()
	out, err := renderTemplate(t, src, data)
	require.NoError(t, err)
	return out
}

func TestElseIfChain(t *testing.T) {
	src := `#if n == 1
one
#elseif n == 2
two
#elseif n == 3
three
#elseif n == 4
four
#elseif n == 5
five
#else
many
#end
after
`
	want := map[int]string{1: "one", 2: "two", 3: "three", 4: "four", 5: "five", 6: "many"}
	tmpl, err := CompileString(src)
	require.NoError(t, err)

	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			out, err := tmpl.RenderData(map[string]any{"n": n})
			require.NoError(t, err)
			assert.Equal(t, want[n]+"\nafter\n", out)
		})
	}
}

func TestElseIfChainClosedByOneEnd(t *testing.T) {
	// the chain's single end leaves the enclosing loop open
	src := `#for n in ns
#if n == 1
a
#elseif n == 2
b
#elseif n == 3
c
#elseif n == 4
d
#else
e
#end
|
#end
done
`
	out := mustRender(t, src, map[string]any{"ns": []int{4, 1, 9, 3, 2}})
	assert.Equal(t, "d\n|\na\n|\ne\n|\nc\n|\nb\n|\ndone\n", out)

	_, err := CompileString("#if true\na\n#elseif false\nb\n#elseif false\nc\n#elseif false\nd\n#else\ne\n#end\n#end\n")
	assert.ErrorIs(t, err, ErrUnbalancedBlock)
}

func TestElseIfWithoutElse(t *testing.T) {
	src := "#if a\nA\n#elseif b\nB\n#end\n."
	tests := []struct {
		a, b bool
		want string
	}{
		{true, true, "A\n."},
		{false, true, "B\n."},
		{false, false, "."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mustRender(t, src, map[string]any{"a": tt.a, "b": tt.b}))
	}
}

func TestForLoops(t *testing.T) {
	tests := []struct {
		name string
		src  string
		data any
		want string
	}{
		{
			name: "table keys in insertion order",
			src:  "#for k in {b: 1, a: 2}\n={k}\n#end\n",
			want: "b\na\n",
		},
		{
			name: "table key and value",
			src:  "#for k, v in {b: 1, a: 2}\n={k}: ={v}\n#end\n",
			want: "b: 1\na: 2\n",
		},
		{
			name: "sequence elements",
			src:  "#for x in items\n- ={x}\n#end\n",
			data: map[string]any{"items": []string{"a", "b"}},
			want: "- a\n- b\n",
		},
		{
			name: "sequence index and element",
			src:  "#for i, x in items\n={i}: ={x}\n#end\n",
			data: map[string]any{"items": []string{"a", "b"}},
			want: "0: a\n1: b\n",
		},
		{
			name: "empty sequence",
			src:  "before\n#for x in []\n={x}\n#end\nafter\n",
			want: "before\nafter\n",
		},
		{
			name: "host map keys sorted",
			src:  "#for k, v in m\n={k}=v\n#end\n",
			data: map[string]any{"m": map[string]int{"z": 1, "a": 2}},
			want: "a=v\nz=v\n",
		},
		{
			name: "nested loops shadow",
			src:  "#for x in [1, 2]\n#for x in [\"a\"]\n={x}\n#end\n={x}\n#end\n={x}\n",
			data: map[string]any{"x": "root"},
			want: "a\n1\na\n2\nroot\n",
		},
		{
			name: "loop reads the enclosing scope",
			src:  "#for x in [1, 2]\n={prefix}={x}\n#end\n",
			data: map[string]any{"prefix": "#"},
			want: "#1\n#2\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustRender(t, tt.src, tt.data))
		})
	}
}

func TestForErrors(t *testing.T) {
	_, err := renderTemplate(t, "#for x in missing\n#end\n", nil)
	assert.ErrorIs(t, err, ErrNullOperand)

	_, err = renderTemplate(t, "#for x in 5\n#end\n", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = renderTemplate(t, "#for x in \"abc\"\n#end\n", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestRangeLoops(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"#for i = 1, 5\n={i}\n#end\n", "1\n2\n3\n4\n5\n"},
		{"#for i = 5, 1\n={i}\n#end\n", "5\n4\n3\n2\n1\n"},
		{"#for i = 10, 1, -3\n={i}\n#end\n", "10\n7\n4\n1\n"},
		{"#for i = 1, 2, 0.5\n={i} \n#end\n", "1 \n1.5 \n2 \n"},
		{"#for i = 1, 0, 1\n={i}\n#end\n", ""},
		{"#for i = 3, 3\n={i}\n#end\n", "3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, mustRender(t, tt.src, nil))
		})
	}

	// accumulated error stays within tolerance of the end bound
	out := mustRender(t, "#for i = 0, 0.3, 0.1\n.\n#end\n", nil)
	assert.Equal(t, 4, strings.Count(out, "."))

	_, err := renderTemplate(t, "#for i = 0, 1, 0\nx\n#end\n", nil)
	assert.ErrorIs(t, err, ErrDivideByZero)

	_, err = renderTemplate(t, "#for i = 0, \"3\"\n#end\n", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUnbalancedBlocks(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"stray end", "text\n#end\n"},
		{"unclosed if", "#if true\nx\n"},
		{"unclosed elseif chain", "#if true\nx\n#elseif false\ny\n"},
		{"stray else", "#else\n"},
		{"else in for", "#for x in [1]\n#else\n#end\n"},
		{"elseif after else", "#if true\n#else\n#elseif false\n#end\n"},
		{"double else", "#if true\n#else\n#else\n#end\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnbalancedBlock)
			assert.True(t, IsCompileError(err))
		})
	}
}

func TestConditionMustBeBoolean(t *testing.T) {
	_, err := renderTemplate(t, "#if 1\nx\n#end\n", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = renderTemplate(t, "#if missing\nx\n#end\n", nil)
	assert.ErrorIs(t, err, ErrNullOperand)

	_, err = renderTemplate(t, "={not 0}", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = renderTemplate(t, "={true and 1}", nil)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestExpressions(t *testing.T) {
	data := map[string]any{
		"user":  map[string]any{"name": "Ada", "tags": []string{"x", "y", "z"}},
		"price": 9.5,
		"qty":   2,
	}
	tests := []struct {
		src  string
		want string
	}{
		{"={2 + 3 * 4 ^ 2}", "50"},
		{"={(2 + 3) * 4}", "20"},
		{"={7 % 3}", "1"},
		{"={-price}", "-9.5"},
		{"={price * qty}", "19"},
		{"={user.name .. \"!\"}", "Ada!"},
		{"={user[\"name\"]}", "Ada"},
		{"={user.tags[0]}={user.tags[-1]}", "xz"},
		{"={user.tags.length}", "3"},
		{"={user.name[1:2]}", "Ad"},
		{"={user.name[-1]}", "a"},
		{"={1 < 2 and \"a\" < \"b\"}", "true"},
		{"={not (1 == 1)}", "false"},
		{"={false and missing.x}", "false"},
		{"={true or missing.x}", "true"},
		{"={missing == null}", "true"},
		{"={1 == \"1\"}", "false"},
		{"={array.length([1, 2, 3])}", "3"},
		{"={type({a: 1})}", "table"},
		{"={type(user.tags)}", "array"},
		{"={string.upper(user.name)}", "ADA"},
		{`={"a\tb\u0041"}`, "a\tbA"},
		{`={'it\'s'}`, "it's"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, mustRender(t, tt.src, data))
		})
	}
}

func TestExpressionErrors(t *testing.T) {
	tests := []struct {
		src  string
		want error
	}{
		{"={missing}", ErrNullOperand},
		{"={{a: 1}}", ErrTypeMismatch},
		{"={1 + \"a\"}", ErrTypeMismatch},
		{"={missing + 1}", ErrNullOperand},
		{"={1 < null}", ErrNullOperand},
		{"={\"abc\"[3]}", ErrIndexOutOfDomain},
		{"={\"abc\"[1:9]}", ErrIndexOutOfDomain},
		{"={[1][0.5]}", ErrTypeMismatch},
		{"={missing.x}", ErrNullOperand},
		{"={(5).x}", ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := renderTemplate(t, tt.src, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsRenderError(err))
		})
	}
}

func TestUnknownEscape(t *testing.T) {
	_, err := CompileString(`={"\q"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyntax)

	_, err = CompileString(`={"\u12"}`)
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestRenderErrorLocation(t *testing.T) {
	_, err := renderTemplate(t, "line one\nvalue: ={1 + \"a\"}\n", nil)
	var re *RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 2, re.Line)
	assert.Equal(t, inlineName, re.File)
	assert.Contains(t, err.Error(), "at line 2")
}

func TestRenderIsAllOrNothing(t *testing.T) {
	tmpl, err := CompileString("first\n#for x in items\n={x}\n#end\n")
	require.NoError(t, err)

	var buf bytes.Buffer
	root, err := ToTable(map[string]any{"items": []any{"ok", nil}})
	require.NoError(t, err)
	err = tmpl.Execute(&buf, root)
	assert.ErrorIs(t, err, ErrNullOperand)
	assert.Empty(t, buf.String())

	out, err := tmpl.Render(root)
	assert.Error(t, err)
	assert.Empty(t, out)
}

func TestRenderDoesNotMutateRoot(t *testing.T) {
	root := NewMapTable(0).Set("x", StringValue("root"))
	tmpl, err := CompileString("#for x in [1]\n={x}\n#end\n#for x = 1, 2\n#end\n={x}")
	require.NoError(t, err)

	out, err := tmpl.Render(root)
	require.NoError(t, err)
	assert.Equal(t, "1\nroot", out)
	assert.Equal(t, []string{"x"}, root.Keys())
	v, _ := root.Get("x")
	assert.Equal(t, "root", v.s)
}

func TestFramesReturnedOnError(t *testing.T) {
	tmpl, err := CompileString("#for x in [1, 2]\n#for i = 1, 3\n={x.y}\n#end\n#end\n")
	require.NoError(t, err)

	st := &renderState{}
	err = tmpl.body(st, emptyTable{})
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, 0, st.frames.live)
	assert.Len(t, st.frames.free, 2)
}

func TestRenderNilRoot(t *testing.T) {
	tmpl, err := CompileString("={type(x)}")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", out)
	assert.Equal(t, inlineName, tmpl.Name())

	render := tmpl.Func()
	out, err = render(NewMapTable(0).Set("x", NumberValue(1)))
	require.NoError(t, err)
	assert.Equal(t, "number", out)
}

func TestLineEndings(t *testing.T) {
	out := mustRender(t, "#if true\r\na\r\n#end\r\nb", nil)
	assert.Equal(t, "a\r\nb", out)

	out = mustRender(t, "  #if true\nindented control\n\t#end\n", nil)
	assert.Equal(t, "indented control\n", out)
}
