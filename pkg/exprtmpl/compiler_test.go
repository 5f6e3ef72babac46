package exprtmpl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// countingLoader records how often each path is loaded.
type countingLoader struct {
	mu    sync.Mutex
	src   MapLoader
	calls map[string]int
}

func newCountingLoader(src MapLoader) *countingLoader {
	return &countingLoader{src: src, calls: make(map[string]int)}
}

func (l *countingLoader) Load(ctx context.Context, name string) (string, error) {
	l.mu.Lock()
	l.calls[name]++
	l.mu.Unlock()
	return l.src.Load(ctx, name)
}

func compileMap(t *testing.T, src MapLoader, name string, opts ...CompilerOption) (*Template, error) {
	t.Helper()
	return NewCompiler(src, opts...).Compile(context.Background(), name)
}

func TestMissingFunction(t *testing.T) {
	_, err := CompileString("={strng.upper(name)}")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingFunction)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Message, "string.upper")
	assert.Equal(t, 1, ce.Line)

	// functions are bound at compile time, even in branches never taken
	_, err = CompileString("#if false\n={nope()}\n#end\n")
	assert.ErrorIs(t, err, ErrMissingFunction)
}

func TestCircularInclude(t *testing.T) {
	tests := []struct {
		name string
		src  MapLoader
	}{
		{"self", MapLoader{"a": "x\n#import a\n"}},
		{"pair", MapLoader{"a": "#import b\n", "b": "#import a\n"}},
		{"via third", MapLoader{"a": "#import b\n", "b": "#import c\n", "c": "#import \"a\"\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileMap(t, tt.src, "a")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCircularInclude)

			var ce *CompileError
			require.True(t, errors.As(err, &ce))
			assert.NotZero(t, ce.Line)
			assert.Contains(t, ce.Message, "a -> ")
		})
	}
}

func TestLoaderCalledOncePerPath(t *testing.T) {
	loader := newCountingLoader(MapLoader{
		"main":   "#import part\n#import part\n#import other\n",
		"other":  "#import part\n",
		"part":   "p",
		"second": "#import part\n",
	})
	c := NewCompiler(loader)
	ctx := context.Background()

	tmpl, err := c.Compile(ctx, "main")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "p\np\np\n\n", out)

	_, err = c.Compile(ctx, "main")
	require.NoError(t, err)
	_, err = c.Compile(ctx, "second")
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"main": 1, "other": 1, "part": 1, "second": 1}, loader.calls)

	c.Forget("part")
	_, err = c.Compile(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls["part"], "main still holds the compiled unit")

	c.Reset()
	_, err = c.Compile(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls["part"])
}

func TestMissingInclude(t *testing.T) {
	_, err := compileMap(t, MapLoader{"main": "ok\n#import gone\n"}, "main")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "main", ce.File)
	assert.Equal(t, 2, ce.Line)

	_, err = compileMap(t, MapLoader{}, "main")
	assert.ErrorIs(t, err, ErrLoad)
}

func TestFailedUnitIsRetried(t *testing.T) {
	var mu sync.Mutex
	broken := true
	loader := LoaderFunc(func(_ context.Context, name string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if name == "part" && broken {
			return "={", nil
		}
		if name == "part" {
			return "fixed", nil
		}
		return "#import part\n", nil
	})
	c := NewCompiler(loader)

	_, err := c.Compile(context.Background(), "main")
	require.ErrorIs(t, err, ErrSyntax)

	mu.Lock()
	broken = false
	mu.Unlock()

	tmpl, err := c.Compile(context.Background(), "main")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed\n", out)
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := CompileString("first line\nsecond ={1 +}\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyntax)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Line)
	assert.Equal(t, inlineName, ce.File)

	_, err = CompileString("#unknown directive\n")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestFunctionOverrides(t *testing.T) {
	shadow := FunctionMap{
		"string.upper": NewSimpleFunction("string.upper", 1, 1, func(args ...Value) (Value, error) {
			return StringValue("shadowed"), nil
		}),
		"greet": NewSimpleFunction("greet", 1, 1, func(args ...Value) (Value, error) {
			s, err := args[0].AsString()
			if err != nil {
				return Null, err
			}
			return StringValue("hi " + s), nil
		}),
	}
	tmpl, err := compileMap(t, MapLoader{"t": "={string.upper(\"x\")} ={greet(\"bo\")} ={string.lower(\"Y\")}"}, "t", WithFunctions(shadow))
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "shadowed hi bo y", out)

	// a registry without builtins only knows what it is given
	_, err = compileMap(t, MapLoader{"t": "={string.lower(\"Y\")}"}, "t", WithRegistry(NewFunctionRegistry()))
	assert.ErrorIs(t, err, ErrMissingFunction)
}

func TestCustomFunctionErrors(t *testing.T) {
	funcs := FunctionMap{
		"fail": NewSimpleFunction("fail", 0, 0, func(args ...Value) (Value, error) {
			return Null, errors.New("boom")
		}),
		"typed": NewSimpleFunction("typed", 0, 0, func(args ...Value) (Value, error) {
			return Null, NewRenderError(ErrIndexOutOfDomain, "too far")
		}),
	}

	tmpl, err := compileMap(t, MapLoader{"t": "line\n={fail()}"}, "t", WithFunctions(funcs))
	require.NoError(t, err)
	_, err = tmpl.Render(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var re *RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "fail", re.Function)
	assert.Equal(t, 2, re.Line)
	assert.EqualError(t, re.Cause, "boom")

	tmpl, err = compileMap(t, MapLoader{"t": "={typed()}"}, "t", WithFunctions(funcs))
	require.NoError(t, err)
	_, err = tmpl.Render(nil)
	assert.ErrorIs(t, err, ErrIndexOutOfDomain)
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "typed", re.Function)

	_, err = CompileString("={string.upper()}")
	require.NoError(t, err, "arity is checked when the call runs")
	_, err = RenderString("={string.upper()}", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMaxIncludeDepth(t *testing.T) {
	src := MapLoader{
		"a": "#import b\n",
		"b": "#import c\n",
		"c": "#import d\n",
		"d": "leaf",
	}
	_, err := compileMap(t, src, "a", WithMaxIncludeDepth(3))
	require.ErrorIs(t, err, ErrLoad)
	assert.Contains(t, err.Error(), "deeper than 3")

	tmpl, err := compileMap(t, src, "a", WithMaxIncludeDepth(4))
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "leaf\n\n\n", out)
}

func TestIncludeScoping(t *testing.T) {
	src := MapLoader{
		"loop":   "#for i in [1, 2]\n#import part\n#end\n",
		"part":   "={i}",
		"params": "#import \"withparams\" with {a: 1}\n",
		// parameters replace the caller's scope entirely
		"withparams": "={a}/={type(b)}",
		"nested":     "#import inner with {n: 2}\n",
		"inner":      "#for i = 1, n\n={i}\n#end\n",
		"badparams":  "#import part with [1]\n",
	}
	root := NewMapTable(0).Set("b", NumberValue(2))
	tests := []struct {
		name string
		want string
	}{
		{"loop", "1\n2\n"},
		{"params", "1/null\n"},
		{"nested", "1\n2\n\n"},
	}
	c := NewCompiler(src)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := c.Compile(context.Background(), tt.name)
			require.NoError(t, err)
			out, err := tmpl.Render(root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	tmpl, err := c.Compile(context.Background(), "badparams")
	require.NoError(t, err)
	_, err = tmpl.Render(root)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestFSLoader(t *testing.T) {
	fsys := fstest.MapFS{
		"pages/index.txt":  {Data: []byte("#import partials/head.txt\nbody\n")},
		"partials/head.txt": {Data: []byte("head")},
	}
	c := NewCompiler(NewFSLoader(fsys))
	tmpl, err := c.Compile(context.Background(), "/pages/index.txt")
	require.NoError(t, err)
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "head\nbody\n", out)

	_, err = c.Compile(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, fs.ErrInvalid)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewCompiler(NewFSLoader(fsys)).Compile(ctx, "pages/index.txt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdapterPanicSurfacesAsError(t *testing.T) {
	tmpl, err := CompileString("={type(ok)} ={type(bad)}")
	require.NoError(t, err)
	out, err := tmpl.RenderData(map[string]any{"ok": 1, "bad": make(chan int)})
	assert.Empty(t, out)
	require.ErrorIs(t, err, ErrUnsupportedHost)
	assert.Contains(t, err.Error(), "key bad")

	// a state abandoned by a recovered render is not reused
	out, err = tmpl.RenderData(map[string]any{"ok": 1, "bad": 2})
	require.NoError(t, err)
	assert.Equal(t, "number number", out)
}

func TestFunctionPanicIsNotRecovered(t *testing.T) {
	crash := NewSimpleFunction("crash", 0, 0, func(args ...Value) (Value, error) {
		var counts map[string]int
		counts["x"]++
		return Null, nil
	})
	tmpl, err := CompileString("={crash()}", WithFunction("crash", crash))
	require.NoError(t, err)
	assert.Panics(t, func() { _, _ = tmpl.Render(nil) })

	assert.NoError(t, RecoverError(nil))
	assert.PanicsWithValue(t, "unrelated", func() { _ = RecoverError("unrelated") })
}

// sharedErrorFunction returns the same error value from every call.
type sharedErrorFunction struct {
	name string
	err  *RenderError
}

func (f sharedErrorFunction) Call(args ...Value) (Value, error) { return Null, f.err }
func (f sharedErrorFunction) Name() string                      { return f.name }
func (f sharedErrorFunction) MinArgs() int                      { return 0 }
func (f sharedErrorFunction) MaxArgs() int                      { return 0 }

func TestSharedFunctionErrorIsNotModified(t *testing.T) {
	shared := &RenderError{Kind: ErrIndexOutOfDomain, Message: "too far"}
	funcs := FunctionMap{
		"simple": NewSimpleFunction("simple", 0, 0, func(args ...Value) (Value, error) {
			return Null, shared
		}),
		"custom": sharedErrorFunction{name: "custom", err: shared},
	}
	c := NewCompiler(MapLoader{
		"a": "line\n={simple()}",
		"b": "line\nline\n={custom()}",
	}, WithFunctions(funcs))

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		name, fn, line := "a", "simple", 2
		if i%2 == 1 {
			name, fn, line = "b", "custom", 3
		}
		g.Go(func() error {
			tmpl, err := c.Compile(context.Background(), name)
			if err != nil {
				return err
			}
			_, err = tmpl.Render(nil)
			var re *RenderError
			if !errors.As(err, &re) {
				return fmt.Errorf("%s: expected a render error, got %v", name, err)
			}
			if re == shared || re.Function != fn || re.Line != line || re.File != name {
				return fmt.Errorf("%s: unexpected error %+v", name, re)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Empty(t, shared.Function)
	assert.Empty(t, shared.File)
	assert.Zero(t, shared.Line)
	assert.ErrorIs(t, shared, ErrIndexOutOfDomain)
}

func TestConcurrentRenders(t *testing.T) {
	src := MapLoader{
		"page": "#for i = 1, n\n#import row with {i: i, label: label}\n#end\n",
		"row":  "={label}-={i}",
	}
	c := NewCompiler(src)

	var g errgroup.Group
	results := make([]string, 32)
	for w := range results {
		g.Go(func() error {
			tmpl, err := c.Compile(context.Background(), "page")
			if err != nil {
				return err
			}
			out, err := tmpl.RenderData(map[string]any{"n": 3, "label": fmt.Sprint("w", w)})
			if err != nil {
				return err
			}
			results[w] = out
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for w, out := range results {
		label := fmt.Sprint("w", w)
		assert.Equal(t, fmt.Sprintf("%[1]s-1\n%[1]s-2\n%[1]s-3\n", label), out)
	}
}
