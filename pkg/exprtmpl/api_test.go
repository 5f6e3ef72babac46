package exprtmpl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shoutProvider struct{}

func (shoutProvider) ProvideFunctions() map[string]Function {
	return map[string]Function{
		"shout": NewSimpleFunction("shout", 1, 1, func(args ...Value) (Value, error) {
			s, err := args[0].AsString()
			if err != nil {
				return Null, err
			}
			return StringValue(strings.ToUpper(s) + "!"), nil
		}),
	}
}

func TestEngineRender(t *testing.T) {
	engine := New(MapLoader{
		"page":   "#import header with {title: title}\n#for item in items\n- ={item.name}: ={math.format(item.price, \"F2\")}\n#end\n",
		"header": "Menu: ={string.upper(title)}",
	})

	out, err := engine.RenderData(context.Background(), "page", map[string]any{
		"title": "menu",
		"items": []map[string]any{
			{"name": "tea", "price": 2.5},
			{"name": "cake", "price": 4},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Menu: MENU\n- tea: 2.50\n- cake: 4.00\n", out)

	root := NewMapTable(0).Set("title", StringValue("x")).Set("items", SequenceValue(NewListSequence()))
	out, err = engine.Render(context.Background(), "page", root)
	require.NoError(t, err)
	assert.Equal(t, "Menu: X\n", out)

	_, err = engine.Render(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrLoad)
}

func TestEngineCache(t *testing.T) {
	loader := newCountingLoader(MapLoader{"a": "A", "b": "B"})
	engine := New(loader)
	ctx := context.Background()

	first, err := engine.Compile(ctx, "a")
	require.NoError(t, err)
	second, err := engine.Compile(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, first, second)

	engine.ClearCache()
	third, err := engine.Compile(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, loader.calls["a"])

	uncached := New(MapLoader{"a": "A"}, WithCache(0))
	x, err := uncached.Compile(ctx, "a")
	require.NoError(t, err)
	y, err := uncached.Compile(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, x, y)
}

func TestEngineEvictionReloads(t *testing.T) {
	loader := newCountingLoader(MapLoader{"a": "A", "b": "B"})
	engine := New(loader, WithCache(1))
	ctx := context.Background()

	for _, name := range []string{"a", "b", "a"} {
		_, err := engine.Compile(ctx, name)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, loader.calls["a"])
	assert.Equal(t, 1, loader.calls["b"])
}

func TestEngineFunctions(t *testing.T) {
	greet := NewSimpleFunction("greet", 1, 1, func(args ...Value) (Value, error) {
		s, err := args[0].AsString()
		if err != nil {
			return Null, err
		}
		return StringValue("hello " + s), nil
	})
	upper := NewSimpleFunction("string.upper", 1, 1, func(args ...Value) (Value, error) {
		return StringValue("UP"), nil
	})
	engine := New(MapLoader{
		"t": "={greet(\"a\")} ={string.upper(\"b\")} ={shout(\"c\")} ={twice(2)}",
	},
		WithFunction("greet", greet),
		WithFunctionMap(FunctionMap{"string.upper": upper}),
		WithFunctionProvider(shoutProvider{}),
	)

	require.NoError(t, engine.RegisterFunction(NewSimpleFunction("twice", 1, 1, func(args ...Value) (Value, error) {
		n, err := args[0].AsNumber()
		if err != nil {
			return Null, err
		}
		return NumberValue(2 * n), nil
	})))
	assert.Error(t, engine.RegisterFunction(NewSimpleFunction("bad..name", 0, 0, nil)))
	require.NoError(t, engine.RegisterFunctionsFromProvider(shoutProvider{}))

	out, err := engine.Render(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello a UP C! 4", out)

	names := engine.Functions()
	assert.Contains(t, names, "greet")
	assert.Contains(t, names, "twice")
	assert.Contains(t, names, "regex.match")
	assert.IsIncreasing(t, names)

	// engine registrations stay local
	_, ok := GetDefaultFunctionRegistry().GetFunction("twice")
	assert.False(t, ok)
}

func TestEngineConfig(t *testing.T) {
	engine := New(MapLoader{}, WithConfig(&Config{CacheMaxSize: 5}))
	config := engine.Config()
	assert.Equal(t, 5, config.CacheMaxSize)
	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, 32, config.MaxIncludeDepth)

	config.CacheMaxSize = 99
	assert.Equal(t, 5, engine.Config().CacheMaxSize)

	engine = New(MapLoader{}, WithConfig(nil), WithCache(3))
	assert.Equal(t, 3, engine.Config().CacheMaxSize)
}

func TestEngineLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogDebug)
	engine := New(MapLoader{"t": "x"}, WithLogger(logger))

	_, err := engine.Compile(context.Background(), "t")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "template=t")
	assert.Contains(t, buf.String(), "compiled in")

	var ctxBuf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), NewLogger(&ctxBuf, LogDebug))
	engine.ClearCache()
	_, err = engine.Compile(ctx, "t")
	require.NoError(t, err)
	assert.Contains(t, ctxBuf.String(), "template=t")
}

func TestRenderString(t *testing.T) {
	out, err := RenderString("Hello ={name}!", map[string]any{"name": "World"})
	require.NoError(t, err)
	assert.Equal(t, "Hello World!", out)

	_, err = RenderString("={x}", 5)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = CompileString("#import other\n")
	assert.ErrorIs(t, err, ErrLoad)

	tmpl, err := CompileString("={shout(\"hey\")}", WithFunctionProvider(shoutProvider{}))
	require.NoError(t, err)
	out, err = tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "HEY!", out)
}
