package exprtmpl

import (
	"context"
	"fmt"
	"sort"
)

// Engine bundles a loader, a compiler, an engine-local function registry
// and a cache of compiled templates. Use New to create one.
type Engine struct {
	config    *Config
	loader    Loader
	registry  *DefaultFunctionRegistry
	functions FunctionMap
	logger    *Logger
	compiler  *Compiler
	cache     *TemplateCache
}

// Option represents a configuration option for the engine.
type Option func(*Engine)

// New creates an engine reading templates through loader. The engine
// starts from a copy of the global configuration.
func New(loader Loader, opts ...Option) *Engine {
	e := &Engine{
		config:    GetGlobalConfig(),
		loader:    loader,
		registry:  NewBuiltinRegistry(),
		functions: make(FunctionMap),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.config = NewConfigWithDefaults(e.config)

	e.compiler = NewCompiler(loader,
		WithRegistry(e.registry),
		WithFunctions(e.functions),
		WithCompilerLogger(e.logger),
		WithMaxIncludeDepth(e.config.MaxIncludeDepth),
	)
	e.cache = NewTemplateCacheWithConfig(CacheConfig{
		MaxSize: e.config.CacheMaxSize,
		TTL:     e.config.CacheTTL,
		// an evicted template is loaded again on its next use
		OnEvict: func(name string) { e.compiler.Forget(name) },
	})
	return e
}

// WithConfig returns an option that sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(e *Engine) {
		if config == nil {
			e.config = DefaultConfig()
			return
		}
		c := *config
		e.config = &c
	}
}

// WithCache returns an option that sets the cache size (0 disables caching).
func WithCache(maxSize int) Option {
	return func(e *Engine) {
		e.config.CacheMaxSize = maxSize
	}
}

// WithFunction returns an option that makes fn callable as name. It
// shadows a builtin of the same name.
func WithFunction(name string, fn Function) Option {
	return func(e *Engine) {
		e.functions[name] = fn
	}
}

// WithFunctionMap returns an option that adds every function of m.
func WithFunctionMap(m FunctionMap) Option {
	return func(e *Engine) {
		for name, fn := range m {
			e.functions[name] = fn
		}
	}
}

// WithFunctionProvider returns an option that adds the functions of a provider.
func WithFunctionProvider(provider FunctionProvider) Option {
	return func(e *Engine) {
		for name, fn := range provider.ProvideFunctions() {
			e.functions[name] = fn
		}
	}
}

// WithLogger returns an option that sets the engine logger.
func WithLogger(logger *Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Compile returns the compiled template name, from the cache when
// possible.
func (e *Engine) Compile(ctx context.Context, name string) (*Template, error) {
	if tmpl, ok := e.cache.Get(name); ok {
		return tmpl, nil
	}
	tmpl, err := e.compiler.Compile(ctx, name)
	if err != nil {
		return nil, err
	}
	e.cache.Set(name, tmpl)
	return tmpl, nil
}

// Render compiles name if needed and renders it against root.
func (e *Engine) Render(ctx context.Context, name string, root Table) (string, error) {
	tmpl, err := e.Compile(ctx, name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(root)
}

// RenderData is Render with host data converted by ToTable.
func (e *Engine) RenderData(ctx context.Context, name string, data any) (string, error) {
	tmpl, err := e.Compile(ctx, name)
	if err != nil {
		return "", err
	}
	return tmpl.RenderData(data)
}

// RegisterFunction adds fn to the engine registry. Templates already
// compiled keep the functions they were bound to.
func (e *Engine) RegisterFunction(fn Function) error {
	if err := e.registry.RegisterFunction(fn); err != nil {
		return fmt.Errorf("failed to register function %s: %w", fn.Name(), err)
	}
	return nil
}

// RegisterFunctionsFromProvider registers all functions from a provider.
func (e *Engine) RegisterFunctionsFromProvider(provider FunctionProvider) error {
	for name, fn := range provider.ProvideFunctions() {
		if err := e.registry.RegisterFunction(fn); err != nil {
			return fmt.Errorf("failed to register function %s: %w", name, err)
		}
	}
	return nil
}

// Functions lists every callable function name, sorted.
func (e *Engine) Functions() []string {
	seen := make(map[string]bool)
	var names []string
	for _, src := range []FunctionSource{e.functions, e.registry} {
		for _, name := range src.ListFunctions() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() *Config {
	c := *e.config
	return &c
}

// ClearCache drops every compiled template, including imports.
func (e *Engine) ClearCache() {
	e.cache.Clear()
	e.compiler.Reset()
}

// inlineName is the name CompileString compiles its source under.
const inlineName = "inline"

// CompileString compiles a template held in memory. The source may not
// import other templates.
func CompileString(src string, opts ...Option) (*Template, error) {
	opts = append([]Option{WithCache(0)}, opts...)
	return New(StringLoader{Name: inlineName, Source: src}, opts...).Compile(context.Background(), inlineName)
}

// RenderString compiles src and renders it against data.
func RenderString(src string, data any) (string, error) {
	tmpl, err := CompileString(src)
	if err != nil {
		return "", err
	}
	return tmpl.RenderData(data)
}
