package exprtmpl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benjaminschreck/go-exprtmpl/pkg/exprtmpl/parse"
)

// Compiler turns named templates into Templates. It loads every path at
// most once and shares compiled includes between the templates it
// builds. A Compiler is safe for concurrent use; compilations run one at
// a time.
type Compiler struct {
	loader    Loader
	overrides []FunctionSource
	registry  FunctionSource
	logger    *Logger
	maxDepth  int

	mu    sync.Mutex
	units map[string]*unit
}

// unit is one compiled source file. body is nil while the file is being
// compiled, which is how an import cycle is recognized.
type unit struct {
	name string
	body execFunc
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithFunctions adds function tables consulted, in order, before the
// registry. They can shadow builtins.
func WithFunctions(sources ...FunctionSource) CompilerOption {
	return func(c *Compiler) {
		c.overrides = append(c.overrides, sources...)
	}
}

// WithRegistry replaces the global builtin registry.
func WithRegistry(registry FunctionSource) CompilerOption {
	return func(c *Compiler) {
		c.registry = registry
	}
}

// WithCompilerLogger sets the logger used when the context passed to
// Compile carries none.
func WithCompilerLogger(logger *Logger) CompilerOption {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// WithMaxIncludeDepth limits how deeply imports may nest.
func WithMaxIncludeDepth(depth int) CompilerOption {
	return func(c *Compiler) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// NewCompiler creates a compiler reading sources through loader.
func NewCompiler(loader Loader, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		loader:   loader,
		registry: GetDefaultFunctionRegistry(),
		maxDepth: GetGlobalConfig().MaxIncludeDepth,
		units:    make(map[string]*unit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile returns the template named name, compiling it and everything
// it imports on first use.
func (c *Compiler) Compile(ctx context.Context, name string) (*Template, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := LoggerFromContext(ctx, c.logger).WithField("template", name)
	start := time.Now()
	body, err := c.compileUnit(ctx, logger, name, nil)
	if err != nil {
		logger.Debug("compile failed: %v", err)
		return nil, err
	}
	logger.Debug("compiled in %s", time.Since(start))
	return &Template{name: name, body: body}, nil
}

// Forget drops compiled units so the next Compile loads them again.
func (c *Compiler) Forget(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		delete(c.units, name)
	}
}

// Reset drops every compiled unit.
func (c *Compiler) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units = make(map[string]*unit)
}

// compileUnit compiles name, which chain imports. Failed units are not
// kept.
func (c *Compiler) compileUnit(ctx context.Context, logger *Logger, name string, chain []string) (execFunc, error) {
	if u, ok := c.units[name]; ok {
		if u.body == nil {
			cycle := append(append([]string(nil), chain...), name)
			return nil, &CompileError{
				Kind:    ErrCircularInclude,
				Message: "import cycle " + strings.Join(cycle, " -> "),
			}
		}
		return u.body, nil
	}
	if len(chain) >= c.maxDepth {
		return nil, &CompileError{
			Kind:    ErrLoad,
			Message: fmt.Sprintf("imports nested deeper than %d at %q", c.maxDepth, name),
		}
	}

	src, err := c.loader.Load(ctx, name)
	if err != nil {
		return nil, &CompileError{Kind: ErrLoad, Message: fmt.Sprintf("cannot load %q", name), Cause: err}
	}
	logger.DebugTemplate(name, src)

	events, err := parse.Template(name, src)
	if err != nil {
		return nil, syntaxError(name, err)
	}

	u := &unit{name: name}
	c.units[name] = u
	body, err := c.assemble(ctx, logger, name, src, events, append(chain, name))
	if err != nil {
		delete(c.units, name)
		return nil, err
	}
	u.body = body
	return body, nil
}

func (c *Compiler) assemble(ctx context.Context, logger *Logger, name, src string, events []parse.Event, chain []string) (execFunc, error) {
	exprs := &exprCompiler{
		file:      name,
		src:       src,
		overrides: c.overrides,
		registry:  c.registry,
	}
	asm := newAssembler(exprs, func(path string, offset int) (execFunc, error) {
		logger.Debug("importing %q", path)
		body, err := c.compileUnit(ctx, logger, path, chain)
		if err != nil {
			var ce *CompileError
			if errors.As(err, &ce) && ce.File == "" {
				// report load and cycle failures at the import line
				l := exprs.at(offset)
				ce.File, ce.Offset, ce.Line, ce.Column = l.file, l.offset, l.line, l.column
			}
			return nil, err
		}
		return body, nil
	})
	for _, ev := range events {
		if err := asm.event(ev); err != nil {
			return nil, err
		}
	}
	return asm.finish()
}

func syntaxError(name string, err error) error {
	var pe *parse.Error
	if errors.As(err, &pe) {
		return &CompileError{
			Kind:    ErrSyntax,
			File:    name,
			Offset:  pe.Offset,
			Line:    pe.Line,
			Column:  pe.Column,
			Message: pe.Message,
		}
	}
	return &CompileError{Kind: ErrSyntax, File: name, Message: "cannot parse template", Cause: err}
}
