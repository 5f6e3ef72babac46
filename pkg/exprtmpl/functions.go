package exprtmpl

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Function represents a callable function in templates
type Function interface {
	// Call executes the function with the given arguments
	Call(args ...Value) (Value, error)

	// Name returns the function name, including its namespace
	Name() string

	// MinArgs returns the minimum number of arguments required
	MinArgs() int

	// MaxArgs returns the maximum number of arguments allowed (-1 for unlimited)
	MaxArgs() int
}

// FunctionSource resolves function names. Registries and FunctionMaps
// both implement it.
type FunctionSource interface {
	GetFunction(name string) (Function, bool)
	ListFunctions() []string
}

// FunctionRegistry manages available functions
type FunctionRegistry interface {
	FunctionSource

	// RegisterFunction adds a function to the registry
	RegisterFunction(fn Function) error
}

// FunctionProvider supplies a set of related functions.
type FunctionProvider interface {
	ProvideFunctions() map[string]Function
}

// FunctionMap is a fixed table of functions keyed by name. Compilers
// consult FunctionMaps before the registry, so a map can shadow a builtin.
type FunctionMap map[string]Function

func (m FunctionMap) GetFunction(name string) (Function, bool) {
	fn, ok := m[name]
	return fn, ok
}

func (m FunctionMap) ListFunctions() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultFunctionRegistry is the default implementation of FunctionRegistry
type DefaultFunctionRegistry struct {
	functions map[string]Function
	mutex     sync.RWMutex
}

// NewFunctionRegistry creates a new, empty function registry
func NewFunctionRegistry() *DefaultFunctionRegistry {
	return &DefaultFunctionRegistry{
		functions: make(map[string]Function),
	}
}

func (r *DefaultFunctionRegistry) RegisterFunction(fn Function) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := fn.Name()
	if name == "" {
		return fmt.Errorf("function name cannot be empty")
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return fmt.Errorf("invalid function name %q", name)
		}
	}

	r.functions[name] = fn
	return nil
}

func (r *DefaultFunctionRegistry) GetFunction(name string) (Function, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	fn, exists := r.functions[name]
	return fn, exists
}

func (r *DefaultFunctionRegistry) ListFunctions() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	globalRegistry *DefaultFunctionRegistry
	registryOnce   sync.Once
)

// GetDefaultFunctionRegistry returns the global registry holding the
// builtin namespaces.
func GetDefaultFunctionRegistry() FunctionRegistry {
	registryOnce.Do(func() {
		globalRegistry = NewFunctionRegistry()
		registerBuiltins(globalRegistry)
	})
	return globalRegistry
}

// NewBuiltinRegistry returns a fresh registry preloaded with the builtins.
// Functions registered on it do not leak into the global registry.
func NewBuiltinRegistry() *DefaultFunctionRegistry {
	r := NewFunctionRegistry()
	registerBuiltins(r)
	return r
}

func registerBuiltins(r *DefaultFunctionRegistry) {
	registerBaseFunctions(r)
	registerArrayFunctions(r)
	registerStringFunctions(r)
	registerMathFunctions(r)
	registerDateFunctions(r)
	registerRegexFunctions(r)
}

// SimpleFunction adapts a plain handler to the Function interface and
// enforces its arity.
type SimpleFunction struct {
	name    string
	minArgs int
	maxArgs int
	handler func(args ...Value) (Value, error)
}

// NewSimpleFunction creates a function with an arity range. maxArgs of -1
// means unlimited.
func NewSimpleFunction(name string, minArgs, maxArgs int, handler func(args ...Value) (Value, error)) Function {
	return &SimpleFunction{
		name:    name,
		minArgs: minArgs,
		maxArgs: maxArgs,
		handler: handler,
	}
}

func (f *SimpleFunction) Call(args ...Value) (Value, error) {
	argCount := len(args)
	if argCount < f.minArgs || (f.maxArgs >= 0 && argCount > f.maxArgs) {
		return Null, &RenderError{
			Kind:     ErrInvalidArgument,
			Function: f.name,
			Message:  fmt.Sprintf("expects %s, got %d", arityText(f.minArgs, f.maxArgs), argCount),
		}
	}

	v, err := f.handler(args...)
	if err != nil {
		if re, ok := err.(*RenderError); ok && re.Function == "" {
			named := re.clone()
			named.Function = f.name
			return Null, named
		}
		return Null, err
	}
	return v, nil
}

func (f *SimpleFunction) Name() string { return f.name }

func (f *SimpleFunction) MinArgs() int { return f.minArgs }

func (f *SimpleFunction) MaxArgs() int { return f.maxArgs }

func arityText(min, max int) string {
	switch {
	case min == max && min == 1:
		return "1 argument"
	case min == max:
		return fmt.Sprintf("%d arguments", min)
	case max < 0:
		return fmt.Sprintf("at least %d arguments", min)
	}
	return fmt.Sprintf("%d to %d arguments", min, max)
}

// resolveFunction looks name up in the override sources, then in the
// registry. A miss is a MissingFunction error with close matches.
func resolveFunction(name string, overrides []FunctionSource, registry FunctionSource) (Function, error) {
	for _, src := range overrides {
		if fn, ok := src.GetFunction(name); ok {
			return fn, nil
		}
	}
	if registry != nil {
		if fn, ok := registry.GetFunction(name); ok {
			return fn, nil
		}
	}

	var known []string
	for _, src := range overrides {
		known = append(known, src.ListFunctions()...)
	}
	if registry != nil {
		known = append(known, registry.ListFunctions()...)
	}
	msg := fmt.Sprintf("unknown function %q", name)
	if s := suggest(name, known); len(s) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(s, ", "))
	}
	return nil, &CompileError{Kind: ErrMissingFunction, Message: msg}
}

// suggest returns up to three known names closest to name.
func suggest(name string, known []string) []string {
	ranks := fuzzy.RankFindFold(name, known)
	if len(ranks) == 0 {
		// try the last path element, so "strng.upper" still finds "string.upper"
		if i := strings.LastIndexByte(name, '.'); i >= 0 {
			ranks = fuzzy.RankFindFold(name[i+1:], known)
		}
	}
	sort.Sort(ranks)
	var out []string
	seen := map[string]bool{}
	for _, r := range ranks {
		if seen[r.Target] {
			continue
		}
		seen[r.Target] = true
		out = append(out, r.Target)
		if len(out) == 3 {
			break
		}
	}
	return out
}
