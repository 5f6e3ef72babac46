// Package exprtmpl is a line-oriented text template engine with a small
// expression language.
//
// Templates are compiled once into a tree of closures and can then be
// rendered any number of times, from any number of goroutines, against
// different data.
//
// # Quick Start
//
//	out, err := exprtmpl.RenderString("Hello ={name}!", map[string]any{
//	    "name": "World",
//	})
//
// For templates on disk, use an Engine:
//
//	engine := exprtmpl.New(exprtmpl.NewFSLoader(os.DirFS("templates")))
//	out, err := engine.RenderData(ctx, "invoice.txt", data)
//
// # Template Syntax
//
// A line whose first non-blank character is '#' is a control line; every
// other line is copied to the output with ={expression} spans replaced
// by their value. A control line, including its line break, produces no
// output.
//
//	#if total > 100
//	Discount: ={math.format(total * 0.1, "F2")}
//	#elseif total > 50
//	Free shipping
//	#else
//	No discount
//	#end
//
//	#for item in items
//	- ={item.name}
//	#end
//
//	#for key, value in settings
//	#for i = 1, 10, 2
//	#import "footer.txt" with {year: 2024}
//
// A single #end closes an #if together with all of its #elseif arms.
//
// Expressions:
//
//	a.b  a[0]  a[-1]  s[2:-1]          - member, index and slice
//	+ - * / % ^                        - arithmetic on numbers
//	..                                 - string concatenation
//	== != < <= > >=                    - comparison
//	and or not                         - boolean logic, short-circuit
//	{name: "x", n: 1}  [1, 2, 3]       - table and array literals
//	string.upper(name)                 - builtin calls
//
// Index positions are 0-based and may be negative to count from the
// end. Slices take 1-based, inclusive bounds: a negative from counts as
// length+from+1 and a negative to as length+to, so "hello"[1:-1] is
// "hell".
//
// # Values
//
// Every value is null, a boolean, a number, a string, a table or an
// array (see Value). Operators never convert between kinds; mixing them
// is a render error. Host data is exposed through FromGo, which wraps Go
// maps, slices and structs lazily, and FromCty for HCL values.
//
// # Builtins
//
// Builtins live in the namespaces array, string, math, date and regex,
// plus a few unqualified helpers such as empty and type. Engine options
// and Compiler options can add functions or shadow builtins.
//
// # Error Handling
//
// Compilation fails with a *CompileError and rendering with a
// *RenderError. Both unwrap to one of the Err* sentinels:
//
//	if errors.Is(err, exprtmpl.ErrMissingFunction) {
//	    // unknown function name
//	}
//
// A failed render never returns partial output.
//
// # Thread Safety
//
// Template, Compiler and Engine are safe for concurrent use.
package exprtmpl
