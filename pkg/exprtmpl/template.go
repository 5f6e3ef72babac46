package exprtmpl

import (
	"io"
)

// RenderFunc renders a compiled template against a root table.
type RenderFunc func(root Table) (string, error)

// Template is a compiled template. It is immutable and safe to render
// from many goroutines at once.
type Template struct {
	name string
	body execFunc
}

// Name returns the name the template was compiled under.
func (t *Template) Name() string {
	return t.name
}

// Render evaluates the template with root as the outermost scope. root
// is only read; a nil root is an empty table. On failure no output is
// returned.
func (t *Template) Render(root Table) (out string, err error) {
	if root == nil {
		root = emptyTable{}
	}
	st := acquireState()
	defer func() {
		if r := recover(); r != nil {
			// the state may hold checked out frames, leave it to the GC
			out, err = "", RecoverError(r)
		}
	}()

	if err := t.body(st, root); err != nil {
		releaseState(st)
		return "", err
	}
	out = st.out.String()
	releaseState(st)
	return out, nil
}

// RenderData converts data with ToTable and renders it.
func (t *Template) RenderData(data any) (string, error) {
	root, err := ToTable(data)
	if err != nil {
		return "", err
	}
	return t.Render(root)
}

// Execute renders to w. Nothing is written when rendering fails.
func (t *Template) Execute(w io.Writer, root Table) error {
	out, err := t.Render(root)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// Func returns the template as a plain function.
func (t *Template) Func() RenderFunc {
	return t.Render
}
