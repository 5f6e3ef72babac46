package exprtmpl

import (
	"bytes"
	"sync"
)

// Frame is a scope opened by a loop or a parameterized include. It binds
// a few local names and defers every other lookup to the enclosing table.
// The enclosing reference is borrowed for the lifetime of the loop or
// include and cleared when the frame returns to its pool.
type Frame struct {
	names  []string
	values []Value
	prev   Table
}

// Set binds name in this frame, overwriting an existing binding in place.
func (f *Frame) Set(name string, v Value) {
	for i, n := range f.names {
		if n == name {
			f.values[i] = v
			return
		}
	}
	f.names = append(f.names, name)
	f.values = append(f.values, v)
}

// Get resolves key locally first, then through the enclosing table.
func (f *Frame) Get(key string) (Value, bool) {
	for i, n := range f.names {
		if n == key {
			return f.values[i], true
		}
	}
	if f.prev == nil {
		return Null, false
	}
	return f.prev.Get(key)
}

// Keys lists local names followed by enclosing keys they do not shadow.
func (f *Frame) Keys() []string {
	keys := append([]string(nil), f.names...)
	if f.prev == nil {
		return keys
	}
	for _, k := range f.prev.Keys() {
		if !f.local(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (f *Frame) local(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

func (f *Frame) reset() {
	clear(f.values)
	f.names = f.names[:0]
	f.values = f.values[:0]
	f.prev = nil
}

// framePool recycles frames within one render. It is never shared
// between goroutines; each render owns one through its renderState.
type framePool struct {
	free []*Frame
	live int
}

// push checks out a frame whose enclosing scope is prev.
func (p *framePool) push(prev Table) *Frame {
	var f *Frame
	if n := len(p.free); n > 0 {
		f = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		f = &Frame{}
	}
	f.prev = prev
	p.live++
	return f
}

// pop returns f to the pool.
func (p *framePool) pop(f *Frame) {
	f.reset()
	p.free = append(p.free, f)
	p.live--
}

// renderState is the per-render mutable state: the output buffer and the
// frame pool. States are recycled across renders through statePool, so
// one goroutine owns a state for the whole duration of a render.
type renderState struct {
	out    bytes.Buffer
	frames framePool
}

var statePool = sync.Pool{
	New: func() interface{} { return new(renderState) },
}

func acquireState() *renderState {
	return statePool.Get().(*renderState)
}

// maxRetainedBuffer caps the output buffer kept by a pooled state.
const maxRetainedBuffer = 1 << 20

func releaseState(st *renderState) {
	if st.frames.live != 0 {
		// a frame is still checked out, drop the state rather than reuse it
		return
	}
	if st.out.Cap() > maxRetainedBuffer {
		st.out = bytes.Buffer{}
	}
	st.out.Reset()
	statePool.Put(st)
}
