package hostfunc

import (
	"fmt"
	"io"
	"sort"

	"github.com/caffeineduck/runjs/bridge"
	"github.com/caffeineduck/runjs/value"
)

// Param is one entry of a capability's argument contract.
type Param struct {
	Name  string
	Shape value.Shape
}

// Call carries the already validated arguments of one capability call and
// the output streams of the calling session.
type Call struct {
	Args   []value.Value
	Stdout io.Writer
	Stderr io.Writer
}

// Arg returns argument i, or undefined.
func (c Call) Arg(i int) value.Value {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return value.Undefined()
}

// PrepareFunc runs synchronously on the script thread. It applies every
// policy check that needs no I/O and returns the blocking operation to
// schedule. An error here rejects the call without scheduling anything.
type PrepareFunc func(call Call) (bridge.Operation, error)

// InvokeFunc implements a capability that completes synchronously.
type InvokeFunc func(call Call)

// Entry describes one capability. Exactly one of Prepare and Invoke is set.
type Entry struct {
	Namespace string
	Name      string
	Kind      bridge.Kind // async entries only
	Params    []Param
	Variadic  *Param // accepts any number of trailing arguments
	Prepare   PrepareFunc
	Invoke    InvokeFunc
}

// QualifiedName returns "namespace.name".
func (e Entry) QualifiedName() string {
	if e.Namespace == "" {
		return e.Name
	}
	return e.Namespace + "." + e.Name
}

// Async reports whether calls return a deferred handle.
func (e Entry) Async() bool { return e.Prepare != nil }

// Middleware wraps the operation of every async capability call.
type Middleware func(e Entry, next bridge.Operation) bridge.Operation

// Registry is an immutable table of capabilities. It is built once and may be
// read from any goroutine.
type Registry struct {
	entries map[string]Entry
	names   []string
}

// RegistryOption configures registry construction.
type RegistryOption func(*registryBuilder)

type registryBuilder struct {
	entries    map[string]Entry
	middleware []Middleware
	errors     []error
}

// NewRegistry builds a Registry. Duplicate or malformed entries fail
// construction.
//
//	registry, err := hostfunc.NewRegistry(
//	    hostfunc.WithMiddleware(hostfunc.RecoverMiddleware()),
//	    hostfunc.WithEntries(hostfunc.Builtins(fs, http)...),
//	)
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	b := &registryBuilder{entries: make(map[string]Entry)}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	r := &Registry{entries: make(map[string]Entry, len(b.entries))}
	for name, e := range b.entries {
		if e.Async() {
			e.Prepare = wrapPrepare(e, b.middleware)
		}
		r.entries[name] = e
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// wrapPrepare applies middleware in FIFO order: the first middleware is the
// outermost wrapper.
func wrapPrepare(e Entry, mw []Middleware) PrepareFunc {
	if len(mw) == 0 {
		return e.Prepare
	}
	prepare := e.Prepare
	return func(call Call) (bridge.Operation, error) {
		op, err := prepare(call)
		if err != nil {
			return nil, err
		}
		for i := len(mw) - 1; i >= 0; i-- {
			op = mw[i](e, op)
		}
		return op, nil
	}
}

// Get returns the entry registered under namespace and name.
func (r *Registry) Get(namespace, name string) (Entry, bool) {
	e, ok := r.entries[Entry{Namespace: namespace, Name: name}.QualifiedName()]
	return e, ok
}

// Names returns the sorted qualified names of every entry.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Entries returns every entry sorted by qualified name.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.entries[name])
	}
	return out
}

func (b *registryBuilder) add(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	name := e.QualifiedName()
	if (e.Prepare == nil) == (e.Invoke == nil) {
		return fmt.Errorf("capability %q must set exactly one of Prepare and Invoke", name)
	}
	if e.Async() && e.Kind == "" {
		return fmt.Errorf("async capability %q needs an operation kind", name)
	}
	if _, exists := b.entries[name]; exists {
		return fmt.Errorf("duplicate capability name: %q", name)
	}
	b.entries[name] = e
	return nil
}

// WithEntry registers one capability.
func WithEntry(e Entry) RegistryOption {
	return WithEntries(e)
}

// WithEntries registers capabilities.
func WithEntries(entries ...Entry) RegistryOption {
	return func(b *registryBuilder) {
		for _, e := range entries {
			if err := b.add(e); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithMiddleware adds operation middleware. Middleware executes in FIFO order.
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}
