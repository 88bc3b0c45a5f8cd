package value

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/dop251/goja"
)

const (
	// maxDepth bounds how far FromScript descends into nested objects.
	maxDepth = 4

	// maxItems bounds how many array elements FromScript converts.
	maxItems = 100
)

// Marshaler converts values for one goja runtime. It must only be used on the
// goroutine that owns the runtime.
type Marshaler struct {
	vm *goja.Runtime
}

// NewMarshaler returns a Marshaler bound to vm.
func NewMarshaler(vm *goja.Runtime) *Marshaler {
	return &Marshaler{vm: vm}
}

// ToHost converts a script argument and checks it against the expected shape.
func (m *Marshaler) ToHost(v goja.Value, expected Shape) (Value, error) {
	hv := m.FromScript(v)
	if me := Check(hv, expected); me != nil {
		return Value{}, me
	}
	return hv, nil
}

// FromScript converts any script value without shape checks. Nested objects
// below a fixed depth and reference cycles are replaced by placeholders, and
// arrays are cut after maxItems elements. Script exceptions raised by getters
// or proxy traps are caught and shown as [Exception].
func (m *Marshaler) FromScript(v goja.Value) Value {
	return m.fromScript(v, 0, make(map[*goja.Object]bool))
}

func (m *Marshaler) fromScript(v goja.Value, depth int, seen map[*goja.Object]bool) Value {
	if v == nil || goja.IsUndefined(v) {
		return Undefined()
	}
	if goja.IsNull(v) {
		return Null()
	}

	if sym, ok := v.(*goja.Symbol); ok {
		return Symbol(sym.String())
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		switch x := v.Export().(type) {
		case bool:
			return Bool(x)
		case int64:
			return Number(float64(x))
		case float64:
			return Number(x)
		case string:
			return String(x)
		case *big.Int:
			return BigInt(x.String())
		}
		return opaque(v.String())
	}

	var out Value
	if !m.try(func() { out = m.fromObject(obj, depth, seen) }) {
		return opaque("[Exception]")
	}
	return out
}

func (m *Marshaler) fromObject(obj *goja.Object, depth int, seen map[*goja.Object]bool) Value {
	if _, callable := goja.AssertFunction(obj); callable {
		return Function(m.stringProp(obj, "name"))
	}

	if obj.ClassName() == "Error" {
		return ErrorValue(m.errorInfo(obj))
	}

	if obj.ClassName() == "Promise" {
		if p, ok := obj.Export().(*goja.Promise); ok {
			switch p.State() {
			case goja.PromiseStateFulfilled:
				return opaque("Promise { <fulfilled> }")
			case goja.PromiseStateRejected:
				return opaque("Promise { <rejected> }")
			}
		}
		return opaque("Promise { <pending> }")
	}

	if seen[obj] {
		return opaque("[Circular]")
	}
	if depth >= maxDepth {
		if obj.ClassName() == "Array" {
			return opaque("[Array]")
		}
		return opaque("[Object]")
	}
	seen[obj] = true
	defer delete(seen, obj)

	if obj.ClassName() == "Array" {
		n := obj.Get("length").ToInteger()
		shown := min(max(n, 0), maxItems)
		items := make([]Value, 0, shown+1)
		for i := int64(0); i < shown; i++ {
			items = append(items, m.prop(obj, strconv.FormatInt(i, 10), depth, seen))
		}
		if rest := n - shown; rest > 0 {
			items = append(items, opaque(moreItems(rest)))
		}
		return Array(items...)
	}

	keys := obj.Keys()
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Key: k, Value: m.prop(obj, k, depth, seen)})
	}
	return NamedObject(obj.ClassName(), fields...)
}

func moreItems(n int64) string {
	if n == 1 {
		return "... 1 more item"
	}
	return fmt.Sprintf("... %d more items", n)
}

// try runs f and reports whether it finished without a script exception.
func (m *Marshaler) try(f func()) bool {
	return m.vm.Try(f) == nil
}

func (m *Marshaler) prop(obj *goja.Object, key string, depth int, seen map[*goja.Object]bool) Value {
	var v goja.Value
	if !m.try(func() { v = obj.Get(key) }) {
		return opaque("[Exception]")
	}
	return m.fromScript(v, depth+1, seen)
}

func (m *Marshaler) errorInfo(obj *goja.Object) ErrorInfo {
	info := ErrorInfo{
		Kind:       m.stringProp(obj, "kind"),
		Message:    m.stringProp(obj, "message"),
		Capability: m.stringProp(obj, "capability"),
	}
	if info.Kind == "" {
		info.Kind = m.stringProp(obj, "name")
	}
	if info.Kind == "" {
		info.Kind = "Error"
	}
	m.try(func() {
		if s := obj.Get("status"); s != nil && !goja.IsUndefined(s) {
			info.Status = int(s.ToInteger())
		}
	})
	return info
}

// ToScript converts a host value to a script value. Function and symbol values
// have no script counterpart and become undefined.
func (m *Marshaler) ToScript(v Value) goja.Value {
	switch v.kind {
	case KindNull:
		return goja.Null()
	case KindBoolean:
		return m.vm.ToValue(v.b)
	case KindNumber:
		return m.vm.ToValue(v.n)
	case KindString:
		return m.vm.ToValue(v.s)
	case KindBigInt:
		if n, ok := new(big.Int).SetString(v.s, 10); ok {
			return m.vm.ToValue(n)
		}
	case KindArray:
		items := make([]interface{}, len(v.items))
		for i, item := range v.items {
			items[i] = m.ToScript(item)
		}
		return m.vm.NewArray(items...)
	case KindObject:
		obj := m.vm.NewObject()
		for _, f := range v.fields {
			_ = obj.Set(f.Key, m.ToScript(f.Value))
		}
		return obj
	case KindError:
		return m.errorObject(*v.err)
	}
	return goja.Undefined()
}

// ErrorToScript converts a host error into a script Error object whose name
// is the error kind.
func (m *Marshaler) ErrorToScript(err error) goja.Value {
	return m.errorObject(Describe(err))
}

func (m *Marshaler) errorObject(info ErrorInfo) *goja.Object {
	obj, err := m.vm.New(m.vm.Get("Error"), m.vm.ToValue(info.Message))
	if err != nil {
		obj = m.vm.NewObject()
		_ = obj.Set("message", info.Message)
	}
	_ = obj.Set("name", info.Kind)
	_ = obj.Set("kind", info.Kind)
	if info.Capability != "" {
		_ = obj.Set("capability", info.Capability)
	}
	if info.Status != 0 {
		_ = obj.Set("status", info.Status)
	}
	return obj
}

// stringProp reads a property as text, or "" when it is unset or throws.
func (m *Marshaler) stringProp(obj *goja.Object, name string) (s string) {
	m.try(func() {
		if v := obj.Get(name); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
			s = v.String()
		}
	})
	return s
}
