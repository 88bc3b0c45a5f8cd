// Package value converts values and errors between host code and script code.
//
// Host code never touches engine values directly. Every argument a capability
// receives is a [Value], a tagged union over the script-visible types, and
// every result or error it produces goes back through a [Marshaler].
package value

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindObject
	KindArray
	KindFunction
	KindError
	KindSymbol
	KindBigInt
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindNumber:    "number",
	KindString:    "string",
	KindObject:    "object",
	KindArray:     "array",
	KindFunction:  "function",
	KindError:     "error",
	KindSymbol:    "symbol",
	KindBigInt:    "bigint",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Field is one key of an object value. Objects keep their keys in order.
type Field struct {
	Key   string
	Value Value
}

// Value is a fully resolved script value.
type Value struct {
	kind   Kind
	b      bool
	n      float64
	s      string // string contents, function name, or object class
	fields []Field
	items  []Value
	err    *ErrorInfo
}

// Undefined returns the undefined value. The zero Value is also undefined.
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Number returns a number value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Object returns a plain object value with the given fields in order.
func Object(fields ...Field) Value {
	return Value{kind: KindObject, fields: fields}
}

// Symbol returns a value standing in for a script symbol with the given
// description.
func Symbol(description string) Value { return Value{kind: KindSymbol, s: description} }

// BigInt returns a bigint value from its decimal digits.
func BigInt(digits string) Value { return Value{kind: KindBigInt, s: digits} }

// NamedObject returns an object value whose display form carries a class
// name, e.g. "Promise" or "Map".
func NamedObject(class string, fields ...Field) Value {
	if fields == nil {
		fields = []Field{}
	}
	return Value{kind: KindObject, s: class, fields: fields}
}

// opaque is an object value displayed as text only.
func opaque(text string) Value {
	return Value{kind: KindObject, s: text}
}

// Array returns an array value.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: items}
}

// Function returns a value standing in for a script function. Host code can
// display a function but never call it.
func Function(name string) Value {
	return Value{kind: KindFunction, s: name}
}

// ErrorValue returns an error value.
func ErrorValue(info ErrorInfo) Value {
	return Value{kind: KindError, err: &info}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNullish reports whether v is undefined or null.
func (v Value) IsNullish() bool {
	return v.kind == KindUndefined || v.kind == KindNull
}

// Bool returns the boolean held by v, or false.
func (v Value) Bool() bool { return v.b }

// Number returns the number held by v, or 0.
func (v Value) Number() float64 { return v.n }

// Str returns the string held by v. For functions it is the function name and
// for named objects the class name.
func (v Value) Str() string { return v.s }

// Fields returns the fields of an object value.
func (v Value) Fields() []Field { return v.fields }

// Get returns the field named key of an object value.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Items returns the elements of an array value.
func (v Value) Items() []Value { return v.items }

// Err returns the error description of an error value.
func (v Value) Err() (ErrorInfo, bool) {
	if v.err == nil {
		return ErrorInfo{}, false
	}
	return *v.err, true
}
