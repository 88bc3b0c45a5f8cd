package value

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type describedError struct{ info ErrorInfo }

func (e *describedError) Error() string        { return e.info.String() }
func (e *describedError) Describe() ErrorInfo { return e.info }

func newTestMarshaler(t *testing.T) (*goja.Runtime, *Marshaler) {
	t.Helper()
	vm := goja.New()
	return vm, NewMarshaler(vm)
}

func eval(t *testing.T, vm *goja.Runtime, src string) goja.Value {
	t.Helper()
	v, err := vm.RunString(src)
	require.NoError(t, err)
	return v
}

func TestFromScript(t *testing.T) {
	vm, m := newTestMarshaler(t)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"number", `1 + 1`, "2"},
		{"float", `0.5`, "0.5"},
		{"string", `"s"`, "s"},
		{"null", `null`, "null"},
		{"undefined", `undefined`, "undefined"},
		{"object order", `({ b: 1, a: [1, "x"], c: null })`, `{ b: 1, a: [ 1, "x" ], c: null }`},
		{"named function", `(function named() {})`, "[Function: named]"},
		{"arrow function", `(() => {})`, "[Function (anonymous)]"},
		{"error", `new Error("bad")`, "Error: bad"},
		{"type error", `new TypeError("worse")`, "TypeError: worse"},
		{"fulfilled promise", `Promise.resolve(1)`, "Promise { <fulfilled> }"},
		{"pending promise", `new Promise(() => {})`, "Promise { <pending> }"},
		{"circular", `const o = { n: 1 }; o.self = o; o`, "{ n: 1, self: [Circular] }"},
		{"depth", `({ a: { b: { c: { d: { e: 1 } } } } })`, "{ a: { b: { c: { d: [Object] } } } }"},
		{"deep array", `[[[[[1]]]]]`, "[ [ [ [ [Array] ] ] ] ]"},
		{"shared reference", `const s = { k: 1 }; ({ x: s, y: s })`, "{ x: { k: 1 }, y: { k: 1 } }"},
		{"symbol", `Symbol("tag")`, "Symbol(tag)"},
		{"bigint", `12345678901234567890n`, "12345678901234567890n"},
		{"throwing getter", `({ a: 1, get b() { throw new Error("no") } })`, "{ a: 1, b: [Exception] }"},
		{"throwing proxy", `new Proxy({}, { ownKeys() { throw new Error("no") } })`, "[Exception]"},
		{"revoked proxy", `const r = Proxy.revocable({}, {}); r.revoke(); ({ p: r.proxy })`, "{ p: [Exception] }"},
		{"one extra item", `Array.from({ length: 101 }, () => 0)`, "[ " + strings.Repeat("0, ", 100) + "... 1 more item ]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(m.FromScript(eval(t, vm, tt.src))))
		})
	}
}

func TestFromScriptHugeArray(t *testing.T) {
	vm, m := newTestMarshaler(t)

	v := m.FromScript(eval(t, vm, `new Array(2 ** 32 - 1)`))
	assert.Equal(t, KindArray, v.Kind())
	assert.Len(t, v.items, maxItems+1)
	assert.Equal(t, "... 4294967195 more items", Format(v.items[maxItems]))
}

func TestLoneSurrogateBecomesReplacementChar(t *testing.T) {
	vm, m := newTestMarshaler(t)

	v := m.FromScript(eval(t, vm, `"a\uD800b"`))
	assert.Equal(t, "a\uFFFDb", v.Str())

	require.NoError(t, vm.Set("back", m.ToScript(v)))
	assert.True(t, eval(t, vm, `back === "a\uFFFDb"`).ToBoolean())
}

func TestFromScriptErrorFields(t *testing.T) {
	vm, m := newTestMarshaler(t)

	v := m.FromScript(eval(t, vm, `
const e = new Error("gone");
e.kind = "HttpError";
e.capability = "fetch";
e.status = 404;
e`))

	info, ok := v.Err()
	require.True(t, ok)
	assert.Equal(t, ErrorInfo{Kind: "HttpError", Message: "gone", Capability: "fetch", Status: 404}, info)
}

func TestToHostChecksShape(t *testing.T) {
	vm, m := newTestMarshaler(t)

	v, err := m.ToHost(vm.ToValue("/tmp/a"), ShapeNonEmptyString)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a", v.Str())

	_, err = m.ToHost(vm.ToValue(3), ShapeString)
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))

	var me *MarshalError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, KindNumber, me.Got)

	_, err = m.ToHost(goja.Undefined(), ShapeString)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got undefined")

	for src, kind := range map[string]Kind{`Symbol("/tmp/a")`: KindSymbol, `7n`: KindBigInt} {
		_, err = m.ToHost(eval(t, vm, src), ShapeNonEmptyString)
		require.True(t, errors.As(err, &me), src)
		assert.Equal(t, kind, me.Got)
	}
}

func TestToScript(t *testing.T) {
	vm, m := newTestMarshaler(t)

	in := Object(
		Field{"n", Number(1)},
		Field{"list", Array(String("x"), Bool(true), Null())},
		Field{"fn", Function("dropped")},
	)
	require.NoError(t, vm.Set("v", m.ToScript(in)))

	ok := eval(t, vm, `
v.n === 1 &&
Array.isArray(v.list) && v.list.length === 3 &&
v.list[0] === "x" && v.list[1] === true && v.list[2] === null &&
v.fn === undefined && "fn" in v`)
	assert.True(t, ok.ToBoolean())

	assert.True(t, goja.IsUndefined(m.ToScript(Undefined())))
	assert.True(t, goja.IsUndefined(m.ToScript(Symbol("s"))))
	require.NoError(t, vm.Set("big", m.ToScript(BigInt("9007199254740993"))))
	assert.True(t, eval(t, vm, `big === 9007199254740993n`).ToBoolean())
	assert.Equal(t, "text", m.ToScript(String("text")).Export())
}

func TestErrorToScript(t *testing.T) {
	vm, m := newTestMarshaler(t)

	err := fmt.Errorf("wrapped: %w", &describedError{info: ErrorInfo{
		Kind:       "HttpError",
		Message:    "status 404",
		Capability: "fetch",
		Status:     404,
	}})
	require.NoError(t, vm.Set("e", m.ErrorToScript(err)))

	ok := eval(t, vm, `
e instanceof Error &&
e.name === "HttpError" && e.kind === "HttpError" &&
e.message === "status 404" && e.capability === "fetch" && e.status === 404 &&
String(e) === "HttpError: status 404"`)
	assert.True(t, ok.ToBoolean())
}

func TestErrorToScriptHidesInternalErrors(t *testing.T) {
	vm, m := newTestMarshaler(t)

	require.NoError(t, vm.Set("e", m.ErrorToScript(errors.New("open /etc/secret: permission denied"))))
	assert.Equal(t, "Error: internal error", eval(t, vm, `String(e)`).String())
	assert.True(t, eval(t, vm, `e.capability === undefined && e.status === undefined`).ToBoolean())
}

func TestErrorRoundTrip(t *testing.T) {
	_, m := newTestMarshaler(t)

	info := ErrorInfo{Kind: "NotFound", Message: "no such file: /x", Capability: "readFile"}
	back := m.FromScript(m.ToScript(ErrorValue(info)))

	got, ok := back.Err()
	require.True(t, ok)
	assert.Equal(t, info, got)
}
