package hostfunc

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/caffeineduck/runjs/bridge"
	"github.com/caffeineduck/runjs/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func echoEntry(name string) Entry {
	return Entry{
		Namespace: "test",
		Name:      name,
		Kind:      bridge.KindRead,
		Params:    []Param{{Name: "s", Shape: value.ShapeString}},
		Prepare: func(call Call) (bridge.Operation, error) {
			s := call.Arg(0).Str()
			return func(ctx context.Context) (value.Value, error) { return value.String(s), nil }, nil
		},
	}
}

func TestRegistryBuiltins(t *testing.T) {
	fs := NewFS([]Mount{{VirtualPath: "/", HostPath: t.TempDir(), Mode: MountReadOnly}})
	http := NewHTTP(HTTPConfig{})

	r, err := NewRegistry(WithEntries(Builtins(fs, http)...))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"console.error",
		"console.log",
		"runjs.fetch",
		"runjs.readFile",
		"runjs.removeFile",
		"runjs.writeFile",
	}, r.Names())

	e, ok := r.Get(NamespaceRuntime, "writeFile")
	require.True(t, ok)
	assert.True(t, e.Async())
	assert.Equal(t, bridge.KindWrite, e.Kind)
	require.Len(t, e.Params, 2)
	assert.Equal(t, value.ShapeNonEmptyString, e.Params[0].Shape)
	assert.Equal(t, value.ShapeString, e.Params[1].Shape)

	e, ok = r.Get(NamespaceConsole, "log")
	require.True(t, ok)
	assert.False(t, e.Async())
	assert.NotNil(t, e.Variadic)
}

func TestRegistryBuiltinsWithoutNetwork(t *testing.T) {
	r, err := NewRegistry(WithEntries(Builtins(nil, nil)...))
	require.NoError(t, err)
	assert.Equal(t, []string{"console.error", "console.log"}, r.Names())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(WithEntry(echoEntry("a")), WithEntry(echoEntry("a")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate capability name")
}

func TestRegistryRejectsMalformedEntries(t *testing.T) {
	_, err := NewRegistry(WithEntry(Entry{Namespace: "test"}))
	assert.Error(t, err)

	both := echoEntry("both")
	both.Invoke = func(Call) {}
	_, err = NewRegistry(WithEntry(both))
	assert.Error(t, err)

	noKind := echoEntry("nokind")
	noKind.Kind = ""
	_, err = NewRegistry(WithEntry(noKind))
	assert.Error(t, err)
}

func TestRegistryMiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(e Entry, next bridge.Operation) bridge.Operation {
			return func(ctx context.Context) (value.Value, error) {
				order = append(order, name)
				return next(ctx)
			}
		}
	}

	r, err := NewRegistry(WithMiddleware(tag("first"), tag("second")), WithEntry(echoEntry("echo")))
	require.NoError(t, err)

	e, _ := r.Get("test", "echo")
	op, err := e.Prepare(Call{Args: []value.Value{value.String("hi")}})
	require.NoError(t, err)
	v, err := op(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "hi", v.Str())
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRecoverMiddleware(t *testing.T) {
	boom := Entry{
		Namespace: "test",
		Name:      "boom",
		Kind:      bridge.KindRead,
		Prepare: func(Call) (bridge.Operation, error) {
			return func(context.Context) (value.Value, error) { panic("kaboom") }, nil
		},
	}
	r, err := NewRegistry(WithMiddleware(RecoverMiddleware()), WithEntry(boom))
	require.NoError(t, err)

	e, _ := r.Get("test", "boom")
	op, err := e.Prepare(Call{})
	require.NoError(t, err)
	_, err = op(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test.boom panicked: kaboom")
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	failing := Entry{
		Namespace: NamespaceRuntime,
		Name:      "fetch",
		Kind:      bridge.KindFetch,
		Prepare: func(Call) (bridge.Operation, error) {
			return func(context.Context) (value.Value, error) {
				return value.Value{}, &CapabilityError{Kind: HttpError, Capability: "fetch", Status: 503}
			}, nil
		},
	}

	r, err := NewRegistry(WithMiddleware(LoggingMiddleware(zap.New(core))), WithEntry(failing), WithEntry(echoEntry("echo")))
	require.NoError(t, err)

	e, _ := r.Get(NamespaceRuntime, "fetch")
	op, _ := e.Prepare(Call{})
	_, err = op(context.Background())
	require.ErrorIs(t, err, HttpError)

	e, _ = r.Get("test", "echo")
	op, _ = e.Prepare(Call{Args: []value.Value{value.String("x")}})
	_, err = op(context.Background())
	require.NoError(t, err)

	warn := logs.FilterMessage("capability failed").All()
	require.Len(t, warn, 1)
	fields := warn[0].ContextMap()
	assert.Equal(t, "runjs.fetch", fields["capability"])
	assert.Equal(t, "HttpError", fields["error_kind"])
	assert.EqualValues(t, 503, fields["status"])

	assert.Equal(t, 1, logs.FilterMessage("capability completed").Len())
}

func TestConsoleWritesFormattedLine(t *testing.T) {
	var stdout, stderr bytes.Buffer
	call := Call{
		Args: []value.Value{
			value.String("count:"),
			value.Number(3),
			value.Object(value.Field{Key: "ok", Value: value.Bool(true)}),
		},
		Stdout: &stdout,
		Stderr: &stderr,
	}

	ConsoleLog(call)
	ConsoleError(Call{Args: []value.Value{value.String("bad")}, Stdout: &stdout, Stderr: &stderr})
	ConsoleLog(Call{Stdout: nil})

	assert.Equal(t, "count: 3 { ok: true }\n", stdout.String())
	assert.Equal(t, "bad\n", stderr.String())
}

func TestCapabilityErrorDescribe(t *testing.T) {
	err := &CapabilityError{Kind: NotFound, Capability: "readFile", Message: "no such file: /x", Err: errors.New("host detail")}

	info := err.Describe()
	assert.Equal(t, "NotFound", info.Kind)
	assert.Equal(t, "readFile: no such file: /x", info.Message)
	assert.Equal(t, "readFile", info.Capability)
	assert.NotContains(t, info.Message, "host detail")

	assert.ErrorIs(t, err, NotFound)
	assert.NotErrorIs(t, err, Denied)
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
