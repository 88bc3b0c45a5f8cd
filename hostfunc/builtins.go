package hostfunc

import (
	"github.com/caffeineduck/runjs/bridge"
	"github.com/caffeineduck/runjs/value"
)

const (
	NamespaceRuntime = "runjs"
	NamespaceConsole = "console"
)

// Builtins returns the fixed capability table. A nil fs or http leaves the
// corresponding capabilities out.
func Builtins(fs *FS, http *HTTP) []Entry {
	entries := []Entry{
		{
			Namespace: NamespaceConsole,
			Name:      "log",
			Variadic:  &Param{Name: "values", Shape: value.ShapeAny},
			Invoke:    ConsoleLog,
		},
		{
			Namespace: NamespaceConsole,
			Name:      "error",
			Variadic:  &Param{Name: "values", Shape: value.ShapeAny},
			Invoke:    ConsoleError,
		},
	}

	if fs != nil {
		entries = append(entries,
			Entry{
				Namespace: NamespaceRuntime,
				Name:      "readFile",
				Kind:      bridge.KindRead,
				Params:    []Param{{Name: "path", Shape: value.ShapeNonEmptyString}},
				Prepare: func(call Call) (bridge.Operation, error) {
					return fs.PrepareRead("readFile", call.Arg(0).Str())
				},
			},
			Entry{
				Namespace: NamespaceRuntime,
				Name:      "writeFile",
				Kind:      bridge.KindWrite,
				Params: []Param{
					{Name: "path", Shape: value.ShapeNonEmptyString},
					{Name: "contents", Shape: value.ShapeString},
				},
				Prepare: func(call Call) (bridge.Operation, error) {
					return fs.PrepareWrite("writeFile", call.Arg(0).Str(), call.Arg(1).Str())
				},
			},
			Entry{
				Namespace: NamespaceRuntime,
				Name:      "removeFile",
				Kind:      bridge.KindRemove,
				Params:    []Param{{Name: "path", Shape: value.ShapeNonEmptyString}},
				Prepare: func(call Call) (bridge.Operation, error) {
					return fs.PrepareRemove("removeFile", call.Arg(0).Str())
				},
			},
		)
	}

	if http != nil {
		entries = append(entries, Entry{
			Namespace: NamespaceRuntime,
			Name:      "fetch",
			Kind:      bridge.KindFetch,
			Params:    []Param{{Name: "url", Shape: value.ShapeURL}},
			Prepare: func(call Call) (bridge.Operation, error) {
				return http.PrepareFetch("fetch", call.Arg(0).Str())
			},
		})
	}
	return entries
}
