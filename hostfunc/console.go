package hostfunc

import (
	"io"

	"github.com/caffeineduck/runjs/value"
)

// writeLine is best effort; console output never fails the caller.
func writeLine(w io.Writer, args []value.Value) {
	if w == nil {
		return
	}
	io.WriteString(w, value.FormatArgs(args)+"\n")
}

// ConsoleLog writes its arguments to the session's stdout.
func ConsoleLog(call Call) { writeLine(call.Stdout, call.Args) }

// ConsoleError writes its arguments to the session's stderr.
func ConsoleError(call Call) { writeLine(call.Stderr, call.Args) }
