package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
)

// Script is a named piece of source code.
type Script struct {
	Name   string
	Source string
}

// LoadScript reads a script from disk. The file name decides whether the
// source is treated as TypeScript.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	return Script{Name: filepath.Base(path), Source: string(data)}, nil
}

// IsTypeScript reports whether the script name carries a TypeScript extension.
func (s Script) IsTypeScript() bool {
	switch strings.ToLower(filepath.Ext(s.Name)) {
	case ".ts", ".mts", ".cts", ".tsx":
		return true
	}
	return false
}

// The script body becomes the body of an async function so that top-level
// await works. The prefix stays on the first line to keep line numbers.
const (
	asyncPrefix = "(async () => {"
	asyncSuffix = "\n})()"
)

// compile turns a script into a goja program whose completion value is the
// top-level promise.
func compile(s Script) (*goja.Program, error) {
	name := s.Name
	if name == "" {
		name = "<script>"
	}

	src := asyncPrefix + s.Source + asyncSuffix
	if s.IsTypeScript() {
		js, err := transpile(name, s, src)
		if err != nil {
			return nil, err
		}
		src = js
	}

	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, &EngineError{Kind: ParseFailure, Script: s.Name, Message: err.Error(), Err: err}
	}
	return prg, nil
}

func transpile(name string, s Script, src string) (string, error) {
	loader := api.LoaderTS
	if strings.EqualFold(filepath.Ext(s.Name), ".tsx") {
		loader = api.LoaderTSX
	}

	result := api.Transform(src, api.TransformOptions{
		Loader:     loader,
		Target:     api.ESNext,
		Sourcefile: name,
	})
	if len(result.Errors) > 0 {
		msg := result.Errors[0].Text
		if loc := result.Errors[0].Location; loc != nil {
			msg = fmt.Sprintf("%d:%d: %s", loc.Line, loc.Column, msg)
		}
		return "", &EngineError{Kind: ParseFailure, Script: s.Name, Message: msg}
	}
	return string(result.Code), nil
}
