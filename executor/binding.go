package executor

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/runjs/hostfunc"
	"github.com/caffeineduck/runjs/value"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// install exposes every registry entry as a function on a global namespace
// object, e.g. runjs.readFile and console.log.
func (s *Session) install() error {
	namespaces := make(map[string]*goja.Object)
	for _, e := range s.exec.registry.Entries() {
		target := s.vm.GlobalObject()
		if e.Namespace != "" {
			ns, ok := namespaces[e.Namespace]
			if !ok {
				ns = s.vm.NewObject()
				if err := s.vm.Set(e.Namespace, ns); err != nil {
					return fmt.Errorf("install namespace %s: %w", e.Namespace, err)
				}
				namespaces[e.Namespace] = ns
			}
			target = ns
		}
		if err := target.Set(e.Name, s.bind(e)); err != nil {
			return fmt.Errorf("install %s: %w", e.QualifiedName(), err)
		}
	}
	return nil
}

// bind returns the native function behind one capability. Argument errors are
// thrown synchronously; policy denials return an already rejected promise.
// Neither schedules an operation.
func (s *Session) bind(e hostfunc.Entry) func(goja.FunctionCall) goja.Value {
	name := e.QualifiedName()
	return func(fc goja.FunctionCall) goja.Value {
		args, err := s.arguments(e, fc.Arguments)
		if err != nil {
			s.logger.Debug("capability argument rejected", zap.String("capability", name), zap.Error(err))
			panic(s.marshal.ErrorToScript(err))
		}

		call := hostfunc.Call{Args: args, Stdout: s.cfg.stdout, Stderr: s.cfg.stderr}
		if !e.Async() {
			e.Invoke(call)
			return goja.Undefined()
		}

		promise, resolve, reject := s.vm.NewPromise()
		h := &promiseHandle{marshal: s.marshal, resolve: resolve, reject: reject}

		op, err := e.Prepare(call)
		if err != nil {
			s.logger.Warn("capability denied",
				zap.String("capability", name),
				zap.String("kind", string(e.Kind)),
				zap.String("error_kind", string(hostfunc.KindOf(err))),
				zap.Error(err))
			if rerr := h.Reject(err); rerr != nil {
				panic(rerr)
			}
			return s.vm.ToValue(promise)
		}

		s.bridge.Invoke(e.Kind, e.Name, h, op)
		return s.vm.ToValue(promise)
	}
}

func (s *Session) arguments(e hostfunc.Entry, in []goja.Value) ([]value.Value, error) {
	args := make([]value.Value, 0, len(in))
	for i, p := range e.Params {
		var v goja.Value = goja.Undefined()
		if i < len(in) {
			v = in[i]
		}
		hv, err := s.convert(e, p, v)
		if err != nil {
			return nil, err
		}
		args = append(args, hv)
	}

	if e.Variadic != nil && len(in) > len(e.Params) {
		for _, v := range in[len(e.Params):] {
			hv, err := s.convert(e, *e.Variadic, v)
			if err != nil {
				return nil, err
			}
			args = append(args, hv)
		}
	}
	return args, nil
}

func (s *Session) convert(e hostfunc.Entry, p hostfunc.Param, v goja.Value) (value.Value, error) {
	hv, err := s.marshal.ToHost(v, p.Shape)
	if err != nil {
		var me *value.MarshalError
		if errors.As(err, &me) {
			me.Capability = e.Name
			me.Param = p.Name
		}
		return value.Value{}, err
	}
	return hv, nil
}

// promiseHandle is the deferred handle given to the bridge. Resolving it runs
// the script continuations waiting on the promise.
type promiseHandle struct {
	marshal *value.Marshaler
	resolve func(any) error
	reject  func(any) error
}

func (h *promiseHandle) Resolve(v value.Value) error {
	return h.resolve(h.marshal.ToScript(v))
}

func (h *promiseHandle) Reject(err error) error {
	return h.reject(h.marshal.ErrorToScript(err))
}
