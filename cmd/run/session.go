package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
	"github.com/wippyai/weave/vm"
	"github.com/wippyai/weave/weaver"
)

type sessionOptions struct {
	log   *zap.Logger
	weave bool
}

// session is a module loaded into a fresh interpreter.
type session struct {
	module *il.Module
	inst   *vm.Instance
	woven  bool
}

func openSession(ctx context.Context, path string, opts sessionOptions) (*session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	m, err := il.ParseModuleValidate(data)
	if err != nil {
		return nil, err
	}

	if opts.weave && !weaver.IsWoven(m) {
		fc, err := weaver.LoadConfig(filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		cfg := fc.Config()
		cfg.Logger = opts.log
		cfg.ReportPath = ""
		if _, err := weaver.WeaveModule(m, cfg); err != nil {
			return nil, err
		}
	}

	rt := vm.New(vm.WithLogger(opts.log), vm.WithInterceptorLogger(opts.log))
	inst, err := rt.Load(ctx, m)
	if err != nil {
		return nil, err
	}
	return &session{module: m, inst: inst, woven: weaver.IsWoven(m)}, nil
}

type entry struct {
	class  *vm.Class
	method *vm.Method
}

// entries returns the callable methods of typeName, or of every
// non-generic type when typeName is empty. Woven holder types are skipped.
func (s *session) entries(typeName string, targs []*il.TypeRef) ([]entry, error) {
	var classes []*vm.Class
	if typeName != "" {
		cls, err := s.inst.Type(typeName, targs...)
		if err != nil {
			return nil, err
		}
		classes = append(classes, cls)
	} else {
		for _, td := range s.module.AllTypes() {
			if td.HasGenericParams() || td.IsInterface() || strings.HasSuffix(td.Name, hostlib.StubSuffix) {
				continue
			}
			cls, err := s.inst.Type(td.FullName())
			if err != nil {
				return nil, err
			}
			classes = append(classes, cls)
		}
	}

	var out []entry
	for _, cls := range classes {
		for _, m := range cls.Methods() {
			if callable(m) {
				out = append(out, entry{class: cls, method: m})
			}
		}
	}
	return out, nil
}

func callable(m *vm.Method) bool {
	d := m.Def
	return !d.IsConstructor() && !d.IsAbstract() && len(d.GenericParams) == 0
}

// call parses args against each overload of name in turn and invokes the
// first that accepts them. Instance methods run on a receiver built with
// the parameterless constructor.
func (s *session) call(ctx context.Context, cls *vm.Class, name string, args []string) (any, error) {
	var parseErr error
	for _, m := range cls.Lookup(name, len(args)) {
		if !callable(m) {
			continue
		}
		parsed, err := parseArgs(args, m.Params())
		if err != nil {
			parseErr = err
			continue
		}
		return s.invoke(ctx, cls, m, parsed)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return nil, errors.NotFound(errors.PhaseRuntime, "method", fmt.Sprintf("%s::%s/%d", cls.Name, name, len(args)))
}

func (s *session) invoke(ctx context.Context, cls *vm.Class, m *vm.Method, args []any) (any, error) {
	if m.Def.IsStatic() {
		return s.inst.Invoke(ctx, m, nil, args...)
	}
	target, err := s.inst.New(ctx, cls)
	if err != nil {
		return nil, err
	}
	return s.inst.Invoke(ctx, m, target, args...)
}

func formatResult(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case *vm.Array:
		items := make([]string, len(x.Items))
		for i, item := range x.Items {
			items[i] = formatResult(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	}
	return fmt.Sprint(v)
}

// newLogger writes console entries without timestamps to w, colored when w
// is a terminal.
func newLogger(w io.Writer) *zap.Logger {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.TimeKey = ""
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.AddSync(w), zapcore.InfoLevel))
}
