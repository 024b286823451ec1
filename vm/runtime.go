package vm

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
)

// DefaultMaxDepth is the default call depth limit.
const DefaultMaxDepth = 1024

// Runtime loads modules for execution. It is safe for concurrent use.
type Runtime struct {
	log      *zap.Logger
	intLog   *zap.Logger
	maxDepth int
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger for type initialization and native faults.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// WithInterceptorLogger sets the logger the host Log interceptor writes
// to. It defaults to the runtime logger.
func WithInterceptorLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.intLog = l }
}

// WithMaxDepth limits the managed call depth of one thread of execution.
func WithMaxDepth(n int) Option {
	return func(r *Runtime) { r.maxDepth = n }
}

// New creates a runtime.
func New(opts ...Option) *Runtime {
	r := &Runtime{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = Logger()
	}
	if r.intLog == nil {
		r.intLog = r.log
	}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	return r
}

// Load validates m and binds it to the host library. The module must not
// be modified afterwards.
func (r *Runtime) Load(ctx context.Context, m *il.Module) (*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Load("load cancelled", err)
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Load("validate module", err)
	}
	for _, scope := range m.References {
		if scope != hostlib.Scope {
			return nil, errors.Load("bind references", errors.Resolution("module", scope))
		}
	}
	for _, t := range m.AllTypes() {
		for _, md := range t.Methods {
			if md.IsNative() {
				return nil, errors.Unsupported(errors.PhaseLoad, t.FullName(), md.Name,
					"native methods outside the host library")
			}
		}
	}

	inst := newInstance(r, m)
	r.log.Debug("module loaded",
		zap.String("module", m.Name),
		zap.Stringer("mvid", m.MVID),
		zap.Int("types", len(m.AllTypes())))
	return inst, nil
}
