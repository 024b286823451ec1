package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/hostlib"
	"github.com/wippyai/weave/il"
)

// Holder field names.
const (
	MethodField       = hostlib.HolderMethodField
	InterceptorsField = hostlib.HolderInterceptorsField
	InvokerField      = hostlib.HolderInvokerField
)

// Naming controls the names of generated members. A method M with overload
// index i > 0 produces M{i}{OriginalSuffix} and the holder M{i}{StubSuffix}.
type Naming struct {
	OriginalSuffix string
	StubSuffix     string
	Trampoline     string
}

// DefaultNaming returns the conventional generated names.
func DefaultNaming() Naming {
	return Naming{
		OriginalSuffix: hostlib.OriginalSuffix,
		StubSuffix:     hostlib.StubSuffix,
		Trampoline:     hostlib.Trampoline,
	}
}

func (n Naming) withDefaults() Naming {
	d := DefaultNaming()
	if n.OriginalSuffix == "" {
		n.OriginalSuffix = d.OriginalSuffix
	}
	if n.StubSuffix == "" {
		n.StubSuffix = d.StubSuffix
	}
	if n.Trampoline == "" {
		n.Trampoline = d.Trampoline
	}
	return n
}

// MethodMatcher selects methods by declaring type full name and method name.
type MethodMatcher interface {
	MatchMethod(typeName, method string) bool
}

// Config configures the weaving engine.
type Config struct {
	// Include, when set, limits weaving to matching methods.
	Include MethodMatcher
	// Exclude skips matching methods even if they carry interceptors.
	Exclude MethodMatcher
	Logger  *zap.Logger
	// MarkerScope and Marker name the attribute base type that marks a
	// method for interception. Defaults to the host library's
	// InterceptorAttribute.
	MarkerScope string
	Marker      string
	Naming      Naming
	// KeepMVID leaves the module identity unchanged after weaving.
	KeepMVID bool
}

// Engine weaves interceptor dispatch into il modules.
//
// The engine is stateless between calls. Each call operates on an
// independent module.
type Engine struct {
	include     MethodMatcher
	exclude     MethodMatcher
	log         *zap.Logger
	markerScope string
	marker      string
	naming      Naming
	keepMVID    bool
}

// New creates a weaving engine with the given config.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = Logger()
	}
	scope, marker := cfg.MarkerScope, cfg.Marker
	if marker == "" {
		scope, marker = hostlib.Scope, hostlib.InterceptorAttribute
	}
	return &Engine{
		include:     cfg.Include,
		exclude:     cfg.Exclude,
		log:         log,
		markerScope: scope,
		marker:      marker,
		naming:      cfg.Naming.withDefaults(),
		keepMVID:    cfg.KeepMVID,
	}
}

// Woven describes one rewritten method.
type Woven struct {
	Type         string   `yaml:"type"`
	Method       string   `yaml:"method"`
	Signature    string   `yaml:"signature"`
	Original     string   `yaml:"original"`
	Holder       string   `yaml:"holder"`
	Interceptors []string `yaml:"interceptors"`
	Index        int      `yaml:"index"`
	Static       bool     `yaml:"static"`
}

// Result summarizes a weaving pass.
type Result struct {
	Module  string    `yaml:"module"`
	MVID    uuid.UUID `yaml:"mvid"`
	Methods []Woven   `yaml:"methods"`
}

// Transform parses an il binary, weaves it and encodes the result.
func (e *Engine) Transform(data []byte) ([]byte, *Result, error) {
	m, err := il.ParseModuleValidate(data)
	if err != nil {
		return nil, nil, fmt.Errorf("parse module: %w", err)
	}
	res, err := e.Weave(m)
	if err != nil {
		return nil, nil, err
	}
	out, err := m.Encode()
	if err != nil {
		return nil, nil, fmt.Errorf("encode module: %w", err)
	}
	return out, res, nil
}

// Weave rewrites m in place. Errors found before rewriting starts leave m
// unchanged; a failure of the final validation leaves it partially woven
// and the caller must discard it.
func (e *Engine) Weave(m *il.Module) (*Result, error) {
	start := time.Now()

	if t, holder := e.findWoven(m); t != nil {
		return nil, errors.AlreadyWoven(t.FullName(), holder.Name)
	}

	res := il.NewResolver(m, hostlib.Module())
	imp, err := importRuntime(res)
	if err != nil {
		return nil, err
	}

	targets, err := e.discover(m, res)
	if err != nil {
		return nil, err
	}

	result := &Result{Module: m.Name, MVID: m.MVID}
	for _, tg := range targets {
		result.Methods = append(result.Methods, e.weaveMethod(imp, tg))
	}

	if len(targets) > 0 {
		if !e.keepMVID {
			m.MVID = uuid.New()
			result.MVID = m.MVID
		}
		if err := m.Validate(); err != nil {
			return nil, errors.Wrap(errors.PhaseWeave, errors.KindInvalidData, err,
				"woven module failed validation")
		}
	}

	e.log.Info("module woven",
		zap.String("module", m.Name),
		zap.Int("methods", len(targets)),
		zap.Stringer("mvid", m.MVID),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// IsWoven reports whether m already contains generated holders.
func (e *Engine) IsWoven(m *il.Module) bool {
	t, _ := e.findWoven(m)
	return t != nil
}

// findWoven returns the first generated holder in m: a nested type named
// with the stub suffix that declares a static trampoline.
func (e *Engine) findWoven(m *il.Module) (*il.TypeDef, *il.TypeDef) {
	for _, t := range m.AllTypes() {
		for _, n := range t.Nested {
			if !hasSuffix(n.Name, e.naming.StubSuffix) {
				continue
			}
			if tr := n.Method(e.naming.Trampoline); tr != nil && tr.IsStatic() {
				return t, n
			}
		}
	}
	return nil, nil
}

func (e *Engine) weaveMethod(imp *imports, tg target) Woven {
	m := tg.method
	t := m.DeclaringType
	signature := m.Ref().String()

	base := BaseName(m.Name, tg.index)

	original := e.split(m, base+e.naming.OriginalSuffix, tg.markers)
	h := e.holder(imp, t, base+e.naming.StubSuffix)
	trampoline := e.trampoline(imp, h, original)
	e.initializer(imp, h, m, trampoline)
	e.rewrite(imp, m, h)

	names := make([]string, len(tg.markers))
	for i, a := range tg.markers {
		names[i] = a.AttributeType().Name
	}

	e.log.Debug("method woven",
		zap.String("type", t.FullName()),
		zap.String("method", m.Name),
		zap.String("holder", h.def.FullName()),
		zap.Strings("interceptors", names))

	return Woven{
		Type:         t.FullName(),
		Method:       m.Name,
		Signature:    signature,
		Original:     original.Name,
		Holder:       h.def.FullName(),
		Interceptors: names,
		Index:        tg.index,
		Static:       m.IsStatic(),
	}
}

// BaseName returns the stem of generated names: the method name, suffixed
// with its overload index unless it is the first of its group.
func BaseName(name string, index int) string {
	if index == 0 {
		return name
	}
	return name + strconv.Itoa(index)
}

func hasSuffix(s, suffix string) bool {
	return len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix
}
