package weaver

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/il"
	"github.com/wippyai/weave/weaver/internal/engine"
)

// MethodMatcher selects methods by declaring type full name and method name.
type MethodMatcher = engine.MethodMatcher

// Naming controls the names of generated members.
type Naming = engine.Naming

// DefaultNaming returns the conventional generated names: M_original,
// M_stub and CallOriginal.
func DefaultNaming() Naming { return engine.DefaultNaming() }

// Config configures weaving.
type Config struct {
	// Include limits weaving to matching methods. IncludePatterns are
	// wildcard patterns merged with it.
	Include         MethodMatcher
	IncludePatterns []string
	// Exclude skips matching methods. ExcludePatterns are merged with it.
	Exclude         MethodMatcher
	ExcludePatterns []string

	Logger *zap.Logger

	// MarkerScope and Marker name the attribute base type. Empty Marker
	// selects Weave.Runtime.InterceptorAttribute.
	MarkerScope string
	Marker      string

	Naming Naming

	// KeepMVID leaves the module identity unchanged.
	KeepMVID bool

	// ReportPath, when set, receives the YAML weave report.
	ReportPath string
}

func (cfg Config) engine() *engine.Engine {
	scope := cfg.MarkerScope
	if cfg.Marker != "" && scope == "" {
		scope = il.CoreScope
	}
	return engine.New(engine.Config{
		Include:     combine(cfg.Include, cfg.IncludePatterns),
		Exclude:     combine(cfg.Exclude, cfg.ExcludePatterns),
		Logger:      cfg.Logger,
		MarkerScope: scope,
		Marker:      cfg.Marker,
		Naming:      cfg.Naming,
		KeepMVID:    cfg.KeepMVID,
	})
}

// Weave weaves an encoded module and returns the encoded result.
//
// Every method carrying an attribute derived from the marker is split into
// a private original and a dispatching body that routes the call through
// its interceptors. The input is not modified.
func Weave(data []byte, cfg Config) ([]byte, *Report, error) {
	out, res, err := cfg.engine().Transform(data)
	if err != nil {
		return nil, nil, err
	}
	report := newReport(res)
	if err := report.save(cfg.ReportPath); err != nil {
		return nil, nil, err
	}
	return out, report, nil
}

// WeaveModule weaves m in place.
func WeaveModule(m *il.Module, cfg Config) (*Report, error) {
	res, err := cfg.engine().Weave(m)
	if err != nil {
		return nil, err
	}
	report := newReport(res)
	if err := report.save(cfg.ReportPath); err != nil {
		return nil, err
	}
	return report, nil
}

// IsWoven reports whether m contains holders generated with the default
// naming.
func IsWoven(m *il.Module) bool {
	return engine.New(engine.Config{}).IsWoven(m)
}

// ProcessFile weaves the module at src and writes it to dst. The output is
// written to a temporary file in dst's directory and renamed into place,
// so dst is untouched when weaving fails.
func ProcessFile(src, dst string, cfg Config) (*Report, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindNotFound).
			Path(src).
			Detail("cannot read module").
			Cause(err).
			Build()
	}

	out, report, err := Weave(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}

	if err := writeAtomic(dst, out); err != nil {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(dst).
			Detail("cannot write module").
			Cause(err).
			Build()
	}
	return report, nil
}

func writeAtomic(dst string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
