package weaver

import (
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/weave/errors"
	"github.com/wippyai/weave/weaver/internal/engine"
)

// Woven describes one rewritten method: its declaring type, its overload
// index, the generated original and holder, and the declared interceptor
// attribute types.
type Woven = engine.Woven

// Report summarizes a weaving pass.
type Report struct {
	Module  string    `yaml:"module"`
	MVID    uuid.UUID `yaml:"mvid"`
	Methods []Woven   `yaml:"methods"`
}

func newReport(res *engine.Result) *Report {
	return &Report{Module: res.Module, MVID: res.MVID, Methods: res.Methods}
}

// Method returns the entry for type and method with the given overload
// index.
func (r *Report) Method(typeName, method string, index int) (Woven, bool) {
	for _, w := range r.Methods {
		if w.Type == typeName && w.Method == method && w.Index == index {
			return w, true
		}
	}
	return Woven{}, false
}

// WriteYAML writes the report as a YAML document.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode weave report")
	}
	return enc.Close()
}

// ReadReport decodes a report written by WriteYAML.
func ReadReport(rd io.Reader) (*Report, error) {
	var r Report
	if err := yaml.NewDecoder(rd).Decode(&r); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode weave report")
	}
	return &r, nil
}

func (r *Report) save(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(path).
			Detail("cannot create weave report").
			Cause(err).
			Build()
	}
	if err := r.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
