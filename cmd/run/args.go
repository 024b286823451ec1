package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/weave/il"
)

var primitives = map[string]*il.TypeRef{
	"object":  il.Object(),
	"bool":    il.Bool(),
	"int32":   il.Int32(),
	"int":     il.Int32(),
	"int64":   il.Int64(),
	"long":    il.Int64(),
	"float32": il.Float32(),
	"float":   il.Float32(),
	"float64": il.Float64(),
	"double":  il.Float64(),
	"string":  il.String(),
}

// parseType parses a type name such as "int32", "string[]", "int32?" or
// "Tests.Helper". Unqualified non-primitive names resolve in scope.
func parseType(s, scope string) (*il.TypeRef, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty type name")
	case strings.HasSuffix(s, "?"):
		elem, err := parseType(s[:len(s)-1], scope)
		if err != nil {
			return nil, err
		}
		if !elem.IsValueType() {
			return nil, fmt.Errorf("%s: nullable of reference type", s)
		}
		return il.NullableOf(elem), nil
	case strings.HasSuffix(s, "[]"):
		elem, err := parseType(s[:len(s)-2], scope)
		if err != nil {
			return nil, err
		}
		return il.ArrayOf(elem), nil
	}
	if t, ok := primitives[s]; ok {
		return t, nil
	}
	return il.Named(scope, s), nil
}

// parseTypeArgs parses a comma-separated list of type arguments.
func parseTypeArgs(s, scope string) ([]*il.TypeRef, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []*il.TypeRef
	for _, part := range strings.Split(s, ",") {
		t, err := parseType(part, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// splitArgs splits a comma-separated argument list. Double-quoted items
// may contain commas.
func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var (
		out    []string
		cur    strings.Builder
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && quoted && i+1 < len(s):
			cur.WriteByte(c)
			i++
			cur.WriteByte(s[i])
		case c == '"':
			quoted = !quoted
			cur.WriteByte(c)
		case c == ',' && !quoted:
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(out, strings.TrimSpace(cur.String()))
}

// parseArg converts a command-line value to parameter type t. "null" is
// the null reference for reference and nullable parameters; a
// double-quoted string is taken literally.
func parseArg(s string, t *il.TypeRef) (any, error) {
	if s == "null" && !isValueParam(t) {
		return nil, nil
	}
	switch t.Kind {
	case il.KindNullable:
		return parseArg(s, t.Elem)
	case il.KindBool:
		return strconv.ParseBool(s)
	case il.KindInt32:
		v, err := strconv.ParseInt(s, 10, 32)
		return int32(v), err
	case il.KindInt64:
		return strconv.ParseInt(s, 10, 64)
	case il.KindFloat32:
		v, err := strconv.ParseFloat(s, 32)
		return float32(v), err
	case il.KindFloat64:
		return strconv.ParseFloat(s, 64)
	case il.KindString, il.KindObject:
		if strings.HasPrefix(s, `"`) {
			return strconv.Unquote(s)
		}
		return s, nil
	}
	return nil, fmt.Errorf("cannot pass %q as %s", s, t)
}

func isValueParam(t *il.TypeRef) bool {
	return t.Kind != il.KindNullable && t.IsValueType()
}

// parseArgs converts args to the parameter types of params.
func parseArgs(args []string, params []*il.TypeRef) ([]any, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("%d arguments for %d parameters", len(args), len(params))
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, err := parseArg(a, params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
