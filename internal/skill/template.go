package skill

import (
	"fmt"
	"regexp"
	"strings"
)

var exprPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// scope is the interpolation environment: {inputs, steps}.
type scope struct {
	Inputs map[string]any
	Steps  map[string]any
}

func (s scope) asMap() map[string]any {
	return map[string]any{"inputs": s.Inputs, "steps": s.Steps}
}

// resolvePath walks a dotted path ("steps.count" / "inputs.name.first")
// against scope, returning (value, found).
func resolvePath(root map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = root
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// interpolate replaces {{path}} expressions inside value. If value is a
// string consisting of a single expression, the resolved value (any type)
// replaces it wholesale; otherwise matches are stringified and spliced.
// Objects and arrays are interpolated recursively. Unresolved paths yield
// undefined, rendered as empty string in inline splices.
func interpolate(value any, sc scope) any {
	root := sc.asMap()
	switch v := value.(type) {
	case string:
		return interpolateString(v, root)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = interpolate(val, sc)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = interpolate(val, sc)
		}
		return out
	default:
		return value
	}
}

func interpolateString(s string, root map[string]any) any {
	matches := exprPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := s[matches[0][2]:matches[0][3]]
		val, found := resolvePath(root, path)
		if !found {
			return nil
		}
		return val
	}

	return exprPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := exprPattern.FindStringSubmatch(m)
		path := sub[1]
		val, found := resolvePath(root, path)
		if !found || val == nil {
			return ""
		}
		return stringify(val)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// isFalsy implements the condition-skip rule: false, "false", "0", null,
// undefined are all falsy.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == "false" || t == "0"
	default:
		return false
	}
}
