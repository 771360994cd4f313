package sandbox

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"
)

// maxOutputBytes caps the text a single run may accumulate through print.
const maxOutputBytes = 64 * 1024

// outputBuffer collects print output for one run. It is safe for
// concurrent use because the run goroutine may still be writing when the
// timeout path reads the partial output.
type outputBuffer struct {
	mu        sync.Mutex
	b         strings.Builder
	truncated bool
}

func (o *outputBuffer) writeLine(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.truncated {
		return
	}
	if o.b.Len()+len(s)+1 > maxOutputBytes {
		o.truncated = true
		o.b.WriteString("... output truncated\n")
		return
	}
	o.b.WriteString(s)
	o.b.WriteByte('\n')
}

func (o *outputBuffer) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.String()
}

// List boxes a list value crossing an expression boundary. govaluate
// flattens a slice-valued function argument into variadic args, so lists
// travel through expressions inside this wrapper and are unwrapped by the
// list-accepting builtins and by loop iteration.
type List struct {
	Items []interface{}
}

func asList(v interface{}) ([]interface{}, bool) {
	l, ok := v.(List)
	if !ok {
		return nil, false
	}
	return l.Items, true
}

// builtins returns the language's built-in function map for one run, with
// print bound to the run's output buffer. The returned map, merged with
// the per-execution operations, is the complete set of callables a script
// can reach.
func builtins(out *outputBuffer) map[string]govaluate.ExpressionFunction {
	return map[string]govaluate.ExpressionFunction{
		"print": func(args ...interface{}) (interface{}, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = stringify(a)
			}
			out.writeLine(strings.Join(parts, " "))
			return "", nil
		},
		"len": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("len expects 1 argument, got %d", len(args))
			}
			if s, ok := args[0].(string); ok {
				return float64(len(s)), nil
			}
			if items, ok := asList(args[0]); ok {
				return float64(len(items)), nil
			}
			return nil, fmt.Errorf("len expects a string or list, got %T", args[0])
		},
		"str": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("str expects 1 argument, got %d", len(args))
			}
			return stringify(args[0]), nil
		},
		"num": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("num expects 1 argument, got %d", len(args))
			}
			switch v := args[0].(type) {
			case float64:
				return v, nil
			case string:
				f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil {
					return nil, fmt.Errorf("num: cannot parse %q", v)
				}
				return f, nil
			default:
				return nil, fmt.Errorf("num expects a string or number, got %T", args[0])
			}
		},
		"at": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("at expects 2 arguments, got %d", len(args))
			}
			list, ok := asList(args[0])
			if !ok {
				return nil, fmt.Errorf("at expects a list, got %T", args[0])
			}
			idx, ok := args[1].(float64)
			if !ok {
				return nil, fmt.Errorf("at expects a numeric index, got %T", args[1])
			}
			i := int(idx)
			if i < 0 || i >= len(list) {
				return nil, fmt.Errorf("at: index %d out of range for list of %d", i, len(list))
			}
			return list[i], nil
		},
		"first": func(args ...interface{}) (interface{}, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("first expects 1 argument, got %d", len(args))
			}
			list, ok := asList(args[0])
			if !ok {
				return nil, fmt.Errorf("first expects a list, got %T", args[0])
			}
			if len(list) == 0 {
				return nil, fmt.Errorf("first: list is empty")
			}
			return list[0], nil
		},
		"contains": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
			}
			if s, ok := args[0].(string); ok {
				sub, ok := args[1].(string)
				if !ok {
					return nil, fmt.Errorf("contains on a string expects a string, got %T", args[1])
				}
				return strings.Contains(s, sub), nil
			}
			if list, ok := asList(args[0]); ok {
				for _, item := range list {
					if item == args[1] {
						return true, nil
					}
				}
				return false, nil
			}
			return nil, fmt.Errorf("contains expects a string or list, got %T", args[0])
		},
		"lower":       stringFunc("lower", strings.ToLower),
		"upper":       stringFunc("upper", strings.ToUpper),
		"trim":        stringFunc("trim", strings.TrimSpace),
		"starts_with": stringPairFunc("starts_with", strings.HasPrefix),
		"ends_with":   stringPairFunc("ends_with", strings.HasSuffix),
		"split": func(args ...interface{}) (interface{}, error) {
			s, sep, err := twoStrings("split", args)
			if err != nil {
				return nil, err
			}
			parts := strings.Split(s, sep)
			out := make([]interface{}, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return List{Items: out}, nil
		},
		"join": func(args ...interface{}) (interface{}, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("join expects 2 arguments, got %d", len(args))
			}
			list, ok := asList(args[0])
			if !ok {
				return nil, fmt.Errorf("join expects a list, got %T", args[0])
			}
			sep, ok := args[1].(string)
			if !ok {
				return nil, fmt.Errorf("join expects a string separator, got %T", args[1])
			}
			parts := make([]string, len(list))
			for i, item := range list {
				parts[i] = stringify(item)
			}
			return strings.Join(parts, sep), nil
		},
		"replace": func(args ...interface{}) (interface{}, error) {
			if len(args) != 3 {
				return nil, fmt.Errorf("replace expects 3 arguments, got %d", len(args))
			}
			s, ok1 := args[0].(string)
			old, ok2 := args[1].(string)
			nw, ok3 := args[2].(string)
			if !ok1 || !ok2 || !ok3 {
				return nil, fmt.Errorf("replace expects three strings")
			}
			return strings.ReplaceAll(s, old, nw), nil
		},
		"concat": func(args ...interface{}) (interface{}, error) {
			var b strings.Builder
			for _, a := range args {
				b.WriteString(stringify(a))
			}
			return b.String(), nil
		},
	}
}

func stringFunc(name string, fn func(string) string) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 argument, got %d", name, len(args))
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%s expects a string, got %T", name, args[0])
		}
		return fn(s), nil
	}
}

func stringPairFunc(name string, fn func(string, string) bool) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		s, t, err := twoStrings(name, args)
		if err != nil {
			return nil, err
		}
		return fn(s, t), nil
	}
}

func twoStrings(name string, args []interface{}) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("%s expects 2 arguments, got %d", name, len(args))
	}
	a, ok1 := args[0].(string)
	b, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("%s expects two strings", name)
	}
	return a, b, nil
}

// stringify renders a script value the way print and str show it. Numbers
// drop the trailing .0 that float64 formatting would otherwise produce for
// integral values.
func stringify(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case bool:
		return strconv.FormatBool(vv)
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(vv, 10)
	case int:
		return strconv.Itoa(vv)
	case []interface{}:
		parts := make([]string, len(vv))
		for i, item := range vv {
			parts[i] = stringify(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case List:
		return stringify(vv.Items)
	default:
		return fmt.Sprintf("%v", vv)
	}
}
