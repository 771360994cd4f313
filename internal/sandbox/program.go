package sandbox

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"
)

// EntryFunctionName is the function every workflow script must define.
const EntryFunctionName = "execute_workflow"

// EntryParamName is the single parameter of the entry function.
const EntryParamName = "user_input"

// CompileError is a syntax or structure error in a workflow script. It is
// reported before the script enters the running state; the workflow should
// be regenerated, not retried as-is.
type CompileError struct {
	Line int
	Msg  string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("compile error at line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("compile error: %s", e.Msg)
}

type stmtKind int

const (
	stmtAssign stmtKind = iota
	stmtExpr
	stmtReturn
	stmtIf
	stmtFor
)

type stmt struct {
	kind stmtKind
	line int
	name string // assignment target or loop variable
	expr *govaluate.EvaluableExpression
	body []stmt
	alt  []stmt // else branch
}

// Program is a compiled workflow script. Expressions are bound to the
// function map supplied at compile time; identifiers resolve only against
// the parameter scope built per run. Nothing outside those two maps is
// reachable from script code.
type Program struct {
	body []stmt
}

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	entryRe = regexp.MustCompile(`^fn\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)$`)
	forRe   = regexp.MustCompile(`^for\s+([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(.+)$`)
)

type scriptLine struct {
	num  int
	text string
}

// Compile parses a workflow script against the given function map. The
// script must define exactly one entry block:
//
//	fn execute_workflow(user_input)
//	    ...
//	end
//
// Statements inside the block are assignments (name = expr), bare
// expressions, return expr, if expr / else / end, and for name in expr /
// end. Every expression must parse under the supplied functions.
func Compile(source string, functions map[string]govaluate.ExpressionFunction) (*Program, error) {
	var lines []scriptLine
	for i, raw := range strings.Split(source, "\n") {
		text := strings.TrimSpace(stripComment(raw))
		if text == "" {
			continue
		}
		lines = append(lines, scriptLine{num: i + 1, text: text})
	}
	if len(lines) == 0 {
		return nil, &CompileError{Msg: "empty script"}
	}

	start := -1
	for i, ln := range lines {
		m := entryRe.FindStringSubmatch(ln.text)
		if m == nil {
			if strings.HasPrefix(ln.text, "fn ") || strings.HasPrefix(ln.text, "fn(") {
				return nil, &CompileError{Line: ln.num, Msg: "malformed function header"}
			}
			continue
		}
		if m[1] != EntryFunctionName {
			return nil, &CompileError{Line: ln.num, Msg: fmt.Sprintf("unexpected function %q, entry must be %s", m[1], EntryFunctionName)}
		}
		if m[2] != EntryParamName {
			return nil, &CompileError{Line: ln.num, Msg: fmt.Sprintf("entry parameter must be %s", EntryParamName)}
		}
		if start >= 0 {
			return nil, &CompileError{Line: ln.num, Msg: "duplicate entry function"}
		}
		start = i
	}
	if start < 0 {
		return nil, &CompileError{Msg: fmt.Sprintf("script does not define fn %s(%s)", EntryFunctionName, EntryParamName)}
	}
	if start > 0 {
		return nil, &CompileError{Line: lines[0].num, Msg: "statement outside entry function"}
	}

	p := &parser{lines: lines, pos: start + 1, functions: functions}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if p.pos < len(lines) {
		return nil, &CompileError{Line: lines[p.pos].num, Msg: "statement outside entry function"}
	}

	return &Program{body: body}, nil
}

type parser struct {
	lines     []scriptLine
	pos       int
	functions map[string]govaluate.ExpressionFunction
}

// parseBlock consumes statements until the matching "end".
func (p *parser) parseBlock() ([]stmt, error) {
	var stmts []stmt
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		switch ln.text {
		case "end":
			p.pos++
			return stmts, nil
		case "else":
			return nil, &CompileError{Line: ln.num, Msg: "else without matching if"}
		}
		s, err := p.parseOne()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, *s)
	}
	return nil, &CompileError{Line: p.lines[len(p.lines)-1].num, Msg: "missing end"}
}

// parseIfBody consumes an if body up to its end, handling an optional
// else branch at the same nesting level.
func (p *parser) parseIfBody() (body, alt []stmt, err error) {
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		if ln.text == "else" {
			p.pos++
			alt, err = p.parseBlock()
			return body, alt, err
		}
		if ln.text == "end" {
			p.pos++
			return body, nil, nil
		}
		s, perr := p.parseOne()
		if perr != nil {
			return nil, nil, perr
		}
		body = append(body, *s)
	}
	return nil, nil, &CompileError{Line: p.lines[len(p.lines)-1].num, Msg: "missing end"}
}

// parseOne parses a single statement, including nested blocks.
func (p *parser) parseOne() (*stmt, error) {
	ln := p.lines[p.pos]
	text := ln.text

	switch {
	case text == "return" || strings.HasPrefix(text, "return "):
		rest := strings.TrimSpace(strings.TrimPrefix(text, "return"))
		if rest == "" {
			return nil, &CompileError{Line: ln.num, Msg: "return requires an expression"}
		}
		expr, err := p.compileExpr(rest, ln.num)
		if err != nil {
			return nil, err
		}
		p.pos++
		return &stmt{kind: stmtReturn, line: ln.num, expr: expr}, nil

	case strings.HasPrefix(text, "if ") || strings.HasPrefix(text, "if("):
		cond := strings.TrimSpace(strings.TrimPrefix(text, "if"))
		expr, err := p.compileExpr(cond, ln.num)
		if err != nil {
			return nil, err
		}
		p.pos++
		body, alt, err := p.parseIfBody()
		if err != nil {
			return nil, err
		}
		return &stmt{kind: stmtIf, line: ln.num, expr: expr, body: body, alt: alt}, nil

	case strings.HasPrefix(text, "for "):
		m := forRe.FindStringSubmatch(text)
		if m == nil {
			return nil, &CompileError{Line: ln.num, Msg: "malformed for loop, expected: for name in expr"}
		}
		expr, err := p.compileExpr(m[2], ln.num)
		if err != nil {
			return nil, err
		}
		p.pos++
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &stmt{kind: stmtFor, line: ln.num, name: m[1], expr: expr, body: body}, nil

	default:
		if name, rhs, ok := splitAssignment(text); ok {
			expr, err := p.compileExpr(rhs, ln.num)
			if err != nil {
				return nil, err
			}
			p.pos++
			return &stmt{kind: stmtAssign, line: ln.num, name: name, expr: expr}, nil
		}
		expr, err := p.compileExpr(text, ln.num)
		if err != nil {
			return nil, err
		}
		p.pos++
		return &stmt{kind: stmtExpr, line: ln.num, expr: expr}, nil
	}
}

func (p *parser) compileExpr(text string, line int) (*govaluate.EvaluableExpression, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(text, p.functions)
	if err != nil {
		return nil, &CompileError{Line: line, Msg: err.Error()}
	}
	return expr, nil
}

// splitAssignment detects "name = expr". Comparison operators do not
// qualify: the character after the first '=' must not be '=' and the text
// before it must be a bare identifier.
func splitAssignment(text string) (name, rhs string, ok bool) {
	i := strings.IndexByte(text, '=')
	if i <= 0 || i+1 >= len(text) || text[i+1] == '=' {
		return "", "", false
	}
	name = strings.TrimSpace(text[:i])
	if !identRe.MatchString(name) {
		return "", "", false
	}
	return name, strings.TrimSpace(text[i+1:]), true
}

// stripComment removes a trailing # comment, respecting quoted strings.
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '#':
			return line[:i]
		}
	}
	return line
}

// Run executes the program body against the given scope. The scope must
// already hold the injected inputs; assignments extend it. Execution
// checks ctx between statements so cancellation takes effect even between
// outbound calls.
func (prog *Program) Run(ctx context.Context, scope map[string]interface{}) (interface{}, error) {
	returned, value, err := runStmts(ctx, prog.body, scope)
	if err != nil {
		return nil, err
	}
	if !returned {
		return "", nil
	}
	return value, nil
}

func runStmts(ctx context.Context, stmts []stmt, scope map[string]interface{}) (bool, interface{}, error) {
	for i := range stmts {
		s := &stmts[i]
		if err := ctx.Err(); err != nil {
			return false, nil, err
		}
		switch s.kind {
		case stmtAssign:
			v, err := s.expr.Evaluate(scope)
			if err != nil {
				return false, nil, fmt.Errorf("line %d: %w", s.line, err)
			}
			scope[s.name] = v

		case stmtExpr:
			if _, err := s.expr.Evaluate(scope); err != nil {
				return false, nil, fmt.Errorf("line %d: %w", s.line, err)
			}

		case stmtReturn:
			v, err := s.expr.Evaluate(scope)
			if err != nil {
				return false, nil, fmt.Errorf("line %d: %w", s.line, err)
			}
			return true, v, nil

		case stmtIf:
			v, err := s.expr.Evaluate(scope)
			if err != nil {
				return false, nil, fmt.Errorf("line %d: %w", s.line, err)
			}
			cond, ok := v.(bool)
			if !ok {
				return false, nil, fmt.Errorf("line %d: if condition is not a boolean", s.line)
			}
			branch := s.body
			if !cond {
				branch = s.alt
			}
			returned, val, err := runStmts(ctx, branch, scope)
			if err != nil || returned {
				return returned, val, err
			}

		case stmtFor:
			v, err := s.expr.Evaluate(scope)
			if err != nil {
				return false, nil, fmt.Errorf("line %d: %w", s.line, err)
			}
			items, err := toList(v)
			if err != nil {
				return false, nil, fmt.Errorf("line %d: %v", s.line, err)
			}
			for _, item := range items {
				if err := ctx.Err(); err != nil {
					return false, nil, err
				}
				scope[s.name] = item
				returned, val, err := runStmts(ctx, s.body, scope)
				if err != nil || returned {
					return returned, val, err
				}
			}
		}
	}
	return false, nil, nil
}

// toList coerces a value to a finite slice; iteration is only allowed
// over lists.
func toList(v interface{}) ([]interface{}, error) {
	switch vv := v.(type) {
	case List:
		return vv.Items, nil
	case []interface{}:
		return vv, nil
	case []string:
		out := make([]interface{}, len(vv))
		for i, s := range vv {
			out[i] = s
		}
		return out, nil
	case []float64:
		out := make([]interface{}, len(vv))
		for i, f := range vv {
			out[i] = f
		}
		return out, nil
	case []int64:
		out := make([]interface{}, len(vv))
		for i, n := range vv {
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot iterate over %T, expected a list", v)
	}
}
