package sandbox

import (
	"context"
	"testing"

	"github.com/Knetic/govaluate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileForTest(t *testing.T, source string, extra map[string]govaluate.ExpressionFunction) *Program {
	t.Helper()
	functions := builtins(&outputBuffer{})
	for name, fn := range extra {
		functions[name] = fn
	}
	prog, err := Compile(source, functions)
	require.NoError(t, err)
	return prog
}

func TestCompile_RequiresEntryFunction(t *testing.T) {
	_, err := Compile("x = 1", builtins(&outputBuffer{}))
	require.Error(t, err)
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Msg, "execute_workflow")
}

func TestCompile_RejectsWrongEntryName(t *testing.T) {
	src := `fn run_workflow(user_input)
	return user_input
end`
	_, err := Compile(src, builtins(&outputBuffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry must be execute_workflow")
}

func TestCompile_RejectsStatementOutsideEntry(t *testing.T) {
	src := `x = 1
fn execute_workflow(user_input)
	return user_input
end`
	_, err := Compile(src, builtins(&outputBuffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside entry function")
}

func TestCompile_RejectsMissingEnd(t *testing.T) {
	src := `fn execute_workflow(user_input)
	x = 1`
	_, err := Compile(src, builtins(&outputBuffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing end")
}

func TestCompile_RejectsUnknownFunction(t *testing.T) {
	src := `fn execute_workflow(user_input)
	return read_file("/etc/passwd")
end`
	_, err := Compile(src, builtins(&outputBuffer{}))
	require.Error(t, err)
	var cerr *CompileError
	assert.ErrorAs(t, err, &cerr)
}

func TestProgram_AssignAndReturn(t *testing.T) {
	src := `fn execute_workflow(user_input)
	# build a greeting
	greeting = concat("hello ", user_input)
	return upper(greeting)
end`
	prog := compileForTest(t, src, nil)
	val, err := prog.Run(context.Background(), map[string]interface{}{"user_input": "world"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", val)
}

func TestProgram_IfElse(t *testing.T) {
	src := `fn execute_workflow(user_input)
	if contains(user_input, "yes")
		return "affirmative"
	else
		return "negative"
	end
end`
	prog := compileForTest(t, src, nil)

	val, err := prog.Run(context.Background(), map[string]interface{}{"user_input": "yes please"})
	require.NoError(t, err)
	assert.Equal(t, "affirmative", val)

	val, err = prog.Run(context.Background(), map[string]interface{}{"user_input": "nope"})
	require.NoError(t, err)
	assert.Equal(t, "negative", val)
}

func TestProgram_IfConditionMustBeBool(t *testing.T) {
	src := `fn execute_workflow(user_input)
	if user_input
		return "a"
	end
	return "b"
end`
	prog := compileForTest(t, src, nil)
	_, err := prog.Run(context.Background(), map[string]interface{}{"user_input": "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a boolean")
}

func TestProgram_ForLoopPreservesOrder(t *testing.T) {
	var seen []interface{}
	record := map[string]govaluate.ExpressionFunction{
		"record": func(args ...interface{}) (interface{}, error) {
			seen = append(seen, args[0])
			return "", nil
		},
	}
	src := `fn execute_workflow(user_input)
	for id in attached_file_ids
		record(id)
	end
	return "done"
end`
	prog := compileForTest(t, src, record)
	val, err := prog.Run(context.Background(), map[string]interface{}{
		"user_input":        "",
		"attached_file_ids": []interface{}{float64(5), float64(3), float64(9)},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", val)
	assert.Equal(t, []interface{}{float64(5), float64(3), float64(9)}, seen)
}

func TestProgram_ForRequiresList(t *testing.T) {
	src := `fn execute_workflow(user_input)
	for c in user_input
		print(c)
	end
	return ""
end`
	prog := compileForTest(t, src, nil)
	_, err := prog.Run(context.Background(), map[string]interface{}{"user_input": "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot iterate")
}

func TestProgram_ReturnInsideLoop(t *testing.T) {
	src := `fn execute_workflow(user_input)
	for item in split(user_input, ",")
		if starts_with(item, "x")
			return item
		end
	end
	return "none"
end`
	prog := compileForTest(t, src, nil)
	val, err := prog.Run(context.Background(), map[string]interface{}{"user_input": "a,xb,c"})
	require.NoError(t, err)
	assert.Equal(t, "xb", val)
}

func TestProgram_NoReturnYieldsEmptyString(t *testing.T) {
	src := `fn execute_workflow(user_input)
	x = 1
end`
	prog := compileForTest(t, src, nil)
	val, err := prog.Run(context.Background(), map[string]interface{}{"user_input": ""})
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestStripComment_RespectsQuotes(t *testing.T) {
	assert.Equal(t, `x = "a # b"`, stripComment(`x = "a # b"`))
	assert.Equal(t, "x = 1 ", stripComment("x = 1 # comment"))
}

func TestSplitAssignment(t *testing.T) {
	name, rhs, ok := splitAssignment(`result = search("q")`)
	require.True(t, ok)
	assert.Equal(t, "result", name)
	assert.Equal(t, `search("q")`, rhs)

	_, _, ok = splitAssignment(`a == b`)
	assert.False(t, ok)

	_, _, ok = splitAssignment(`len(a) = 1`)
	assert.False(t, ok)
}
