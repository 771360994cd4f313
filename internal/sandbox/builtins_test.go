package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringify(t *testing.T) {
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "hi", stringify("hi"))
	assert.Equal(t, "true", stringify(true))
	assert.Equal(t, "3", stringify(float64(3)))
	assert.Equal(t, "3.5", stringify(3.5))
	assert.Equal(t, "[a, 1, true]", stringify([]interface{}{"a", float64(1), true}))
	assert.Equal(t, "[a, b]", stringify(List{Items: []interface{}{"a", "b"}}))
}

func TestBuiltins_Len(t *testing.T) {
	fns := builtins(&outputBuffer{})

	v, err := fns["len"]("abc")
	require.NoError(t, err)
	assert.Equal(t, float64(3), v)

	v, err = fns["len"](List{Items: []interface{}{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, float64(2), v)

	_, err = fns["len"](1.0)
	assert.Error(t, err)
}

func TestBuiltins_Num(t *testing.T) {
	fns := builtins(&outputBuffer{})

	v, err := fns["num"](" 42.5 ")
	require.NoError(t, err)
	assert.Equal(t, 42.5, v)

	_, err = fns["num"]("not a number")
	assert.Error(t, err)
}

func TestBuiltins_ListAccess(t *testing.T) {
	fns := builtins(&outputBuffer{})
	list := List{Items: []interface{}{"a", "b", "c"}}

	v, err := fns["at"](list, float64(1))
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = fns["at"](list, float64(3))
	assert.Error(t, err)

	v, err = fns["first"](list)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = fns["first"](List{})
	assert.Error(t, err)
}

func TestBuiltins_Contains(t *testing.T) {
	fns := builtins(&outputBuffer{})

	v, err := fns["contains"]("haystack", "stack")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = fns["contains"](List{Items: []interface{}{"a", "b"}}, "b")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = fns["contains"](List{Items: []interface{}{"a"}}, "z")
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestBuiltins_SplitJoin(t *testing.T) {
	fns := builtins(&outputBuffer{})

	v, err := fns["split"]("a,b,c", ",")
	require.NoError(t, err)
	assert.Equal(t, List{Items: []interface{}{"a", "b", "c"}}, v)

	v, err = fns["join"](List{Items: []interface{}{"a", "b", float64(3)}}, "-")
	require.NoError(t, err)
	assert.Equal(t, "a-b-3", v)
}

func TestPrint_WritesToBuffer(t *testing.T) {
	out := &outputBuffer{}
	fns := builtins(out)

	_, err := fns["print"]("status:", float64(200))
	require.NoError(t, err)
	assert.Equal(t, "status: 200\n", out.String())
}

func TestOutputBuffer_Truncates(t *testing.T) {
	out := &outputBuffer{}
	line := strings.Repeat("x", 1024)
	for i := 0; i < 100; i++ {
		out.writeLine(line)
	}
	s := out.String()
	assert.LessOrEqual(t, len(s), maxOutputBytes)
	assert.Contains(t, s, "output truncated")
}
