package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	response string
	err      error
	prompt   string
}

func (s *stubCompleter) ChatCompletion(_ context.Context, prompt, _ string) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func TestGenerate_PassesNameAndDescription(t *testing.T) {
	c := &stubCompleter{response: "fn execute_workflow(user_input)\n\treturn user_input\nend"}
	g := NewChatGenerator(c, "alfred-4.2", zerolog.Nop())

	code, err := g.Generate(context.Background(), "invoice-total", "extract the invoice total")
	require.NoError(t, err)
	assert.Contains(t, code, "execute_workflow")
	assert.Contains(t, c.prompt, "invoice-total")
	assert.Contains(t, c.prompt, "extract the invoice total")
}

func TestGenerate_StripsCodeFences(t *testing.T) {
	c := &stubCompleter{response: "```\nfn execute_workflow(user_input)\n\treturn user_input\nend\n```"}
	g := NewChatGenerator(c, "", zerolog.Nop())

	code, err := g.Generate(context.Background(), "n", "d")
	require.NoError(t, err)
	assert.True(t, len(code) > 0)
	assert.NotContains(t, code, "```")
}

func TestGenerate_StripsLanguageTag(t *testing.T) {
	c := &stubCompleter{response: "```workflow\nreturn 1\n```"}
	g := NewChatGenerator(c, "", zerolog.Nop())

	code, err := g.Generate(context.Background(), "n", "d")
	require.NoError(t, err)
	assert.Equal(t, "return 1", code)
}

func TestGenerate_CompletionError(t *testing.T) {
	c := &stubCompleter{err: errors.New("rate limited")}
	g := NewChatGenerator(c, "", zerolog.Nop())

	_, err := g.Generate(context.Background(), "n", "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerate_EmptyScriptRejected(t *testing.T) {
	c := &stubCompleter{response: "   \n"}
	g := NewChatGenerator(c, "", zerolog.Nop())

	_, err := g.Generate(context.Background(), "n", "d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty script")
}
