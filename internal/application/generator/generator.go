package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// CodeGenerator produces workflow script source from a natural-language
// description.
type CodeGenerator interface {
	Generate(ctx context.Context, name, description string) (string, error)
}

// ChatCompleter is the slice of the document API used for generation.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, prompt, model string) (string, error)
}

// ChatGenerator generates workflow scripts through chat completions.
type ChatGenerator struct {
	completer ChatCompleter
	model     string
	logger    zerolog.Logger
}

func NewChatGenerator(completer ChatCompleter, model string, logger zerolog.Logger) *ChatGenerator {
	return &ChatGenerator{
		completer: completer,
		model:     model,
		logger:    logger.With().Str("service", "generator").Logger(),
	}
}

const promptTemplate = `You write workflow scripts in a small expression language.

Rules:
- The script must define exactly one function:
  fn execute_workflow(user_input)
      ...
  end
- Statements: assignments (name = expr), bare expressions, return expr,
  if expr / else / end, for name in expr / end. Comments start with #.
- The list of file ids attached to the run is available as attached_file_ids.
- Available operations:
  search(query)                 search across attached documents, returns the answer text
  analyze(query)                long-form analysis of attached documents, returns the analysis text
  ask_document(file_id, query)  ask a question about one document
  chat(prompt)                  free-form chat completion
  filter_chunks(query)          rank the attached documents' chunks against a query
  query_chunks(query)           semantic search over the document collection
  get_document(file_id)         fetch document metadata
  get_document_chunks(file_id)  list a document's ingested chunks
  wait_until_ready(file_id)     block until a document finishes ingesting
  print(values...)              log intermediate values
  plus: len, str, num, at, first, contains, lower, upper, trim, split,
  join, replace, starts_with, ends_with, concat
- Always end with a return statement producing the final answer string.
- Output ONLY the script, no prose and no code fences.

Workflow name: %s
Workflow description: %s`

// Generate asks the model for a script and strips any code fences it
// wrapped around the answer despite instructions.
func (g *ChatGenerator) Generate(ctx context.Context, name, description string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, name, description)

	raw, err := g.completer.ChatCompletion(ctx, prompt, g.model)
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}

	code := stripFences(raw)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("code generation returned an empty script")
	}

	g.logger.Info().
		Str("workflow_name", name).
		Int("script_bytes", len(code)).
		Msg("workflow code generated")

	return code, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
