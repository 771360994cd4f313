package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Isydoria/lighton-workflow-generator/internal/application/generator"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
	"github.com/Isydoria/lighton-workflow-generator/internal/sandbox"
)

// Service handles workflow creation and lifecycle operations.
type Service struct {
	repo    workflow.Repository
	gen     generator.CodeGenerator
	opNames []string
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewService creates a workflow service. opNames is the set of operations
// generated scripts may call; it is used to validate code at creation
// time, before any run binds real implementations.
func NewService(repo workflow.Repository, gen generator.CodeGenerator, opNames []string, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		gen:     gen,
		opNames: opNames,
		ttl:     ttl,
		logger:  logger.With().Str("service", "workflow").Logger(),
	}
}

// Create builds a workflow from a name and description: generate code,
// validate it compiles, and persist the result. Generation or validation
// failures are recorded on the workflow as FAILED rather than returned as
// errors, so callers can inspect and regenerate.
func (s *Service) Create(ctx context.Context, name, description string) (*workflow.Workflow, error) {
	wf := workflow.New(name, description)
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	s.generate(ctx, wf)

	if err := s.repo.Put(ctx, wf, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store workflow: %w", err)
	}

	s.logger.Info().
		Str("workflow_id", wf.WorkflowID.String()).
		Str("status", string(wf.Status)).
		Msg("workflow created")

	return wf, nil
}

// Regenerate re-runs code generation for an existing workflow, replacing
// its code and re-deriving its status.
func (s *Service) Regenerate(ctx context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	wf, err := s.repo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := wf.Reset(); err != nil {
		return nil, err
	}
	s.generate(ctx, wf)

	if err := s.repo.Put(ctx, wf, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store workflow: %w", err)
	}

	s.logger.Info().
		Str("workflow_id", wf.WorkflowID.String()).
		Str("status", string(wf.Status)).
		Msg("workflow regenerated")

	return wf, nil
}

// generate fills in the workflow's code and derives READY or FAILED.
// State transitions from DRAFT cannot fail, so the Mark errors are
// ignored.
func (s *Service) generate(ctx context.Context, wf *workflow.Workflow) {
	code, err := s.gen.Generate(ctx, wf.Name, wf.Description)
	if err != nil {
		s.logger.Warn().Err(err).Str("workflow_id", wf.WorkflowID.String()).Msg("code generation failed")
		_ = wf.MarkFailed(err.Error())
		return
	}
	if err := sandbox.Validate(code, s.opNames); err != nil {
		s.logger.Warn().Err(err).Str("workflow_id", wf.WorkflowID.String()).Msg("generated code failed validation")
		wf.GeneratedCode = code
		_ = wf.MarkFailed(err.Error())
		return
	}
	_ = wf.MarkReady(code)
}

// Get retrieves a workflow by id.
func (s *Service) Get(ctx context.Context, workflowID uuid.UUID) (*workflow.Workflow, error) {
	return s.repo.GetByID(ctx, workflowID)
}

// List returns stored workflows, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*workflow.Workflow, error) {
	return s.repo.List(ctx, limit, offset)
}

// Delete removes a workflow.
func (s *Service) Delete(ctx context.Context, workflowID uuid.UUID) error {
	return s.repo.Delete(ctx, workflowID)
}
