package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Isydoria/lighton-workflow-generator/internal/domain/execution"
	"github.com/Isydoria/lighton-workflow-generator/internal/domain/workflow"
	"github.com/Isydoria/lighton-workflow-generator/internal/metrics"
	"github.com/Isydoria/lighton-workflow-generator/internal/sandbox"
)

// ErrNotReady is returned when a workflow is asked to run before it has
// valid generated code.
var ErrNotReady = errors.New("workflow is not ready to execute")

// cleanupTimeout bounds the post-run deletion of uploaded files. Cleanup
// runs on a detached context so a cancelled run still releases its
// uploads.
const cleanupTimeout = 30 * time.Second

// Document is a file supplied inline with an execution request. It is
// uploaded before the run and deleted after, whatever the outcome.
type Document struct {
	Filename string
	Content  []byte
}

// Request is one invocation of a workflow.
type Request struct {
	UserInput       string
	AttachedFileIDs []int64
	Documents       []Document
}

// Service coordinates workflow runs: it resolves the workflow, prepares a
// per-run document client, executes the generated code in the sandbox,
// and persists the outcome exactly once.
type Service struct {
	workflows  workflow.Repository
	executions execution.Repository
	runner     *sandbox.Runner
	newClient  ClientFactory
	ttl        time.Duration
	logger     zerolog.Logger
}

func NewService(
	workflows workflow.Repository,
	executions execution.Repository,
	runner *sandbox.Runner,
	newClient ClientFactory,
	ttl time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		workflows:  workflows,
		executions: executions,
		runner:     runner,
		newClient:  newClient,
		ttl:        ttl,
		logger:     logger.With().Str("service", "execution").Logger(),
	}
}

// Execute runs a workflow's generated code and returns the finalized
// record. The record is persisted in its RUNNING state before the run
// starts and finalized exactly once afterwards.
func (s *Service) Execute(ctx context.Context, workflowID uuid.UUID, req Request) (*execution.Record, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf.Status != workflow.StatusReady {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, wf.Status)
	}

	rec := execution.NewRecord(workflowID, req.UserInput, req.AttachedFileIDs)
	if err := s.executions.Put(ctx, rec, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store execution record: %w", err)
	}

	s.logger.Info().
		Str("execution_id", rec.ExecutionID.String()).
		Str("workflow_id", workflowID.String()).
		Int("attached_files", len(req.AttachedFileIDs)).
		Int("inline_documents", len(req.Documents)).
		Msg("execution started")

	client := s.newClient()
	defer s.cleanup(client, rec.ExecutionID)

	start := time.Now()

	fileIDs, err := s.prepareDocuments(ctx, client, req)
	if err != nil {
		s.finalize(ctx, rec, sandbox.Outcome{
			Status:       sandbox.StatusFailed,
			ErrorMessage: err.Error(),
			Elapsed:      time.Since(start),
		})
		return rec, nil
	}
	rec.AttachedFileIDs = fileIDs

	outcome, err := s.runner.Execute(ctx, wf.GeneratedCode, bindOps(client, fileIDs), sandbox.Inputs{
		UserInput:       req.UserInput,
		AttachedFileIDs: fileIDs,
	})
	if err != nil {
		// Ready workflows have compiled once already, so a compile
		// error here means the stored code was corrupted.
		outcome = sandbox.Outcome{
			Status:       sandbox.StatusFailed,
			ErrorMessage: err.Error(),
			Elapsed:      time.Since(start),
		}
	}

	s.finalize(ctx, rec, outcome)
	return rec, nil
}

// prepareDocuments uploads inline documents and waits until each is
// ready to query. Uploaded ids are appended after the pre-attached ones,
// in request order.
func (s *Service) prepareDocuments(ctx context.Context, client DocumentClient, req Request) ([]int64, error) {
	fileIDs := append([]int64(nil), req.AttachedFileIDs...)
	for _, doc := range req.Documents {
		f, err := client.UploadFile(ctx, doc.Content, doc.Filename, "private")
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", doc.Filename, err)
		}
		if _, err := client.WaitUntilReady(ctx, f.ID); err != nil {
			return nil, fmt.Errorf("document %s did not become ready: %w", doc.Filename, err)
		}
		fileIDs = append(fileIDs, f.ID)
	}
	return fileIDs, nil
}

func (s *Service) finalize(ctx context.Context, rec *execution.Record, outcome sandbox.Outcome) {
	var err error
	switch outcome.Status {
	case sandbox.StatusCompleted:
		err = rec.MarkCompleted(outcome.Result, outcome.Output, outcome.Elapsed)
	case sandbox.StatusTimedOut:
		err = rec.MarkTimeout(outcome.ErrorMessage, outcome.Output, outcome.Elapsed)
	default:
		err = rec.MarkFailed(outcome.ErrorMessage, outcome.Output, outcome.Elapsed)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("execution_id", rec.ExecutionID.String()).Msg("could not finalize execution record")
		return
	}

	metrics.ObserveExecution(string(rec.Status), outcome.Elapsed)

	// The record must be finalized even if the request context was
	// cancelled mid-run.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.executions.Put(storeCtx, rec, s.ttl); err != nil {
		s.logger.Error().Err(err).Str("execution_id", rec.ExecutionID.String()).Msg("failed to store execution outcome")
	}

	s.logger.Info().
		Str("execution_id", rec.ExecutionID.String()).
		Str("status", string(rec.Status)).
		Float64("execution_time", rec.ExecutionTime).
		Msg("execution finished")
}

// cleanup deletes files uploaded for this run. It uses a detached context
// so cancellation of the request does not leak uploads.
func (s *Service) cleanup(client DocumentClient, executionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if n := client.CleanupUploads(ctx); n > 0 {
		s.logger.Info().Str("execution_id", executionID.String()).Int("deleted", n).Msg("cleaned up uploaded files")
	}
}

// Get retrieves an execution record by id.
func (s *Service) Get(ctx context.Context, executionID uuid.UUID) (*execution.Record, error) {
	return s.executions.GetByID(ctx, executionID)
}

// ListByWorkflow returns a workflow's execution records, newest first.
func (s *Service) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*execution.Record, error) {
	return s.executions.ListByWorkflow(ctx, workflowID, limit, offset)
}
