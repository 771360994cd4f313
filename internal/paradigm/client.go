package paradigm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the production endpoint of the document service.
	DefaultBaseURL = "https://paradigm.lighton.ai"
	// DefaultChatModel is used when callers do not name a model.
	DefaultChatModel = "alfred-4.2"

	// ToolDocumentSearch is the primary text-based search tool.
	ToolDocumentSearch = "DocumentSearch"
	// ToolVisionSearch analyzes documents as images. More robust for
	// scanned documents, complex tables and poor OCR quality.
	ToolVisionSearch = "VisionDocumentSearch"
)

// PollPolicy bounds a polling loop.
type PollPolicy struct {
	MaxWait  time.Duration
	Interval time.Duration
}

// DefaultIngestPoll is the wait-until-ready schedule (300s deadline, 2s interval).
var DefaultIngestPoll = PollPolicy{MaxWait: 5 * time.Minute, Interval: 2 * time.Second}

// DefaultAnalysisPoll is the analysis job schedule (300s deadline, 5s interval).
var DefaultAnalysisPoll = PollPolicy{MaxWait: 5 * time.Minute, Interval: 5 * time.Second}

// SleepFunc suspends between polls; it must honor context cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client is the single point of contact with the document-intelligence
// service. One instance is constructed per execution and discarded
// afterward; it keeps no remote state beyond the ids of files it uploaded.
type Client struct {
	apiKey       string
	baseURL      string
	httpc        *http.Client
	logger       zerolog.Logger
	fallbackTool string
	chatModel    string
	ingestPoll   PollPolicy
	analysisPoll PollPolicy
	sleep        SleepFunc
	observe      func(op string)

	mu       sync.Mutex
	uploaded []int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client (connection pools may be shared
// at this layer; logical client state is still per-execution).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpc = h } }

// WithFallbackTool sets the tool used for the one retry after an
// empty/negative search answer. Empty string disables the fallback.
func WithFallbackTool(tool string) Option { return func(c *Client) { c.fallbackTool = tool } }

// WithChatModel sets the default chat completion model.
func WithChatModel(model string) Option { return func(c *Client) { c.chatModel = model } }

// WithIngestPoll sets the wait-until-ready polling policy.
func WithIngestPoll(p PollPolicy) Option { return func(c *Client) { c.ingestPoll = p } }

// WithAnalysisPoll sets the analysis polling policy.
func WithAnalysisPoll(p PollPolicy) Option { return func(c *Client) { c.analysisPoll = p } }

// WithSleep injects the sleep dependency so tests can simulate time.
func WithSleep(fn SleepFunc) Option { return func(c *Client) { c.sleep = fn } }

// WithCallObserver installs a hook invoked once per outbound API call.
func WithCallObserver(fn func(op string)) Option { return func(c *Client) { c.observe = fn } }

// NewClient creates a client for the document-intelligence service.
func NewClient(apiKey, baseURL string, logger zerolog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpc:        &http.Client{Timeout: 120 * time.Second},
		logger:       logger.With().Str("client", "paradigm").Logger(),
		fallbackTool: ToolVisionSearch,
		chatModel:    DefaultChatModel,
		ingestPoll:   DefaultIngestPoll,
		analysisPoll: DefaultAnalysisPoll,
		sleep:        sleepContext,
		observe:      func(string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RemoteFile is a file stored by the service, referenced by id.
type RemoteFile struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// Chunk is a fragment of ingested document content.
type Chunk struct {
	UUID     string                 `json:"uuid"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Score    float64                `json:"score,omitempty"`
}

// ChunkSet holds chunks returned by chunk-level operations.
type ChunkSet struct {
	Chunks []Chunk `json:"chunks"`
}

// SearchDocument is a cited document in a search response.
type SearchDocument struct {
	ID     int64   `json:"id"`
	Title  string  `json:"title"`
	Chunks []Chunk `json:"chunks,omitempty"`
}

// SearchResult is the answer plus its citations.
type SearchResult struct {
	Answer    string           `json:"answer"`
	Documents []SearchDocument `json:"documents,omitempty"`
}

// AskResult is the answer to a question about a single file.
type AskResult struct {
	Answer string  `json:"answer"`
	Chunks []Chunk `json:"chunks,omitempty"`
}

// AnalysisResult is one observation of an analysis job.
type AnalysisResult struct {
	Status           string `json:"status"`
	Progress         string `json:"progress,omitempty"`
	Result           string `json:"result,omitempty"`
	DetailedAnalysis string `json:"detailed_analysis,omitempty"`
}

// UploadFile stores a file on the service. Not retried: upload is not
// idempotent-safe.
func (c *Client) UploadFile(ctx context.Context, content []byte, filename, collectionType string) (*RemoteFile, error) {
	if collectionType == "" {
		collectionType = "private"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("paradigm upload: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("paradigm upload: %w", err)
	}
	if err := mw.WriteField("collection_type", collectionType); err != nil {
		return nil, fmt.Errorf("paradigm upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("paradigm upload: %w", err)
	}

	status, data, err := c.do(ctx, "upload", http.MethodPost, "/api/v2/files", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, &TransportError{Op: "upload", StatusCode: status, Body: string(data)}
	}

	var file RemoteFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("paradigm upload: decode response: %w", err)
	}

	c.mu.Lock()
	c.uploaded = append(c.uploaded, file.ID)
	c.mu.Unlock()

	c.logger.Debug().Int64("file_id", file.ID).Str("filename", filename).
		Int("size", len(content)).Msg("file uploaded")
	return &file, nil
}

// GetFile fetches file metadata including its processing status.
func (c *Client) GetFile(ctx context.Context, fileID int64) (*RemoteFile, error) {
	path := "/api/v2/files/" + strconv.FormatInt(fileID, 10)
	status, data, err := c.do(ctx, "get_file", http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{Resource: "file", ID: strconv.FormatInt(fileID, 10)}
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: "get_file", StatusCode: status, Body: string(data)}
	}
	var file RemoteFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("paradigm get_file: decode response: %w", err)
	}
	return &file, nil
}

// GetFileStatus fetches just the processing status of a file.
func (c *Client) GetFileStatus(ctx context.Context, fileID int64) (string, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	return file.Status, nil
}

// WaitUntilReady polls the file status until it reaches a terminal ready
// value or the policy deadline elapses. Suspends between polls, never
// busy-spins.
func (c *Client) WaitUntilReady(ctx context.Context, fileID int64) (string, error) {
	p := c.ingestPoll
	waited := time.Duration(0)
	for {
		file, err := c.GetFile(ctx, fileID)
		if err != nil {
			return "", err
		}
		st := strings.ToLower(file.Status)
		switch {
		case isFileReady(st):
			c.logger.Debug().Int64("file_id", fileID).Str("status", file.Status).Msg("file ready")
			return file.Status, nil
		case isFileFailed(st):
			return "", &ProcessingError{FileID: fileID, Status: file.Status}
		}
		if waited >= p.MaxWait {
			return "", &TimeoutError{Op: "wait_until_ready", Waited: waited}
		}
		if err := c.sleep(ctx, p.Interval); err != nil {
			return "", err
		}
		waited += p.Interval
	}
}

// Search runs a synchronous document search. When tool is empty the
// primary tool is used and, if the answer comes back empty or negative
// and a fallback tool is configured, exactly one retry is issued with the
// fallback tool before giving up.
func (c *Client) Search(ctx context.Context, query string, fileIDs []int64, tool string) (*SearchResult, error) {
	explicit := tool != ""
	if !explicit {
		tool = ToolDocumentSearch
	}

	result, err := c.search(ctx, query, fileIDs, tool)
	if err != nil {
		return nil, err
	}
	if explicit || c.fallbackTool == "" || !answerSeemsEmpty(result) {
		return result, nil
	}

	c.logger.Warn().Str("query", truncate(query, 80)).Str("fallback_tool", c.fallbackTool).
		Msg("search answer empty or negative, retrying with fallback tool")
	return c.search(ctx, query, fileIDs, c.fallbackTool)
}

func (c *Client) search(ctx context.Context, query string, fileIDs []int64, tool string) (*SearchResult, error) {
	payload := map[string]interface{}{
		"query":         query,
		"tool":          tool,
		"private":       true,
		"private_scope": true,
		"company_scope": false,
	}
	if len(fileIDs) > 0 {
		payload["file_ids"] = fileIDs
	}

	status, data, err := c.doJSON(ctx, "search", http.MethodPost, "/api/v2/chat/document-search", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: "search", StatusCode: status, Body: string(data)}
	}
	var result SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("paradigm search: decode response: %w", err)
	}
	return &result, nil
}

// failureIndicators mark answers that read as "nothing found"; they trigger
// the single fallback retry.
var failureIndicators = []string{"not found", "no information", "cannot find", "unable to", "n/a"}

func answerSeemsEmpty(result *SearchResult) bool {
	answer := strings.TrimSpace(result.Answer)
	if answer == "" || len(result.Documents) == 0 {
		return true
	}
	lower := strings.ToLower(answer)
	for _, ind := range failureIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// StartAnalysis begins a long-running analysis job and returns its id.
func (c *Client) StartAnalysis(ctx context.Context, query string, documentIDs []int64) (string, error) {
	payload := map[string]interface{}{
		"query":        query,
		"document_ids": documentIDs,
	}
	status, data, err := c.doJSON(ctx, "start_analysis", http.MethodPost, "/api/v2/chat/document-analysis", payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &TransportError{Op: "start_analysis", StatusCode: status, Body: string(data)}
	}
	// the job id is an opaque token; the service has returned both
	// numeric and string ids
	var resp struct {
		ChatResponseID interface{} `json:"chat_response_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("paradigm start_analysis: decode response: %w", err)
	}
	jobID := jobIDString(resp.ChatResponseID)
	if jobID == "" {
		return "", fmt.Errorf("paradigm start_analysis: no chat_response_id in response")
	}
	return jobID, nil
}

func jobIDString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// GetAnalysisResult observes an analysis job once. A 404 means the result
// is not materialized yet and is reported as still processing.
func (c *Client) GetAnalysisResult(ctx context.Context, jobID string) (*AnalysisResult, error) {
	status, data, err := c.do(ctx, "get_analysis", http.MethodGet, "/api/v2/chat/document-analysis/"+jobID, "", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return &AnalysisResult{Status: "processing"}, nil
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: "get_analysis", StatusCode: status, Body: string(data)}
	}
	var result AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("paradigm get_analysis: decode response: %w", err)
	}
	return &result, nil
}

// AnalyzeWithPolling starts an analysis job and polls until a terminal
// status or the policy deadline. Unrecognized status values are treated
// as still running; the service's in-progress vocabulary is not
// exhaustively known.
func (c *Client) AnalyzeWithPolling(ctx context.Context, query string, documentIDs []int64) (string, error) {
	jobID, err := c.StartAnalysis(ctx, query, documentIDs)
	if err != nil {
		return "", err
	}

	p := c.analysisPoll
	waited := time.Duration(0)
	for {
		result, err := c.GetAnalysisResult(ctx, jobID)
		if err != nil {
			return "", err
		}
		st := strings.ToLower(result.Status)
		switch {
		case isAnalysisDone(st):
			c.logger.Debug().Str("job_id", jobID).Str("status", result.Status).Msg("analysis completed")
			if result.Result != "" {
				return result.Result, nil
			}
			if result.DetailedAnalysis != "" {
				return result.DetailedAnalysis, nil
			}
			return "", fmt.Errorf("paradigm analysis %s: completed but no result returned", jobID)
		case isAnalysisFailed(st):
			return "", &AnalysisError{JobID: jobID, Status: result.Status}
		}
		if waited >= p.MaxWait {
			return "", &TimeoutError{Op: "analyze_with_polling", Waited: waited}
		}
		if err := c.sleep(ctx, p.Interval); err != nil {
			return "", err
		}
		waited += p.Interval
	}
}

// ChatCompletion is a stateless single call with no documents involved.
func (c *Client) ChatCompletion(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = c.chatModel
	}
	payload := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	status, data, err := c.doJSON(ctx, "chat_completion", http.MethodPost, "/api/v2/chat/completions", payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &TransportError{Op: "chat_completion", StatusCode: status, Body: string(data)}
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("paradigm chat_completion: decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("paradigm chat_completion: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// FilterChunks ranks already-retrieved chunks against a query, keeping the
// top n (all when n <= 0).
func (c *Client) FilterChunks(ctx context.Context, query string, chunkIDs []string, n int) (*ChunkSet, error) {
	payload := map[string]interface{}{
		"query":     query,
		"chunk_ids": chunkIDs,
	}
	if n > 0 {
		payload["n"] = n
	}
	status, data, err := c.doJSON(ctx, "filter_chunks", http.MethodPost, "/api/v2/filter/chunks", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: "filter_chunks", StatusCode: status, Body: string(data)}
	}
	var set ChunkSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("paradigm filter_chunks: decode response: %w", err)
	}
	return &set, nil
}

// QueryChunks retrieves relevant chunks without answer synthesis.
func (c *Client) QueryChunks(ctx context.Context, query, collection string, n int) (*ChunkSet, error) {
	payload := map[string]interface{}{"query": query}
	if collection != "" {
		payload["collection"] = collection
	}
	if n > 0 {
		payload["n"] = n
	}
	status, data, err := c.doJSON(ctx, "query_chunks", http.MethodPost, "/api/v2/query", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: "query_chunks", StatusCode: status, Body: string(data)}
	}
	var set ChunkSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("paradigm query_chunks: decode response: %w", err)
	}
	return &set, nil
}

// GetFileChunks retrieves all chunks of an ingested file.
func (c *Client) GetFileChunks(ctx context.Context, fileID int64) (*ChunkSet, error) {
	path := "/api/v2/files/" + strconv.FormatInt(fileID, 10) + "/chunks"
	status, data, err := c.do(ctx, "file_chunks", http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{Resource: "file", ID: strconv.FormatInt(fileID, 10)}
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: "file_chunks", StatusCode: status, Body: string(data)}
	}
	var set ChunkSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("paradigm file_chunks: decode response: %w", err)
	}
	return &set, nil
}

// AskQuestion asks a question about a single uploaded file.
func (c *Client) AskQuestion(ctx context.Context, fileID int64, question string) (*AskResult, error) {
	path := "/api/v2/files/" + strconv.FormatInt(fileID, 10) + "/ask"
	status, data, err := c.doJSON(ctx, "ask_question", http.MethodPost, path, map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{Resource: "file", ID: strconv.FormatInt(fileID, 10)}
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: "ask_question", StatusCode: status, Body: string(data)}
	}
	var result AskResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("paradigm ask_question: decode response: %w", err)
	}
	return &result, nil
}

// DeleteFile removes a remote file. A 404 means the file is already gone
// and is not an error.
func (c *Client) DeleteFile(ctx context.Context, fileID int64) error {
	path := "/api/v2/files/" + strconv.FormatInt(fileID, 10)
	status, data, err := c.do(ctx, "delete_file", http.MethodDelete, path, "", nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		c.logger.Debug().Int64("file_id", fileID).Msg("file already deleted")
		return nil
	default:
		return &TransportError{Op: "delete_file", StatusCode: status, Body: string(data)}
	}
}

// UploadedFileIDs returns the ids of files uploaded through this client
// instance, in upload order.
func (c *Client) UploadedFileIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.uploaded))
	copy(out, c.uploaded)
	return out
}

// CleanupUploads deletes every file uploaded through this client. Runs on
// success and failure paths; individual delete failures are logged and do
// not stop the sweep.
func (c *Client) CleanupUploads(ctx context.Context) int {
	deleted := 0
	for _, id := range c.UploadedFileIDs() {
		if err := c.DeleteFile(ctx, id); err != nil {
			c.logger.Warn().Err(err).Int64("file_id", id).Msg("failed to delete uploaded file")
			continue
		}
		deleted++
	}
	return deleted
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("paradigm %s: marshal payload: %w", op, err)
	}
	return c.do(ctx, op, method, path, "application/json", bytes.NewReader(body))
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("paradigm %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.observe(op)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("paradigm %s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("paradigm %s: read response: %w", op, err)
	}
	return resp.StatusCode, data, nil
}

func isFileReady(status string) bool {
	return status == "embedded" || status == "ready"
}

func isFileFailed(status string) bool {
	return status == "error" || status == "failed"
}

func isAnalysisDone(status string) bool {
	switch status {
	case "completed", "complete", "finished", "success":
		return true
	}
	return false
}

func isAnalysisFailed(status string) bool {
	return status == "failed" || status == "error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
