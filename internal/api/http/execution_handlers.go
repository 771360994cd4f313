package httpapi

import (
	"encoding/base64"
	"fmt"
	"net/http"

	appExecution "github.com/Isydoria/lighton-workflow-generator/internal/application/execution"
)

type executeRequest struct {
	UserInput       string           `json:"user_input"`
	AttachedFileIDs []int64          `json:"attached_file_ids,omitempty"`
	Documents       []inlineDocument `json:"documents,omitempty"`
}

// inlineDocument is a file uploaded for the duration of one execution.
type inlineDocument struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

func (s *Server) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "workflowId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid workflowId")
		return
	}

	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	execReq := appExecution.Request{
		UserInput:       req.UserInput,
		AttachedFileIDs: req.AttachedFileIDs,
	}
	for _, doc := range req.Documents {
		content, err := base64.StdEncoding.DecodeString(doc.Content)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", fmt.Sprintf("document %s: content is not valid base64", doc.Filename))
			return
		}
		execReq.Documents = append(execReq.Documents, appExecution.Document{
			Filename: doc.Filename,
			Content:  content,
		})
	}

	rec, err := s.executionSvc.Execute(r.Context(), id, execReq)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "executionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid executionId")
		return
	}
	rec, err := s.executionSvc.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "workflowId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid workflowId")
		return
	}
	limit, offset := parseLimitOffset(r, 100, 200)
	recs, err := s.executionSvc.ListByWorkflow(r.Context(), id, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"executions": recs})
}
