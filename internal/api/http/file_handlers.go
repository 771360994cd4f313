package httpapi

import (
	"io"
	"net/http"
)

// maxUploadBytes caps the multipart form held in memory per upload.
const maxUploadBytes = 32 << 20

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "expected multipart form upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}

	collectionType := r.FormValue("collection_type")
	if collectionType == "" {
		collectionType = "private"
	}

	f, err := s.files.UploadFile(r.Context(), content, header.Filename, collectionType)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, f)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request) {
	id, err := parseFileIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid fileId")
		return
	}
	f, err := s.files.GetFile(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, f)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := parseFileIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid fileId")
		return
	}
	if err := s.files.DeleteFile(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getFileChunks(w http.ResponseWriter, r *http.Request) {
	id, err := parseFileIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid fileId")
		return
	}
	set, err := s.files.GetFileChunks(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, set)
}

type askFileRequest struct {
	Question string `json:"question"`
}

func (s *Server) askFile(w http.ResponseWriter, r *http.Request) {
	id, err := parseFileIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid fileId")
		return
	}
	var req askFileRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.Question == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "question is required")
		return
	}
	res, err := s.files.AskQuestion(r.Context(), id, req.Question)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
