package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/Ranjithnathk/ClauseWise/internal/agent"
	"github.com/Ranjithnathk/ClauseWise/internal/embeddings"
	"github.com/Ranjithnathk/ClauseWise/internal/fs"
	"github.com/Ranjithnathk/ClauseWise/internal/indexer"
	"github.com/Ranjithnathk/ClauseWise/internal/rag"
	"github.com/Ranjithnathk/ClauseWise/internal/store"
)

// UploadMessage is returned after a successful upload.
const UploadMessage = "PDF uploaded and indexed successfully."

// maxMultipartMemory is how much of an upload is buffered in memory.
const maxMultipartMemory = 32 << 20

type uploadResponse struct {
	Message  string `json:"message"`
	Document string `json:"document"`
	Scope    string `json:"scope"`
	Chunks   int    `json:"chunks"`
	Skipped  bool   `json:"skipped,omitempty"`
}

type chatResponse struct {
	Answer    string `json:"answer"`
	Steps     int    `json:"steps"`
	Exhausted bool   `json:"exhausted,omitempty"`
}

type failureResponse struct {
	Error string     `json:"error"`
	Kind  agent.Kind `json:"kind"`
}

// handleUpload stores a multipart "file" under the caller's directory and
// indexes it. Admins may pass public=true to publish it for everyone.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	if max := s.cfg.Storage.MaxFileSize; max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max+maxMultipartMemory)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	owner := user
	if r.FormValue("public") == "true" {
		if !slices.Contains(s.cfg.Server.Admins, user) {
			writeError(w, http.StatusForbidden, "only admins can upload public documents")
			return
		}
		owner = store.PublicOwner
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	res, err := s.indexer.Ingest(r.Context(), owner, header.Filename, content, r.FormValue("force") == "true")
	if err != nil {
		status := uploadStatus(err)
		log.Warn("Upload failed", "user", user, "file", header.Filename, "status", status, "error", err)
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  UploadMessage,
		Document: header.Filename,
		Scope:    res.Scope.String(),
		Chunks:   res.Chunks,
		Skipped:  res.Skipped,
	})
}

// uploadStatus maps an ingestion error to an HTTP status.
func uploadStatus(err error) int {
	switch {
	case errors.Is(err, fs.ErrUnsupportedFormat), errors.Is(err, store.ErrInvalidScope):
		return http.StatusBadRequest
	case errors.Is(err, indexer.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, indexer.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, embeddings.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleChat answers the last message of the request. Pipeline failures are
// reported in the body with status 200 so clients always get a result.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	var req rag.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	req.Username = user

	if !s.limiter.Allow(user) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	switch res := s.pipeline.Chat(r.Context(), req).(type) {
	case agent.FinalAnswer:
		writeJSON(w, http.StatusOK, chatResponse{Answer: res.Text, Steps: res.Steps, Exhausted: res.Exhausted})
	case agent.Failure:
		status := http.StatusOK
		if res.Kind == agent.KindInvalidRequest {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, failureResponse{Error: res.Message, Kind: res.Kind})
	}
}

// handleListPDFs lists PDF files, matching the original listing endpoint.
func (s *Server) handleListPDFs(w http.ResponseWriter, r *http.Request) {
	s.writeDocuments(w, UserFrom(r.Context()), ".pdf")
}

// handleListDocuments lists every supported document.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	s.writeDocuments(w, UserFrom(r.Context()))
}

func (s *Server) writeDocuments(w http.ResponseWriter, user string, exts ...string) {
	list, err := s.pipeline.Documents(user, exts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleDeleteDocument removes the caller's copy of a document, both the
// uploaded file and its index. A public document of the same name becomes
// visible to the caller again.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	name := chi.URLParam(r, "name")

	if err := s.indexer.Delete(user, name); err != nil {
		if errors.Is(err, store.ErrInvalidScope) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
