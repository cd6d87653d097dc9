package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// saveDocumentHandler saves an artifact to the catalog. A repeated save of the
// same artifact answers 200 with the original document instead of 201.
func (s *Server) saveDocumentHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)

	var req models.SaveDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := s.library.Save(r.Context(), subject.ID, strings.TrimSpace(req.ArtifactHandle))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if saved.Reused {
		status = http.StatusOK
	}
	slog.Info("Server.saveDocumentHandler: document saved", "subject", subject.ID, "documentID", saved.DocumentID, "reused", saved.Reused)
	writeJSONResponse(w, status, models.Success(saved))
}

func (s *Server) listDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	docs, err := s.st.ListDocuments(r.Context(), subject.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(docs))
}

func (s *Server) getDocumentHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.st.GetDocument(r.Context(), id, subject.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(doc))
}

func (s *Server) deleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	id, err := documentID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.st.DeleteDocument(r.Context(), id, subject.ID); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("Server.deleteDocumentHandler: document deleted", "subject", subject.ID, "documentID", id)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int64{"deleted": id}))
}

func documentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("id", "document id must be a positive integer")
	}
	return id, nil
}
