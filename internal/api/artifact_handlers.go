package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/MemberFlow/internal/models"
	"github.com/BTreeMap/MemberFlow/internal/render"
)

// downloadHandler checks that the artifact is still live and returns the URL
// the rendered file can be fetched from.
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	handle := chi.URLParam(r, "handle")
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.library.Open(r.Context(), subject.ID, handle); err != nil {
		writeError(w, r, err)
		return
	}
	link := fmt.Sprintf("/artifacts/%s/file?format=%s", url.PathEscape(handle), url.QueryEscape(string(format)))
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"url": link}))
}

func (s *Server) fileHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	handle := chi.URLParam(r, "handle")
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.library.Open(r.Context(), subject.ID, handle)
	if err != nil {
		writeError(w, r, err)
		return
	}
	file, err := render.Render(a.Content, format)
	if err != nil {
		writeError(w, r, fmt.Errorf("render artifact: %w", err))
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Body); err != nil {
		slog.Error("Server.fileHandler: failed to write file", "handle", handle, "error", err)
	}
}

// clearResultsHandler removes the caller's artifacts of one resource kind.
func (s *Server) clearResultsHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	kind, err := models.ParseArtifactKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.library.Clear(r.Context(), subject.ID, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("Server.clearResultsHandler: results cleared", "subject", subject.ID, "kind", kind, "deleted", n)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int64{"deleted": n}))
}
