package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// maxProfileFields bounds the number of fields accepted by PUT /profile.
const maxProfileFields = 100

func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	p, err := s.st.GetProfile(r.Context(), subject.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// putProfileHandler replaces the caller's profile fields. The membership
// status field is managed by the host platform and cannot be written here.
func (s *Server) putProfileHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)

	var fields map[string]string
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, r, err)
		return
	}
	if len(fields) > maxProfileFields {
		writeError(w, r, models.NewValidationError("profile", "too many profile fields"))
		return
	}

	current, err := s.st.GetProfile(r.Context(), subject.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	next := make(models.Profile, len(fields)+1)
	for k, v := range fields {
		k = strings.TrimSpace(k)
		if k == "" {
			writeError(w, r, models.NewValidationError("profile", "field names must not be empty"))
			return
		}
		if len(v) > models.MaxAnswerLength {
			writeError(w, r, models.NewValidationError(k, "value exceeds maximum length"))
			return
		}
		if k == ProfileMembershipField {
			continue
		}
		next[k] = v
	}
	if status, ok := current[ProfileMembershipField]; ok {
		next[ProfileMembershipField] = status
	}

	if err := s.st.SaveProfile(r.Context(), subject.ID, next); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Debug("Server.putProfileHandler: profile saved", "subject", subject.ID, "fields", len(next))
	writeJSONResponse(w, http.StatusOK, models.Success(next))
}

func (s *Server) getChecklistHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	checklistType, err := checklistParam(r, "type")
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := s.st.GetChecklist(r.Context(), subject.ID, checklistType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.ChecklistItem{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(items))
}

func (s *Server) setChecklistItemHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := SubjectFromRequest(r)
	checklistType, err := checklistParam(r, "type")
	if err != nil {
		writeError(w, r, err)
		return
	}
	itemID, err := checklistParam(r, "itemID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req models.ChecklistUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.st.SetChecklistItem(r.Context(), subject.ID, checklistType, itemID, req.Done); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.ChecklistItem{
		ChecklistType: checklistType,
		ItemID:        itemID,
		Done:          req.Done,
	}))
}

func checklistParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(chi.URLParam(r, name))
	if v == "" {
		return "", models.NewValidationError(name, name+" is required")
	}
	if len(v) > models.MaxChecklistItemIDLength {
		return "", models.NewValidationError(name, name+" is too long")
	}
	return v, nil
}
