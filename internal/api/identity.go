package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/MemberFlow/internal/models"
	"github.com/BTreeMap/MemberFlow/internal/store"
)

// Identity headers set by the authenticating proxy in front of the service.
const (
	HeaderSubjectID   = "X-Subject-ID"
	HeaderSubjectName = "X-Subject-Name"
)

// ProfileMembershipField is the reserved profile field holding membership status.
const ProfileMembershipField = "membership_status"

// MembershipActive is the membership status that grants access.
const MembershipActive = "active"

type contextKey int

const subjectKey contextKey = iota

// Identity resolves the caller from the identity headers. Requests without a
// subject ID are rejected with 401.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderSubjectID))
		if id == "" {
			slog.Debug("Identity: missing subject header", "path", r.URL.Path)
			writeError(w, r, models.ErrUnauthenticated)
			return
		}
		subject := models.Subject{ID: id, DisplayName: strings.TrimSpace(r.Header.Get(HeaderSubjectName))}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), subject)))
	})
}

func withSubject(ctx context.Context, s models.Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

// SubjectFromRequest returns the subject resolved by Identity.
func SubjectFromRequest(r *http.Request) (models.Subject, bool) {
	s, ok := r.Context().Value(subjectKey).(models.Subject)
	return s, ok && s.ID != ""
}

// Membership decides whether a subject may use the member features.
type Membership interface {
	IsMember(ctx context.Context, subjectID string) (bool, error)
}

// OpenMembership admits every identified subject.
type OpenMembership struct{}

// IsMember always reports true.
func (OpenMembership) IsMember(context.Context, string) (bool, error) { return true, nil }

// ProfileMembership reads membership status from the subject's profile.
type ProfileMembership struct {
	Profiles store.ProfileStore
}

// IsMember reports whether the profile's membership_status is active.
func (m ProfileMembership) IsMember(ctx context.Context, subjectID string) (bool, error) {
	p, err := m.Profiles.GetProfile(ctx, subjectID)
	if err != nil {
		return false, err
	}
	status, _ := p.Get(ProfileMembershipField)
	return strings.EqualFold(status, MembershipActive), nil
}

// RequireMembership rejects callers without an active membership with 403.
func RequireMembership(m Membership) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := SubjectFromRequest(r)
			if !ok {
				writeError(w, r, models.ErrUnauthenticated)
				return
			}
			member, err := m.IsMember(r.Context(), subject.ID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !member {
				slog.Debug("RequireMembership: access denied", "subject", subject.ID, "path", r.URL.Path)
				writeError(w, r, models.ErrNotMember)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
