package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BTreeMap/MemberFlow/internal/flow"
	"github.com/BTreeMap/MemberFlow/internal/models"
	"github.com/BTreeMap/MemberFlow/internal/store"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, method jwt.SigningMethod, secret, subject string, expires time.Time) string {
	t.Helper()
	claims := subjectClaims{
		Name: "Alice Example",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestTokenVerifier(t *testing.T) {
	v := NewTokenVerifier(testSecret)
	future := time.Now().Add(time.Hour)

	subject, err := v.Verify(signToken(t, jwt.SigningMethodHS256, testSecret, "alice", future))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if subject.ID != "alice" || subject.DisplayName != "Alice Example" {
		t.Errorf("unexpected subject %+v", subject)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, "other-secret", "alice", future)},
		{"expired", signToken(t, jwt.SigningMethodHS256, testSecret, "alice", time.Now().Add(-time.Minute))},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS512, testSecret, "alice", future)},
		{"no subject", signToken(t, jwt.SigningMethodHS256, testSecret, " ", future)},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, models.ErrUnauthenticated) {
				t.Errorf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestBearerIdentityRouting(t *testing.T) {
	st := store.NewInMemoryStore()
	reg := flow.DefaultRegistry()
	engine := flow.NewEngine(reg, flow.NewDispatcher(reg, nil, st, st))
	srv := NewServer(engine, flow.NewLibrary(st, st, st, 0, 0), st, nil, WithTokenSecret(testSecret))
	handler := srv.Router()

	tests := []struct {
		name   string
		header func(*http.Request)
		want   int
	}{
		{"valid token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, "alice", time.Now().Add(time.Hour)))
		}, http.StatusOK},
		{"identity headers ignored", func(r *http.Request) {
			r.Header.Set(HeaderSubjectID, "alice")
		}, http.StatusUnauthorized},
		{"wrong scheme", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic YWxpY2U6cGFzcw==")
		}, http.StatusUnauthorized},
		{"bad token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer nope")
		}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/flows", nil)
			tt.header(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}
