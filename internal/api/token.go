package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// subjectClaims are the claims of a bearer token issued by the host platform.
type subjectClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier creates a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses token and returns the subject it names.
func (v *TokenVerifier) Verify(token string) (models.Subject, error) {
	claims := &subjectClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return models.Subject{}, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return models.Subject{}, models.ErrUnauthenticated
	}
	id := strings.TrimSpace(claims.Subject)
	if id == "" {
		return models.Subject{}, fmt.Errorf("%w: token has no subject", models.ErrUnauthenticated)
	}
	return models.Subject{ID: id, DisplayName: strings.TrimSpace(claims.Name)}, nil
}

// BearerIdentity resolves the caller from an Authorization bearer token.
// The identity headers are ignored.
func BearerIdentity(v *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, r, models.ErrUnauthenticated)
				return
			}
			subject, err := v.Verify(token)
			if err != nil {
				slog.Debug("BearerIdentity: token rejected", "path", r.URL.Path, "error", err)
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), subject)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
