package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"cyberswap/core/types"
)

var (
	errMissingToken   = errors.New("missing bearer token")
	errSubjectMissing = errors.New("token subject missing")
)

// AuthConfig configures bearer authentication.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	ClockSkew  time.Duration
}

// Authenticator checks that a caller holds an HS256 token whose subject is
// the address it acts as.
type Authenticator struct {
	secret []byte
	issuer string
	skew   time.Duration
}

// NewAuthenticator returns nil, disabling authentication, when no secret is
// configured.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	secret := strings.TrimSpace(cfg.HMACSecret)
	if secret == "" {
		return nil
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &Authenticator{secret: []byte(secret), issuer: cfg.Issuer, skew: skew}
}

// Subject validates the request's bearer token and returns the address in
// its subject claim.
func (a *Authenticator) Subject(r *http.Request) (types.Address, error) {
	raw := extractBearer(r.Header.Get("Authorization"))
	if raw == "" {
		return types.Address{}, errMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.skew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return types.Address{}, err
	}
	if claims.Subject == "" {
		return types.Address{}, errSubjectMissing
	}
	addr, err := types.ParseAddress(claims.Subject)
	if err != nil {
		return types.Address{}, fmt.Errorf("token subject: %w", err)
	}
	return addr, nil
}

// authorize checks that the caller may act as actor. It writes the failure
// response and returns false when it may not.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, actor types.Address) bool {
	if s.auth == nil {
		return true
	}
	subject, err := s.auth.Subject(r)
	if err != nil {
		s.logger.Warn("token rejected", "request_id", requestIDFrom(r.Context()), "error", err)
		writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
		return false
	}
	if subject != actor {
		writeError(w, http.StatusForbidden, "unauthorized", "token subject does not match sender")
		return false
	}
	return true
}

// IssueToken signs a token for subject. It is used by operators and tests to
// mint caller credentials.
func IssueToken(secret string, subject types.Address, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject.String(),
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func extractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
