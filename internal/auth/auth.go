// Package auth resolves the calling principal from request credentials.
//
// Two credential forms are accepted: a bearer JWT signed with the
// shared HMAC secret (principal is the sub claim), and a static API key
// carried in a configurable header, formed as a known prefix followed
// by the principal's UUID.
package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
)

// Credential methods reported on a resolved principal.
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "api_key"
)

// Config holds credential verification settings.
type Config struct {
	JWTSecret    string `koanf:"jwt_secret"`
	APIKeyHeader string `koanf:"api_key_header"`
	APIKeyPrefix string `koanf:"api_key_prefix"`
}

// Principal is an authenticated caller.
type Principal struct {
	ID     string
	Method string
}

// Resolver verifies request credentials.
type Resolver struct {
	cfg Config
}

// NewResolver creates a credential resolver.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve extracts and verifies the caller's credentials. The API key
// header wins when both credential forms are present.
func (r *Resolver) Resolve(req *http.Request) (*Principal, error) {
	if key := req.Header.Get(r.cfg.APIKeyHeader); key != "" {
		return r.resolveAPIKey(key)
	}
	if header := req.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return nil, apperr.Authentication("authorization header must use the Bearer scheme")
		}
		return r.resolveJWT(token)
	}
	return nil, apperr.Authentication("missing credentials")
}

func (r *Resolver) resolveAPIKey(key string) (*Principal, error) {
	raw, ok := strings.CutPrefix(key, r.cfg.APIKeyPrefix)
	if !ok {
		return nil, apperr.Authentication("malformed API key")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Authentication("malformed API key")
	}
	return &Principal{ID: id.String(), Method: MethodAPIKey}, nil
}

func (r *Resolver) resolveJWT(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return []byte(r.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apperr.Authentication("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.Authentication("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, apperr.Authentication("token is missing the sub claim")
	}
	return &Principal{ID: sub, Method: MethodJWT}, nil
}
