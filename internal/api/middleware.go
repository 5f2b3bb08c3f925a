/**
 * @description
 * Authentication and authorization middleware for the entitlement-service. The
 * identity provider is external: callers present a JWT, verified either against a
 * JWKS endpoint (RS256) or a shared secret (HS256), and the middleware turns its
 * claims into an app.Identity stored on the request context.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */
package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soullink/entitlement-service/internal/app"
)

type contextKey string

const identityContextKey = contextKey("identity")

const jwksCacheTTL = 10 * time.Minute

var errNoToken = errors.New("no bearer token")

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	JWKSURL  string
	Secret   string
	Issuer   string
	Audience string
}

// Authenticator verifies bearer tokens and resolves the caller identity.
type Authenticator struct {
	cfg    AuthConfig
	client *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewAuthenticator creates an Authenticator for the given configuration.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// RequireAuth rejects requests without a valid token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.identityFromRequest(r)
		if err != nil {
			if errors.Is(err, errNoToken) {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// OptionalAuth resolves the caller when a token is present and lets anonymous requests through.
// A token that is present but invalid is still rejected.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.identityFromRequest(r)
		if errors.Is(err, errNoToken) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if !identity.IsAdmin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InternalAuthMiddleware validates the internal API key for server-to-server calls.
// Internal routes are closed when no key is configured.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-API-Key")
			if requiredKey == "" || provided == "" || provided != requiredKey {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) identityFromRequest(r *http.Request) (app.Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return app.Identity{}, errNoToken
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
		return app.Identity{}, errors.New("invalid Authorization header format")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}

	token, err := jwt.Parse(tokenString, a.keyFunc, opts...)
	if err != nil {
		return app.Identity{}, err
	}
	if !token.Valid {
		return app.Identity{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return app.Identity{}, errors.New("invalid token claims")
	}
	return identityFromClaims(claims)
}

func (a *Authenticator) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if a.cfg.Secret == "" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.cfg.Secret), nil
	case *jwt.SigningMethodRSA:
		if a.cfg.JWKSURL == "" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("kid not found in token header")
		}
		publicKey, err := a.publicKey(kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return publicKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

func identityFromClaims(claims jwt.MapClaims) (app.Identity, error) {
	email, _ := claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return app.Identity{}, errors.New("email not found in token")
	}

	isAdmin := false
	if role, ok := claims["role"].(string); ok && strings.EqualFold(role, "admin") {
		isAdmin = true
	}
	if admin, ok := claims["admin"].(bool); ok && admin {
		isAdmin = true
	}
	return app.Identity{Email: email, IsAdmin: isAdmin}, nil
}

// publicKey returns the RSA key for kid, refetching the JWKS when the cache is stale or misses.
func (a *Authenticator) publicKey(kid string) (*rsa.PublicKey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if key, ok := a.keys[kid]; ok && time.Since(a.fetchedAt) < jwksCacheTTL {
		return key, nil
	}

	keys, err := a.fetchJWKS()
	if err != nil {
		return nil, err
	}
	a.keys = keys
	a.fetchedAt = time.Now()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key with kid %s not found", kid)
	}
	return key, nil
}

func (a *Authenticator) fetchJWKS() (map[string]*rsa.PublicKey, error) {
	resp, err := a.client.Get(a.cfg.JWKSURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, err
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "" && key.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			return nil, err
		}
		keys[key.Kid] = pub
	}
	return keys, nil
}

func parseRSAPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var exp uint64
	for _, b := range eb {
		exp = (exp << 8) | uint64(b)
	}

	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp)}, nil
}

func withIdentity(ctx context.Context, identity app.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the authenticated caller from the request context.
func IdentityFromContext(ctx context.Context) (app.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(app.Identity)
	return identity, ok
}
