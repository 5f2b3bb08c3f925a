package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuthenticatorVerifiesJWKSTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var fetches int32
	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": "key-1",
				"kty": "RSA",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	defer jwks.Close()

	auth := NewAuthenticator(AuthConfig{JWKSURL: jwks.URL, Issuer: "https://issuer.test"})
	var seen string
	protected := auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		seen = identity.Email
		w.WriteHeader(http.StatusOK)
	}))

	sign := func(kid, issuer string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"email": "Member@X.com",
			"iss":   issuer,
			"exp":   time.Now().Add(time.Hour).Unix(),
		})
		token.Header["kid"] = kid
		signed, err := token.SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return signed
	}

	call := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := call(sign("key-1", "https://issuer.test")); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if seen != "member@x.com" {
		t.Fatalf("expected normalized email, got %q", seen)
	}
	if code := call(sign("key-1", "https://issuer.test")); code != http.StatusOK {
		t.Fatalf("expected 200 on second call, got %d", code)
	}
	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Fatalf("expected cached JWKS, got %d fetches", got)
	}

	if code := call(sign("key-1", "https://other.test")); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong issuer, got %d", code)
	}
	if code := call(sign("unknown", "https://issuer.test")); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown kid, got %d", code)
	}
}

func TestOptionalAuthAllowsAnonymous(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Secret: testSecret})
	var authenticated bool
	handler := auth.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, authenticated = IdentityFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || authenticated {
		t.Fatalf("expected anonymous pass-through, got %d authenticated=%v", rec.Code, authenticated)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected invalid token to be rejected, got %d", rec.Code)
	}
}

func TestInternalAuthMiddlewareClosedWithoutKey(t *testing.T) {
	handler := InternalAuthMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Internal-API-Key", "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no key is configured, got %d", rec.Code)
	}
}
