package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testKID = "test-key"

type rolesStub struct {
	admins map[uuid.UUID]bool
	err    error
	calls  int
}

func (s *rolesStub) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	return role == "admin" && s.admins[userID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// newJWKSServer serves the public half of a freshly generated signing key.
func newJWKSServer(t *testing.T) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	jwks := map[string]interface{}{
		"keys": []map[string]string{{
			"kid": testKID,
			"kty": "RSA",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)
	return key, srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	token.Header["kid"] = testKID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestInternalAuthMiddleware(t *testing.T) {
	mw := InternalAuthMiddleware("s3cret")

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{name: "bearer", headers: map[string]string{"Authorization": "Bearer s3cret"}, want: http.StatusNoContent},
		{name: "internal header", headers: map[string]string{"X-Internal-API-Key": "s3cret"}, want: http.StatusNoContent},
		{name: "missing", headers: nil, want: http.StatusUnauthorized},
		{name: "wrong key", headers: map[string]string{"Authorization": "Bearer nope"}, want: http.StatusUnauthorized},
		{name: "not bearer", headers: map[string]string{"Authorization": "Basic s3cret"}, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/surprise-reveal-pass", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			mw(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusUnauthorized {
				if body := decodeErrorBody(t, rec); body["code"] != CodeAuthRequired || body["error"] == "" {
					t.Fatalf("unexpected error body %v", body)
				}
			}
		})
	}
}

func TestInternalAuthMiddleware_EmptyConfiguredKeyRejects(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/reciprocity-notify", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	InternalAuthMiddleware("")(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestClerkAuthMiddleware(t *testing.T) {
	t.Setenv("CLERK_AUDIENCE", "")
	t.Setenv("CLERK_ISSUER", "")
	key, srv := newJWKSServer(t)
	keys := NewJWKSCache(srv.URL, time.Minute)
	userID := uuid.New()

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + signToken(t, key, userID.String(), time.Now().Add(time.Hour)), want: http.StatusOK},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, key, userID.String(), time.Now().Add(-time.Hour)), want: http.StatusUnauthorized},
		{name: "wrong signer", header: "Bearer " + signToken(t, otherKey, userID.String(), time.Now().Add(time.Hour)), want: http.StatusUnauthorized},
		{name: "non uuid subject", header: "Bearer " + signToken(t, key, "user_2abc", time.Now().Add(time.Hour)), want: http.StatusUnauthorized},
		{name: "malformed", header: "Token abc", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = UserFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/admin/imbalance-alerts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ClerkAuthMiddleware(keys)(next).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && gotUser != userID {
				t.Fatalf("expected user %s in context, got %s", userID, gotUser)
			}
			if tt.want == http.StatusUnauthorized {
				if body := decodeErrorBody(t, rec); body["code"] != CodeAuthRequired {
					t.Fatalf("expected AUTH_REQUIRED, got %v", body)
				}
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	admin, member := uuid.New(), uuid.New()
	roles := &rolesStub{admins: map[uuid.UUID]bool{admin: true}}
	mw := RequireRole(roles, "admin", testLogger())

	tests := []struct {
		name     string
		user     *uuid.UUID
		want     int
		wantCode string
	}{
		{name: "admin", user: &admin, want: http.StatusNoContent},
		{name: "member", user: &member, want: http.StatusForbidden, wantCode: CodeForbidden},
		{name: "anonymous", user: nil, want: http.StatusUnauthorized, wantCode: CodeAuthRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/imbalance-alerts", nil)
			if tt.user != nil {
				req = req.WithContext(context.WithValue(req.Context(), UserIDContextKey, *tt.user))
			}
			rec := httptest.NewRecorder()
			mw(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.wantCode != "" {
				if body := decodeErrorBody(t, rec); body["code"] != tt.wantCode {
					t.Fatalf("expected code %s, got %v", tt.wantCode, body)
				}
			}
		})
	}
}

func TestRequireRole_LookupFailure(t *testing.T) {
	user := uuid.New()
	mw := RequireRole(&rolesStub{err: errors.New("db down")}, "admin", testLogger())
	req := httptest.NewRequest(http.MethodGet, "/admin/imbalance-alerts", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserIDContextKey, user))
	rec := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestJWKSCache_UnknownKid(t *testing.T) {
	_, srv := newJWKSServer(t)
	if _, err := NewJWKSCache(srv.URL, time.Minute).Key(context.Background(), "rotated"); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
}
