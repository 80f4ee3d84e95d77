package auth

import (
	"context"
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
	"github.com/labstack/echo/v4"
)

func toJWK(key *rsa.PrivateKey, kid string) jwk {
	return jwk{
		Kty: "RSA",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
}

// newJWKSServer serves keys and counts fetches.
func newJWKSServer(t *testing.T, hits *int32, keys ...jwk) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func patientClaims(issuer string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "patient-1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{RolePatient},
	}
}

func runJWT(t *testing.T, cfg JWTConfig, token string) (string, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	var uid string
	err := JWTMiddleware(cfg)(func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		return nil
	})(c)
	return uid, err
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwks := newJWKSServer(t, nil, toJWK(key, "key-1"))

	uid, err := runJWT(t, JWTConfig{JWKSURL: jwks.URL}, signRS256(t, key, "key-1", patientClaims("")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "patient-1" {
		t.Errorf("expected patient-1, got %q", uid)
	}
}

func TestJWTMiddleware_JWKSRejectsHS256(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	jwks := newJWKSServer(t, nil, toJWK(key, "key-1"))

	token := createTestToken(t, patientClaims(""), testSigningKey)
	_, err := runJWT(t, JWTConfig{JWKSURL: jwks.URL}, token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_DiscoversJWKSFromIssuer(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	jwks := newJWKSServer(t, nil, toJWK(key, "key-1"))

	var issuer string
	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"issuer": issuer, "jwks_uri": jwks.URL})
	}))
	defer idp.Close()
	issuer = idp.URL

	uid, err := runJWT(t, JWTConfig{Issuer: issuer}, signRS256(t, key, "key-1", patientClaims(issuer)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "patient-1" {
		t.Errorf("expected patient-1, got %q", uid)
	}
}

func TestDiscoverJWKS_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]string
		code int
	}{
		{"not found", nil, http.StatusNotFound},
		{"missing jwks_uri", map[string]string{"issuer": "self"}, http.StatusOK},
		{"issuer mismatch", map[string]string{"issuer": "https://other.example.com", "jwks_uri": "http://x"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var srv *httptest.Server
			srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code != http.StatusOK {
					w.WriteHeader(tt.code)
					return
				}
				doc := map[string]string{}
				for k, v := range tt.doc {
					if v == "self" {
						v = srv.URL
					}
					doc[k] = v
				}
				json.NewEncoder(w).Encode(doc)
			}))
			defer srv.Close()

			if _, err := discoverJWKS(context.Background(), srv.Client(), srv.URL+"/"); err == nil {
				t.Error("expected discovery error")
			}
		})
	}
}

func TestKeySet_UnknownKidRefetchIsThrottled(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	var hits int32
	jwks := newJWKSServer(t, &hits, toJWK(key, "key-1"))

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ks := newKeySet(jwks.URL, "")
	ks.nowFn = func() time.Time { return now }
	ctx := context.Background()

	if _, err := ks.key(ctx, "key-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := ks.key(ctx, "forged"); err == nil {
			t.Fatal("expected error for unknown kid")
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected 1 fetch inside the refetch window, got %d", n)
	}

	now = now.Add(keySetMinRefetch)
	ks.key(ctx, "forged")
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("expected a refetch after the window, got %d fetches", n)
	}
}

func TestKeySet_ServesStaleKeyWhenProviderDown(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	var down int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&down) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": []jwk{toJWK(key, "key-1")}})
	}))
	defer srv.Close()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ks := newKeySet(srv.URL, "")
	ks.nowFn = func() time.Time { return now }
	ctx := context.Background()
	if _, err := ks.key(ctx, "key-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	atomic.StoreInt32(&down, 1)
	now = now.Add(keySetTTL + time.Second)
	if _, err := ks.key(ctx, "key-1"); err != nil {
		t.Errorf("expected last known key, got %v", err)
	}
	if _, err := ks.key(ctx, "key-2"); err == nil {
		t.Error("expected error for a kid never seen")
	}
}

func TestJWK_RSAKeyInvalid(t *testing.T) {
	tests := []jwk{
		{Kid: "bad-n", N: "!!!", E: "AQAB"},
		{Kid: "bad-e", N: "AQAB", E: "!!!"},
		{Kid: "empty-n", N: "", E: "AQAB"},
		{Kid: "long-e", N: "AQAB", E: base64.RawURLEncoding.EncodeToString([]byte{1, 2, 3, 4, 5})},
	}
	for _, k := range tests {
		if _, err := k.rsaKey(); err == nil {
			t.Errorf("%s: expected error", k.Kid)
		}
	}
}
