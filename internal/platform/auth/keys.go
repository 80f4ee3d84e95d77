package auth

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
)

const (
	keySetTTL        = 5 * time.Minute
	keySetMinRefetch = 30 * time.Second
)

// jwk is the RSA subset of a JSON Web Key.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// keySet serves the identity provider's RSA verification keys by kid. The
// JWKS location is either configured or discovered from the issuer on first
// use. An unknown kid triggers a refetch at most once per minRefetch.
type keySet struct {
	issuer     string
	ttl        time.Duration
	minRefetch time.Duration
	client     *http.Client
	nowFn      func() time.Time

	mu        sync.Mutex
	url       string
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newKeySet(jwksURL, issuer string) *keySet {
	return &keySet{
		issuer:     issuer,
		url:        jwksURL,
		ttl:        keySetTTL,
		minRefetch: keySetMinRefetch,
		client:     &http.Client{Timeout: 10 * time.Second},
		nowFn:      time.Now,
	}
}

// keyFunc adapts the set to jwt parsing for one request.
func (s *keySet) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return s.key(ctx, kid)
	}
}

func (s *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	k, ok := s.keys[kid]
	if ok && now.Sub(s.fetchedAt) < s.ttl {
		return k, nil
	}
	if !s.fetchedAt.IsZero() && now.Sub(s.fetchedAt) < s.minRefetch {
		if ok {
			return k, nil
		}
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}

	if err := s.refresh(ctx, now); err != nil {
		if ok {
			// Keep verifying with the last known key while the provider is down.
			return k, nil
		}
		return nil, err
	}
	if k, ok = s.keys[kid]; !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return k, nil
}

// refresh must be called with s.mu held.
func (s *keySet) refresh(ctx context.Context, now time.Time) error {
	if s.url == "" {
		u, err := discoverJWKS(ctx, s.client, s.issuer)
		if err != nil {
			return err
		}
		s.url = u
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := getJSON(ctx, s.client, s.url, &doc); err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := k.rsaKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	s.keys = keys
	s.fetchedAt = now
	return nil
}

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(n) == 0 {
		return nil, fmt.Errorf("key %q: bad modulus", k.Kid)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil || len(e) == 0 || len(e) > 4 {
		return nil, fmt.Errorf("key %q: bad exponent", k.Kid)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}

// discoverJWKS reads the issuer's OpenID configuration and returns its
// jwks_uri. The document must name the same issuer.
func discoverJWKS(ctx context.Context, client *http.Client, issuer string) (string, error) {
	issuer = strings.TrimRight(issuer, "/")
	if issuer == "" {
		return "", errors.New("oidc discovery: no issuer configured")
	}
	var doc struct {
		Issuer  string `json:"issuer"`
		JWKSURI string `json:"jwks_uri"`
	}
	if err := getJSON(ctx, client, issuer+"/.well-known/openid-configuration", &doc); err != nil {
		return "", fmt.Errorf("oidc discovery: %w", err)
	}
	if strings.TrimRight(doc.Issuer, "/") != issuer {
		return "", fmt.Errorf("oidc discovery: document issuer %q does not match %q", doc.Issuer, issuer)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("oidc discovery: no jwks_uri")
	}
	return doc.JWKSURI, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
