// Package auth verifies the Ed25519-signed bearer tokens minted by the
// external SSO. The server pins a single public key fetched at startup;
// rotating the key requires a restart. There is no revocation list; a
// token is valid until its exp claim.
package auth

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload: {exp, uid}.
type Claims struct {
	UID int32 `json:"uid"`
	jwt.RegisteredClaims
}

// Verifier validates compact JWS tokens against the pinned public key.
type Verifier struct {
	key ed25519.PublicKey
}

// FetchKey retrieves the PEM-encoded Ed25519 public key from url.
func FetchKey(ctx context.Context, url string) (ed25519.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build pubkey request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pubkey from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch pubkey from %s: status %d", url, resp.StatusCode)
	}

	pemBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read pubkey body: %w", err)
	}

	return ParseKey(pemBytes)
}

// ParseKey parses a PEM-encoded Ed25519 public key.
func ParseKey(pemBytes []byte) (ed25519.PublicKey, error) {
	key, err := jwt.ParseEdPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse pubkey PEM: %w", err)
	}
	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("pubkey is %T, want ed25519", key)
	}
	return edKey, nil
}

// NewVerifier pins the given public key.
func NewVerifier(key ed25519.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// Verify checks signature and expiry and returns the uid claim.
func (v *Verifier) Verify(token string) (int32, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	return claims.UID, nil
}
