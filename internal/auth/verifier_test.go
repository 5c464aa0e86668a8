package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func genKey(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return pub, priv
}

func pemEncode(t *testing.T, pub ed25519.PublicKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal pubkey: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func signToken(t *testing.T, priv ed25519.PrivateKey, uid int32, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := tok.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestVerify(t *testing.T) {
	pub, priv := genKey(t)
	_, otherPriv := genKey(t)
	v := NewVerifier(pub)

	t.Run("valid token", func(t *testing.T) {
		uid, err := v.Verify(signToken(t, priv, 42, time.Now().Add(time.Hour)))
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if uid != 42 {
			t.Errorf("uid = %d, want 42", uid)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		if _, err := v.Verify(signToken(t, priv, 42, time.Now().Add(-time.Hour))); err == nil {
			t.Error("expired token accepted")
		}
	})

	t.Run("missing exp", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, Claims{UID: 42})
		s, err := tok.SignedString(priv)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if _, err := v.Verify(s); err == nil {
			t.Error("token without exp accepted")
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		if _, err := v.Verify(signToken(t, otherPriv, 42, time.Now().Add(time.Hour))); err == nil {
			t.Error("token signed with another key accepted")
		}
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"uid": 42,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		s, err := tok.SignedString([]byte("secret"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		if _, err := v.Verify(s); err == nil {
			t.Error("HS256 token accepted")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := v.Verify("not.a.token"); err == nil {
			t.Error("garbage token accepted")
		}
	})
}

func TestFetchKey(t *testing.T) {
	pub, _ := genKey(t)
	pemBytes := pemEncode(t, pub)

	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write(pemBytes)
		}))
		defer srv.Close()

		got, err := FetchKey(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("FetchKey: %v", err)
		}
		if !got.Equal(pub) {
			t.Error("fetched key differs from served key")
		}
	})

	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}))
		defer srv.Close()

		if _, err := FetchKey(context.Background(), srv.URL); err == nil {
			t.Error("FetchKey accepted a 500 response")
		}
	})

	t.Run("bad PEM", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("this is not a key"))
		}))
		defer srv.Close()

		if _, err := FetchKey(context.Background(), srv.URL); err == nil {
			t.Error("FetchKey accepted a non-PEM body")
		}
	})
}

func TestParseKeyRejectsNonEd25519(t *testing.T) {
	// An RSA key in valid PEM must be refused.
	const rsaPEM = `-----BEGIN PUBLIC KEY-----
MFwwDQYJKoZIhvcNAQEBBQADSwAwSAJBAKj34GkxFhD90vcNLYLInFEX6Ppy1tPf
9Cnzj4p4WGeKLs1Pt8QuKUpRKfFLfRYC9AIKjbJTWit+CqvjWYzvQwECAwEAAQ==
-----END PUBLIC KEY-----`
	if _, err := ParseKey([]byte(rsaPEM)); err == nil {
		t.Error("ParseKey accepted an RSA key")
	}
}
