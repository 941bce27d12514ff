// Package testutil provides testing utilities.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues RS256 tokens and exposes the matching self-signed certificate.
type Signer struct {
	key     *rsa.PrivateKey
	certPEM []byte
}

// NewSigner generates a fresh RSA key and a self-signed certificate for it.
func NewSigner(t *testing.T) *Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "todoapi-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return &Signer{
		key:     key,
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// CertificatePEM returns the PEM encoded certificate.
func (s *Signer) CertificatePEM() []byte {
	return s.certPEM
}

// Token signs a token for subject that expires in an hour.
func (s *Signer) Token(t *testing.T, subject string) string {
	t.Helper()
	return s.TokenWithClaims(t, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
}

// TokenWithClaims signs arbitrary registered claims.
func (s *Signer) TokenWithClaims(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// Header returns a Bearer Authorization header value for subject.
func (s *Signer) Header(t *testing.T, subject string) string {
	t.Helper()
	return "Bearer " + s.Token(t, subject)
}
