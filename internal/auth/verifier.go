// Package auth verifies RS256 bearer tokens against a pinned public certificate.
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedHeader is returned when the Authorization header is missing or
// does not carry a Bearer token.
var ErrMalformedHeader = errors.New("malformed authorization header")

// ErrInvalidToken is returned when the token fails signature or claims
// verification.
var ErrInvalidToken = errors.New("invalid token")

// Verifier checks bearer tokens against a fixed RSA public key.
type Verifier struct {
	key    *rsa.PublicKey
	parser *jwt.Parser
}

// NewVerifier creates a Verifier from a PEM encoded X.509 certificate or RSA
// public key.
func NewVerifier(pemBytes []byte) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parse verification certificate: %w", err)
	}
	return &Verifier{
		key:    key,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
	}, nil
}

// VerifyIdentity verifies the token in an Authorization header value and
// returns its subject claim.
func (v *Verifier) VerifyIdentity(header string) (string, error) {
	token, err := bearerToken(header)
	if err != nil {
		return "", err
	}

	var claims jwt.RegisteredClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// bearerToken extracts the second whitespace separated field of a header
// that starts with "Bearer " in any letter case.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: no authorization header", ErrMalformedHeader)
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", fmt.Errorf("%w: not a bearer token", ErrMalformedHeader)
	}
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return "", fmt.Errorf("%w: empty bearer token", ErrMalformedHeader)
	}
	return fields[1], nil
}
