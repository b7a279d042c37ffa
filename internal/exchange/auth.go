package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bhtaylor94/apex/internal/pkg/apperrors"
)

// Authenticated requests carry three headers signed with the account's RSA
// key. The signed message is timestampMs + METHOD + path-without-query, so a
// signature is only valid for the timestamp it was generated with.
const (
	headerAccessKey       = "KALSHI-ACCESS-KEY"
	headerAccessSignature = "KALSHI-ACCESS-SIGNATURE"
	headerAccessTimestamp = "KALSHI-ACCESS-TIMESTAMP"
)

// Credential holds the API key id and the RSA private key used for request
// signing. The key material is unexported and must never be logged or
// serialized.
type Credential struct {
	APIKeyID string

	privateKey *rsa.PrivateKey
}

// LoadCredential reads a PEM-encoded RSA private key from disk.
func LoadCredential(apiKeyID, pemPath string) (*Credential, error) {
	data, err := os.ReadFile(pemPath)
	if err != nil {
		return nil, apperrors.NewAuthFailed("read private key file", err)
	}
	return CredentialFromPEM(apiKeyID, data)
}

// CredentialFromPEM parses PEM-encoded RSA private key material (PKCS#8 or
// PKCS#1).
func CredentialFromPEM(apiKeyID string, pemData []byte) (*Credential, error) {
	if apiKeyID == "" {
		return nil, apperrors.NewAuthFailed("api key id is required", nil)
	}
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, apperrors.NewAuthFailed("no PEM block in key material", nil)
	}

	var key *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, apperrors.NewAuthFailed("private key is not RSA", nil)
		}
		key = rsaKey
	} else if parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = parsed
	} else {
		return nil, apperrors.NewAuthFailed("parse private key", err)
	}

	return &Credential{APIKeyID: apiKeyID, privateKey: key}, nil
}

// Sign produces a base64 RSA-PSS signature (SHA-256, salt length = digest
// length) over timestampMs + METHOD + path. Any query string is stripped
// from the path before signing.
func (c *Credential) Sign(timestampMs int64, method, path string) (string, error) {
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	message := strconv.FormatInt(timestampMs, 10) + strings.ToUpper(method) + path

	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", apperrors.NewAuthFailed("sign request", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a base64 signature against the same message layout Sign
// uses. Only needed by tests and tooling; the exchange does the real
// verification.
func (c *Credential) Verify(timestampMs int64, method, path, signature string) error {
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	message := strconv.FormatInt(timestampMs, 10) + strings.ToUpper(method) + path
	digest := sha256.Sum256([]byte(message))

	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return apperrors.NewAuthFailed("decode signature", err)
	}
	return rsa.VerifyPSS(&c.privateKey.PublicKey, crypto.SHA256, digest[:], raw, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
}

// AuthHeaders builds the authentication headers for one request attempt.
// The timestamp is generated fresh here: stale timestamps are the exchange's
// replay defense, so retries must call this again rather than reuse headers.
func (c *Credential) AuthHeaders(method, path string) (map[string]string, error) {
	ts := time.Now().UnixMilli()
	sig, err := c.Sign(ts, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		headerAccessKey:       c.APIKeyID,
		headerAccessSignature: sig,
		headerAccessTimestamp: strconv.FormatInt(ts, 10),
		"Content-Type":        "application/json",
	}, nil
}
