package exchange

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredential(t *testing.T) *Credential {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &Credential{APIKeyID: "test-key-id", privateKey: key}
}

func TestSignVerify(t *testing.T) {
	cred := testCredential(t)

	sig, err := cred.Sign(1700000000000, "GET", "/trade-api/v2/portfolio/balance")
	require.NoError(t, err)
	assert.NotEmpty(t, sig)

	err = cred.Verify(1700000000000, "GET", "/trade-api/v2/portfolio/balance", sig)
	assert.NoError(t, err)
}

func TestSignIsTimestampBound(t *testing.T) {
	cred := testCredential(t)

	sig, err := cred.Sign(1700000000000, "GET", "/trade-api/v2/markets")
	require.NoError(t, err)

	// Same path, different timestamp must not verify.
	err = cred.Verify(1700000000001, "GET", "/trade-api/v2/markets", sig)
	assert.Error(t, err)
}

func TestSignStripsQueryString(t *testing.T) {
	cred := testCredential(t)

	sig, err := cred.Sign(1700000000000, "GET", "/trade-api/v2/markets?limit=100&cursor=abc")
	require.NoError(t, err)

	// The signature covers only the path, so it verifies against the bare
	// path and against any query variant.
	assert.NoError(t, cred.Verify(1700000000000, "GET", "/trade-api/v2/markets", sig))
	assert.NoError(t, cred.Verify(1700000000000, "GET", "/trade-api/v2/markets?limit=5", sig))
}

func TestSignUppercasesMethod(t *testing.T) {
	cred := testCredential(t)

	sig, err := cred.Sign(1700000000000, "get", "/trade-api/v2/markets")
	require.NoError(t, err)
	assert.NoError(t, cred.Verify(1700000000000, "GET", "/trade-api/v2/markets", sig))
}

func TestAuthHeaders(t *testing.T) {
	cred := testCredential(t)

	headers, err := cred.AuthHeaders("POST", "/trade-api/v2/portfolio/orders")
	require.NoError(t, err)

	assert.Equal(t, "test-key-id", headers["KALSHI-ACCESS-KEY"])
	assert.NotEmpty(t, headers["KALSHI-ACCESS-SIGNATURE"])
	assert.NotEmpty(t, headers["KALSHI-ACCESS-TIMESTAMP"])
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestAuthHeadersFreshPerCall(t *testing.T) {
	cred := testCredential(t)

	first, err := cred.AuthHeaders("GET", "/trade-api/v2/markets")
	require.NoError(t, err)
	second, err := cred.AuthHeaders("GET", "/trade-api/v2/markets")
	require.NoError(t, err)

	// PSS signatures are randomized, so even an identical timestamp yields
	// a different signature. Retries must never reuse headers.
	assert.NotEqual(t, first["KALSHI-ACCESS-SIGNATURE"], second["KALSHI-ACCESS-SIGNATURE"])
}

func TestCredentialFromPEM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	t.Run("pkcs8", func(t *testing.T) {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		require.NoError(t, err)
		pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

		cred, err := CredentialFromPEM("k", pemData)
		require.NoError(t, err)
		assert.Equal(t, "k", cred.APIKeyID)
	})

	t.Run("pkcs1", func(t *testing.T) {
		der := x509.MarshalPKCS1PrivateKey(key)
		pemData := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})

		_, err := CredentialFromPEM("k", pemData)
		assert.NoError(t, err)
	})

	t.Run("missing key id", func(t *testing.T) {
		_, err := CredentialFromPEM("", []byte("irrelevant"))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := CredentialFromPEM("k", []byte("not pem at all"))
		assert.Error(t, err)
	})
}
