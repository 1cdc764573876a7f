package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCreds() Credentials {
	return Credentials{
		PersonUID:  "person-123",
		DeviceID:   "device-456",
		Token:      "jwt-token",
		AppVersion: "1.8.0",
		Platform:   "windows",
		Channel:    "official",
	}
}

func genPKCS1PEM(t *testing.T) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(key)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}), key
}

func genPKCS8PEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestLoad_PKCS1(t *testing.T) {
	pemBytes, _ := genPKCS1PEM(t)
	s, err := Load(pemBytes, testCreds())
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestLoad_PKCS8(t *testing.T) {
	s, err := Load(genPKCS8PEM(t), testCreds())
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestLoad_Garbage(t *testing.T) {
	_, err := Load([]byte("not a key"), testCreds())
	assert.ErrorIs(t, err, ErrNoPEMBlock)
}

func TestLoad_WrongKeyType(t *testing.T) {
	// An EC key in PKCS#8 form must be rejected, not silently accepted.
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: []byte{0x30, 0x00}}
	_, err := Load(pem.EncodeToMemory(block), testCreds())
	assert.Error(t, err)
}

func TestSign_Verifiable(t *testing.T) {
	pemBytes, key := genPKCS1PEM(t)
	s, err := Load(pemBytes, testCreds())
	require.NoError(t, err)

	payload := []byte("hello oopz")
	sig, err := s.Sign(payload)
	require.NoError(t, err)

	digest := sha256.Sum256(payload)
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
}

func TestSignBase64_Decodes(t *testing.T) {
	pemBytes, _ := genPKCS1PEM(t)
	s, err := Load(pemBytes, testCreds())
	require.NoError(t, err)

	b64, err := s.SignBase64([]byte("payload"))
	require.NoError(t, err)
	_, err = base64.StdEncoding.DecodeString(b64)
	assert.NoError(t, err)
}

func TestHeaders(t *testing.T) {
	pemBytes, _ := genPKCS1PEM(t)
	s, err := Load(pemBytes, testCreds())
	require.NoError(t, err)

	now := time.UnixMilli(1700000000000)
	h, err := s.headersAt("/client/v1/person/v1/personInfos", []byte(`{"persons":["a"]}`), now)
	require.NoError(t, err)

	assert.Equal(t, "1700000000000", h["Oopz-Time"])
	assert.Equal(t, "person-123", h["Oopz-Person"])
	assert.Equal(t, "device-456", h["Oopz-Device-Id"])
	assert.Equal(t, "jwt-token", h["Oopz-Signature"])
	assert.NotEmpty(t, h["Oopz-Sign"])
	assert.NotEmpty(t, h["Oopz-Request-Id"])

	// Same path/body/time must produce a fresh request id each call.
	h2, err := s.headersAt("/client/v1/person/v1/personInfos", []byte(`{"persons":["a"]}`), now)
	require.NoError(t, err)
	assert.NotEqual(t, h["Oopz-Request-Id"], h2["Oopz-Request-Id"])
}
