// Package signer produces the asymmetric signatures required by every
// authenticated platform request. A payload is hashed with SHA-256 and
// signed with RSA PKCS#1 v1.5 using the operator's private key.
package signer

import (
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoPEMBlock is returned when the key material contains no PEM block.
	ErrNoPEMBlock = errors.New("signer: no PEM block found in key material")
	// ErrUnsupportedKey is returned when the PEM block is neither a PKCS#1
	// nor a PKCS#8 RSA private key.
	ErrUnsupportedKey = errors.New("signer: unsupported private key format")
)

// Credentials carries the identity attached to every signed request.
type Credentials struct {
	PersonUID  string
	DeviceID   string
	Token      string
	AppVersion string
	Platform   string
	Channel    string
}

// Signer signs payloads with a parsed RSA private key. Signing is pure and
// side-effect-free; key parse failures surface at construction, at startup.
type Signer struct {
	key   *rsa.PrivateKey
	creds Credentials
}

// Load parses an RSA private key from PEM bytes. Both PKCS#1
// ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings are accepted.
func Load(pemBytes []byte, creds Credentials) (*Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Signer{key: key, creds: creds}, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: PKCS#8 key is not RSA", ErrUnsupportedKey)
	}
	return &Signer{key: key, creds: creds}, nil
}

// LoadFile reads and parses a PEM private key from disk.
func LoadFile(path string, creds Credentials) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: reading key file: %w", err)
	}
	return Load(data, creds)
}

// Sign returns the PKCS#1 v1.5 signature over the SHA-256 digest of payload.
func (s *Signer) Sign(payload []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return sig, nil
}

// SignBase64 signs payload and returns the signature base64-encoded, the
// form the platform expects in its signature header.
func (s *Signer) SignBase64(payload []byte) (string, error) {
	sig, err := s.Sign(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Headers builds the authenticated header set for a platform API request.
// The signature covers md5(path+body) concatenated with the millisecond
// timestamp, matching the platform's authenticated-request format.
func (s *Signer) Headers(path string, body []byte) (map[string]string, error) {
	return s.headersAt(path, body, time.Now())
}

func (s *Signer) headersAt(path string, body []byte, now time.Time) (map[string]string, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	sum := md5.Sum(append([]byte(path), body...))
	sig, err := s.SignBase64([]byte(hex.EncodeToString(sum[:]) + ts))
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"Oopz-Sign":               sig,
		"Oopz-Request-Id":         uuid.New().String(),
		"Oopz-Time":               ts,
		"Oopz-App-Version-Number": s.creds.AppVersion,
		"Oopz-Channel":            s.creds.Channel,
		"Oopz-Device-Id":          s.creds.DeviceID,
		"Oopz-Platform":           s.creds.Platform,
		"Oopz-Person":             s.creds.PersonUID,
		"Oopz-Signature":          s.creds.Token,
	}, nil
}

// PublicKey exposes the public half for verification in tests.
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// Credentials returns the identity the signer was constructed with.
func (s *Signer) Credentials() Credentials {
	return s.creds
}
