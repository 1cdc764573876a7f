package names

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oopzlab/oopzbot/pkg/signer"
)

func testSigner(t *testing.T) *signer.Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	s, err := signer.Load(block, signer.Credentials{
		PersonUID: "bot-uid", DeviceID: "dev-1", Token: "jwt",
		AppVersion: "1.8.0", Platform: "windows", Channel: "official",
	})
	require.NoError(t, err)
	return s
}

func newResolver(t *testing.T, apiBase string) (*Resolver, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "names.json")
	r, err := NewResolver(path, apiBase, testSigner(t), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return r, path
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "123456789012", ShortID("123456789012"))
	assert.Equal(t, "abcdef..wxyz", ShortID("abcdefghijklmnopqrstuvwxyz"))
}

func TestUser_FetchesAndPersists(t *testing.T) {
	var gotPersons []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, personInfosPath, r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Oopz-Sign"))
		assert.NotEmpty(t, r.Header.Get("Oopz-Request-Id"))
		assert.Equal(t, "bot-uid", r.Header.Get("Oopz-Person"))

		var req personInfosRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPersons = req.Persons

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data":   []map[string]string{{"uid": "u-123", "name": "小明"}},
		})
	}))
	defer srv.Close()

	r, path := newResolver(t, srv.URL)
	assert.Equal(t, "小明", r.User(context.Background(), "u-123"))
	assert.Equal(t, []string{"u-123"}, gotPersons)

	// persisted: a fresh resolver with no API reads it from disk
	r2, err := NewResolver(path, "", nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, "小明", r2.User(context.Background(), "u-123"))
}

func TestUser_FallsBackToShortIDOnAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r, _ := newResolver(t, srv.URL)
	uid := "0123456789abcdef0123456789abcdef"
	assert.Equal(t, ShortID(uid), r.User(context.Background(), uid))
}

func TestUser_CacheHitSkipsAPI(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":true,"data":[]}`))
	}))
	defer srv.Close()

	r, _ := newResolver(t, srv.URL)
	r.SetUser("u-1", "alice")
	assert.Equal(t, "alice", r.User(context.Background(), "u-1"))
	assert.Equal(t, 0, calls)
}

func TestChannelAndArea_ShortIDFallback(t *testing.T) {
	r, _ := newResolver(t, "")
	r.SetChannel("ch-1", "综合频道")
	assert.Equal(t, "综合频道", r.Channel("ch-1"))
	assert.Equal(t, ShortID("ch-000000000000000000"), r.Channel("ch-000000000000000000"))
	assert.Equal(t, "", r.Area(""))
}

func TestFindUID(t *testing.T) {
	r, _ := newResolver(t, "")
	r.SetUser("u-1", "Alice")

	uid, ok := r.FindUID("alice")
	require.True(t, ok)
	assert.Equal(t, "u-1", uid)

	_, ok = r.FindUID("bob")
	assert.False(t, ok)
}

func TestNewResolver_CorruptCacheIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewResolver(path, "", nil, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}
