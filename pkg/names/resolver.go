// Package names maps person, channel and area ids to display names. Known
// names come from a JSON cache on disk; unknown persons are resolved in
// batch through the signed personInfos API and persisted for the next run.
package names

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oopzlab/oopzbot/pkg/signer"
)

const personInfosPath = "/client/v1/person/v1/personInfos"

type nameData struct {
	Users    map[string]string `json:"users"`
	Channels map[string]string `json:"channels"`
	Areas    map[string]string `json:"areas"`
}

type personInfosRequest struct {
	Persons   []string `json:"persons"`
	CommonIDs []string `json:"commonIds"`
}

type personInfosResponse struct {
	Status bool `json:"status"`
	Data   []struct {
		UID  string `json:"uid"`
		Name string `json:"name"`
	} `json:"data"`
}

type Resolver struct {
	mu     sync.Mutex
	data   nameData
	path   string
	client *resty.Client
	signer *signer.Signer
	log    *slog.Logger
}

// NewResolver loads the cache at path (missing file is fine) and prepares
// the API client. A nil signer disables lookups; unknown ids then fall back
// to their short form.
func NewResolver(path, apiBase string, s *signer.Signer, log *slog.Logger) (*Resolver, error) {
	r := &Resolver{
		data: nameData{
			Users:    make(map[string]string),
			Channels: make(map[string]string),
			Areas:    make(map[string]string),
		},
		path:   path,
		signer: s,
		log:    log,
	}
	if s != nil && apiBase != "" {
		r.client = resty.New().SetBaseURL(apiBase).SetTimeout(10 * time.Second)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("names: read cache: %w", err)
	}
	if err := json.Unmarshal(raw, &r.data); err != nil {
		return nil, fmt.Errorf("names: parse cache: %w", err)
	}
	if r.data.Users == nil {
		r.data.Users = make(map[string]string)
	}
	if r.data.Channels == nil {
		r.data.Channels = make(map[string]string)
	}
	if r.data.Areas == nil {
		r.data.Areas = make(map[string]string)
	}
	return r, nil
}

// User returns the display name for uid, querying the API when the cache
// misses. Unknown after lookup falls back to the shortened id.
func (r *Resolver) User(ctx context.Context, uid string) string {
	if uid == "" {
		return ""
	}
	r.mu.Lock()
	name := r.data.Users[uid]
	r.mu.Unlock()
	if name != "" {
		return name
	}

	r.ResolveUsers(ctx, []string{uid})

	r.mu.Lock()
	name = r.data.Users[uid]
	r.mu.Unlock()
	if name != "" {
		return name
	}
	return ShortID(uid)
}

// Channel returns the cached channel name or the shortened id.
func (r *Resolver) Channel(id string) string { return r.cached(r.data.Channels, id) }

// Area returns the cached area name or the shortened id.
func (r *Resolver) Area(id string) string { return r.cached(r.data.Areas, id) }

func (r *Resolver) cached(m map[string]string, id string) string {
	if id == "" {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if name := m[id]; name != "" {
		return name
	}
	// remember the id so an operator can fill the name in by hand
	if _, ok := m[id]; !ok {
		m[id] = ""
		r.saveLocked()
	}
	return ShortID(id)
}

func (r *Resolver) SetUser(uid, name string)   { r.set(r.data.Users, uid, name) }
func (r *Resolver) SetChannel(id, name string) { r.set(r.data.Channels, id, name) }
func (r *Resolver) SetArea(id, name string)    { r.set(r.data.Areas, id, name) }

func (r *Resolver) set(m map[string]string, id, name string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m[id] = name
	r.saveLocked()
}

// FindUID reverse-looks-up a user id by display name, case-insensitively.
func (r *Resolver) FindUID(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, n := range r.data.Users {
		if n != "" && strings.EqualFold(n, name) {
			return uid, true
		}
	}
	return "", false
}

// ResolveUsers fetches names for the uids that are not yet cached. The
// request body is signed byte-for-byte; errors only log since a missing
// name never blocks the pipeline.
func (r *Resolver) ResolveUsers(ctx context.Context, uids []string) {
	if r.client == nil {
		return
	}

	var unknown []string
	r.mu.Lock()
	for _, uid := range uids {
		if uid != "" && r.data.Users[uid] == "" {
			unknown = append(unknown, uid)
		}
	}
	r.mu.Unlock()
	if len(unknown) == 0 {
		return
	}

	body, err := json.Marshal(personInfosRequest{Persons: unknown, CommonIDs: []string{}})
	if err != nil {
		r.log.Warn("names: encode request", "error", err)
		return
	}
	headers, err := r.signer.Headers(personInfosPath, body)
	if err != nil {
		r.log.Warn("names: sign request", "error", err)
		return
	}

	var out personInfosResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post(personInfosPath)
	if err != nil {
		r.log.Debug("names: personInfos request failed", "error", err)
		return
	}
	if resp.StatusCode() != 200 || !out.Status {
		r.log.Debug("names: personInfos rejected", "status", resp.StatusCode())
		return
	}

	updated := 0
	r.mu.Lock()
	for _, p := range out.Data {
		if p.UID != "" && p.Name != "" {
			r.data.Users[p.UID] = p.Name
			updated++
		}
	}
	if updated > 0 {
		r.saveLocked()
	}
	r.mu.Unlock()
	if updated > 0 {
		r.log.Info("names: resolved users", "count", updated)
	}
}

// ShortID abbreviates long opaque ids for display.
func ShortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + ".." + id[len(id)-4:]
}

func (r *Resolver) saveLocked() {
	if r.path == "" {
		return
	}
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		r.log.Error("names: encode cache", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.log.Error("names: create cache dir", "error", err)
		return
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		r.log.Error("names: write cache", "error", err)
	}
}
