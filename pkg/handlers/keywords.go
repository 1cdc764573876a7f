package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/oopzlab/oopzbot/pkg/events"
)

// KeywordStore holds the keyword → reply table, persisted as JSON so admin
// edits survive restarts. Matching is exact first, substring second, both
// case-insensitive.
type KeywordStore struct {
	mu      sync.RWMutex
	replies map[string]string
	path    string
}

// NewKeywordStore loads the table at path; a missing file starts empty.
func NewKeywordStore(path string) (*KeywordStore, error) {
	s := &KeywordStore{replies: make(map[string]string), path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("keywords: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.replies); err != nil {
		return nil, fmt.Errorf("keywords: parse %s: %w", path, err)
	}
	return s, nil
}

// React implements the router's passive hook: keyword auto-replies for
// plain messages. Plain messages never trigger AI.
func (s *KeywordStore) React(_ context.Context, ev events.InboundEvent) (string, bool) {
	reply, ok := s.Match(ev.Content)
	return reply, ok
}

func (s *KeywordStore) Match(content string) (string, bool) {
	c := strings.ToLower(strings.TrimSpace(content))
	if c == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for kw, reply := range s.replies {
		if strings.ToLower(kw) == c {
			return reply, true
		}
	}
	for kw, reply := range s.replies {
		if strings.Contains(c, strings.ToLower(kw)) {
			return reply, true
		}
	}
	return "", false
}

func (s *KeywordStore) Add(keyword, reply string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[keyword] = reply
	return s.saveLocked()
}

func (s *KeywordStore) Remove(keyword string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.replies[keyword]; !ok {
		return false, nil
	}
	delete(s.replies, keyword)
	return true, s.saveLocked()
}

func (s *KeywordStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.replies))
	for kw := range s.replies {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

func (s *KeywordStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(s.replies, "", "  ")
	if err != nil {
		return fmt.Errorf("keywords: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("keywords: create dir: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("keywords: write %s: %w", s.path, err)
	}
	return nil
}
