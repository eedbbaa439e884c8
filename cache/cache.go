// Package cache is the artifact cache gate: it short-circuits a build
// stage when an identical {group, buster, fingerprint} key has already
// produced a bundle.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/ledgerline/ledgerline/models"
)

// Store is an append-only bundle store. Save uses save-if-absent
// semantics: a second save under an identical key is an idempotent no-op,
// so concurrent writers for distinct groups never race.
type Store interface {
	// Lookup returns the bundle recorded under the key, if any.
	Lookup(ctx context.Context, key models.CacheKey) (*models.ArtifactBundle, bool, error)
	// Save records the bundle under its key unless the key already exists.
	Save(ctx context.Context, bundle *models.ArtifactBundle) error
}

// Fingerprint returns the hex sha256 of the given content. Content-derived
// by construction: a false cache hit would serve stale binaries into a
// signed release chain, so time or host must never enter the digest.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// TreeFingerprint digests a set of named files deterministically: entries
// are hashed in sorted name order, each as name, NUL, content digest.
func TreeFingerprint(files map[string][]byte) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		sum := sha256.Sum256(files[name])
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.ArtifactBundle
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*models.ArtifactBundle),
	}
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, key models.CacheKey) (*models.ArtifactBundle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bundle, ok := s.entries[key.String()]
	return bundle, ok, nil
}

// Save implements Store. The first write for a key wins; later identical
// writes are ignored.
func (s *MemoryStore) Save(_ context.Context, bundle *models.ArtifactBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := bundle.Key.String()
	if _, exists := s.entries[k]; exists {
		return nil
	}
	s.entries[k] = bundle
	return nil
}

// Len returns the number of distinct keys recorded.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
