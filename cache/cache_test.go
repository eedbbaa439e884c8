package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerline/ledgerline/models"
)

func testKey(group models.ArtifactGroup, fingerprint string) models.CacheKey {
	return models.CacheKey{Group: group, Buster: "v1", Fingerprint: fingerprint}
}

func TestMemoryStore_MissThenHit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := testKey(models.GroupEnclave, Fingerprint([]byte("sources")))

	if _, hit, err := store.Lookup(ctx, key); err != nil || hit {
		t.Fatalf("expected clean miss, got hit=%v err=%v", hit, err)
	}

	bundle := &models.ArtifactBundle{
		Group:     models.GroupEnclave,
		Key:       key,
		Artifacts: []models.Artifact{{Name: "consensus-service", Digest: "aa", Size: 1}},
		CreatedAt: time.Now(),
	}
	if err := store.Save(ctx, bundle); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, hit, err := store.Lookup(ctx, key)
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if got != bundle {
		t.Error("hit should return the same bundle reference")
	}
}

func TestMemoryStore_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := testKey(models.GroupGateway, "fp")

	first := &models.ArtifactBundle{Group: models.GroupGateway, Key: key}
	second := &models.ArtifactBundle{Group: models.GroupGateway, Key: key}

	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, _, _ := store.Lookup(ctx, key)
	if got != first {
		t.Error("first write must win; later identical keys are ignored")
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", store.Len())
	}
}

func TestMemoryStore_GroupsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	enclave := &models.ArtifactBundle{Group: models.GroupEnclave, Key: testKey(models.GroupEnclave, "same")}
	gateway := &models.ArtifactBundle{Group: models.GroupGateway, Key: testKey(models.GroupGateway, "same")}

	if err := store.Save(ctx, enclave); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, gateway); err != nil {
		t.Fatal(err)
	}

	if store.Len() != 2 {
		t.Errorf("groups with equal fingerprints must not collide, got %d entries", store.Len())
	}
}

func TestFingerprint_ContentDerived(t *testing.T) {
	a := Fingerprint([]byte("enclave sources"))
	b := Fingerprint([]byte("enclave sources"))
	c := Fingerprint([]byte("different sources"))

	if a != b {
		t.Error("identical content must fingerprint identically")
	}
	if a == c {
		t.Error("different content must fingerprint differently")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
}

func TestTreeFingerprint_OrderIndependent(t *testing.T) {
	a := TreeFingerprint(map[string][]byte{
		"src/lib.rs":  []byte("one"),
		"src/main.rs": []byte("two"),
	})
	b := TreeFingerprint(map[string][]byte{
		"src/main.rs": []byte("two"),
		"src/lib.rs":  []byte("one"),
	})

	if a != b {
		t.Error("tree fingerprint must not depend on map iteration order")
	}
}

func TestTreeFingerprint_NameSensitive(t *testing.T) {
	a := TreeFingerprint(map[string][]byte{"a.rs": []byte("x")})
	b := TreeFingerprint(map[string][]byte{"b.rs": []byte("x")})

	if a == b {
		t.Error("renaming a file must change the tree fingerprint")
	}
}

func TestConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		group := models.GroupEnclave
		if i == 1 {
			group = models.GroupGateway
		}
		go func(g models.ArtifactGroup) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_ = store.Save(ctx, &models.ArtifactBundle{Group: g, Key: testKey(g, "fp")})
			}
		}(group)
	}
	<-done
	<-done

	if store.Len() != 2 {
		t.Errorf("expected 2 entries after concurrent saves, got %d", store.Len())
	}
}
