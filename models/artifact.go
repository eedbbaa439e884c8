package models

import (
	"fmt"
	"time"
)

// ArtifactGroup identifies one of the two compiled artifact groups.
type ArtifactGroup string

const (
	// GroupEnclave is the hardware/enclave binary group: service binaries
	// plus signed enclave objects and their measurement files.
	GroupEnclave ArtifactGroup = "enclave"
	// GroupGateway is the managed-runtime gateway binary group.
	GroupGateway ArtifactGroup = "gateway"
)

// CacheKey addresses one artifact group build in the cache. Two runs with
// an identical key for the same group are treated as producing identical
// output. The fingerprint must be content-derived, never time-derived.
type CacheKey struct {
	Group       ArtifactGroup
	Buster      string // externally supplied invalidation value
	Fingerprint string // hex content digest of the source tree
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s-%s-%s", k.Group, k.Buster, k.Fingerprint)
}

// Artifact is one named build output inside a bundle.
type Artifact struct {
	Name   string `json:"name"`
	Digest string `json:"digest"` // hex sha256 of the content
	Size   int64  `json:"size"`
}

// ArtifactBundle is the ordered set of outputs of one artifact group build.
// Produced exactly once per cache miss, never mutated after creation.
type ArtifactBundle struct {
	Group     ArtifactGroup `json:"group"`
	Key       CacheKey      `json:"key"`
	Artifacts []Artifact    `json:"artifacts"`
	CreatedAt time.Time     `json:"created_at"`
}

// Find returns the artifact with the given name, if present.
func (b *ArtifactBundle) Find(name string) (Artifact, bool) {
	for _, a := range b.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}
