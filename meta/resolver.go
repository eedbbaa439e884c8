// Package meta derives the environment identity of a pipeline run from its
// trigger context: a stable namespace, a version tag and an image tag.
package meta

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ledgerline/ledgerline/models"
)

// Namespaces must be valid cluster identifiers.
const maxNamespaceLen = 63

// Resolve computes the environment metadata for a trigger. It is a pure
// function of the trigger context: the same branch or PR always maps to the
// same namespace, so repeated runs reuse (or safely reset) the same
// environment. A malformed ref is fatal and aborts the whole pipeline.
func Resolve(trigger models.TriggerContext) (models.EnvironmentMetadata, error) {
	if trigger.Ref == "" && trigger.PRNumber <= 0 {
		return models.EnvironmentMetadata{}, models.ErrResolution(trigger.Ref, "empty ref")
	}

	namespace, err := resolveNamespace(trigger)
	if err != nil {
		return models.EnvironmentMetadata{}, err
	}

	version, err := resolveVersion(trigger)
	if err != nil {
		return models.EnvironmentMetadata{}, err
	}

	return models.EnvironmentMetadata{
		Namespace:  namespace,
		VersionTag: version,
		ImageTag:   version,
	}, nil
}

func resolveNamespace(trigger models.TriggerContext) (string, error) {
	if trigger.Event == models.EventPullRequest {
		if trigger.PRNumber <= 0 {
			return "", models.ErrResolution(trigger.Ref, "pull request trigger without PR number")
		}
		return fmt.Sprintf("pr-%d", trigger.PRNumber), nil
	}

	ns := Normalize(trigger.Ref)
	if ns == "" {
		return "", models.ErrResolution(trigger.Ref, "ref normalizes to empty namespace")
	}
	return ns, nil
}

func resolveVersion(trigger models.TriggerContext) (string, error) {
	if trigger.Event == models.EventTag {
		raw := trigger.Ref
		raw = strings.TrimPrefix(raw, "release/")
		raw = strings.TrimPrefix(raw, "v")
		v, err := semver.NewVersion(raw)
		if err != nil {
			return "", models.ErrResolution(trigger.Ref, fmt.Sprintf("tag is not a semantic version: %v", err))
		}
		return v.String(), nil
	}

	// Non-tag runs get a build-specific prerelease identifier.
	id := trigger.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return "", models.ErrResolution(trigger.Ref, "run has no identifier to derive a version from")
	}
	return "0.0.0-dev." + id, nil
}

// Normalize maps an arbitrary ref to a stable cluster-safe identifier:
// lowercased, runs of non-alphanumerics collapsed to single dashes,
// trimmed, and truncated to the identifier length limit.
func Normalize(ref string) string {
	var b strings.Builder
	lastDash := true // suppress leading dashes
	for _, r := range strings.ToLower(ref) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	ns := strings.TrimRight(b.String(), "-")
	if len(ns) > maxNamespaceLen {
		ns = strings.TrimRight(ns[:maxNamespaceLen], "-")
	}
	return ns
}
