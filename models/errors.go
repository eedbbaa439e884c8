package models

import "fmt"

// ResolutionError means the trigger context could not be resolved into
// environment metadata. Fatal: nothing downstream can run without it.
type ResolutionError struct {
	Ref    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve metadata from ref %q: %s", e.Ref, e.Reason)
}

func ErrResolution(ref, reason string) error {
	return &ResolutionError{Ref: ref, Reason: reason}
}

// BuildFailure means a toolchain or measurement collaborator failed, or an
// expected output was missing. Fatal to the owning group and every
// transitive consumer.
type BuildFailure struct {
	Group  ArtifactGroup
	Reason string
	Err    error
}

func (e *BuildFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("build of group %s failed: %s: %v", e.Group, e.Reason, e.Err)
	}
	return fmt.Sprintf("build of group %s failed: %s", e.Group, e.Reason)
}

func (e *BuildFailure) Unwrap() error { return e.Err }

func ErrBuild(group ArtifactGroup, reason string, err error) error {
	return &BuildFailure{Group: group, Reason: reason, Err: err}
}

// PublishFailure means one image or chart matrix entry failed to publish.
// Sibling entries still attempt completion; the aggregate stage fails.
type PublishFailure struct {
	Kind string // "image" or "chart"
	Name string
	Tag  string
	Err  error
}

func (e *PublishFailure) Error() string {
	return fmt.Sprintf("publish %s %s:%s failed: %v", e.Kind, e.Name, e.Tag, e.Err)
}

func (e *PublishFailure) Unwrap() error { return e.Err }

func ErrPublish(kind, name, tag string, err error) error {
	return &PublishFailure{Kind: kind, Name: name, Tag: tag, Err: err}
}

// MissingArtifactError means a stage unconditionally requires artifacts
// from a stage whose gate skipped it. Distinct from BuildFailure: nothing
// broke, the artifacts simply do not exist for this run's fingerprint.
// Either Group (a skipped build group) or Resource (a skipped publish
// class) is set.
type MissingArtifactError struct {
	Group    ArtifactGroup
	Resource string
}

func (e *MissingArtifactError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s were never published for this run but are required", e.Resource)
	}
	return fmt.Sprintf("artifact group %s was skipped but its outputs are required", e.Group)
}

func ErrMissingArtifact(group ArtifactGroup) error {
	return &MissingArtifactError{Group: group}
}

func ErrMissingPublished(resource string) error {
	return &MissingArtifactError{Resource: resource}
}

// PhaseFailure means a rollout phase failed, halting the state machine.
// It carries a snapshot of the environment metadata at failure time.
type PhaseFailure struct {
	Phase     string
	Kind      PhaseKind
	Namespace string
	Version   string
	Err       error
}

func (e *PhaseFailure) Error() string {
	return fmt.Sprintf("rollout phase %s (%s) failed in namespace %s at version %s: %v",
		e.Phase, e.Kind, e.Namespace, e.Version, e.Err)
}

func (e *PhaseFailure) Unwrap() error { return e.Err }

func ErrDeploy(phase string, meta EnvironmentMetadata, err error) error {
	return &PhaseFailure{Phase: phase, Kind: PhaseDeploy, Namespace: meta.Namespace, Version: meta.VersionTag, Err: err}
}

func ErrTest(phase string, meta EnvironmentMetadata, err error) error {
	return &PhaseFailure{Phase: phase, Kind: PhaseTest, Namespace: meta.Namespace, Version: meta.VersionTag, Err: err}
}

func ErrUpgrade(phase string, meta EnvironmentMetadata, err error) error {
	return &PhaseFailure{Phase: phase, Kind: PhaseUpgrade, Namespace: meta.Namespace, Version: meta.VersionTag, Err: err}
}
