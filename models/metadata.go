package models

// EnvironmentMetadata is the resolved identity of a run: the namespace the
// run deploys into, the version tag stamped on every artifact, and the
// container image tag. Computed once by the metadata resolver and shared
// read-only by every downstream stage.
type EnvironmentMetadata struct {
	Namespace  string
	VersionTag string
	ImageTag   string
}
