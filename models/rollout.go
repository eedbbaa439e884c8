package models

// IngestColor is the blue/green label of one of the two coexisting ingest
// instances. Successive deploy phases alternate colors so a new deployment
// never collides with a still-running prior ingest instance.
type IngestColor string

const (
	ColorBlue  IngestColor = "blue"
	ColorGreen IngestColor = "green"
)

// Other returns the opposite color.
func (c IngestColor) Other() IngestColor {
	if c == ColorBlue {
		return ColorGreen
	}
	return ColorBlue
}

// BlockVersion is a protocol-level version checkpoint of the ledger
// network. Upgrades are applied in place to a running deployment.
type BlockVersion int

// PhaseKind is the operation a rollout phase performs.
type PhaseKind string

const (
	PhaseDeploy  PhaseKind = "deploy"
	PhaseTest    PhaseKind = "test"
	PhaseUpgrade PhaseKind = "upgrade"
)

// RolloutPhase is one step of the staged rollout plan.
type RolloutPhase struct {
	Name    string
	Kind    PhaseKind
	Block   BlockVersion
	Color   IngestColor
	Minting bool   // token-minting authority enabled for this phase
	Version string // release version deployed or upgraded to
	FogLoad bool   // include fog-distribution load generation in tests
}
