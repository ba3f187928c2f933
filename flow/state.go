package flow

// State names the steps of the settlement protocol. The states are observable
// through logging and the optional observer hook. They are not load bearing
// for correctness, the ledger is mutated exactly once, from Finalized.
type State string

const (
	StateBuilding           State = "building"
	StateVerified           State = "verified"
	StateLocallySigned      State = "locally signed"
	StateAwaitingSignatures State = "awaiting signatures"
	StateNotarizing         State = "notarizing"
	StateFinalized          State = "finalized"
	StateFailed             State = "failed"
)
