package model

import "context"

// LedgerStatus is a point-in-time snapshot of the connector state. When
// Connected is false, SimulationMode is true and all anchoring happens against
// local state only.
type LedgerStatus struct {
	Connected      bool   `json:"connected"`
	Chain          string `json:"chain"`
	NodeName       string `json:"nodeName"`
	NodeVersion    string `json:"nodeVersion"`
	CurrentBlock   uint64 `json:"currentBlock"`
	Endpoint       string `json:"endpoint"`
	SimulationMode bool   `json:"simulationMode"`
	Error          string `json:"error,omitempty"`
}

// Ledger is the connectivity dependency injected into services that anchor
// state to the distributed ledger.
type Ledger interface {
	// Ensure establishes the process-wide connection on first use and reports
	// whether a live connection is available.
	Ensure(ctx context.Context) error
	Status() LedgerStatus
}
