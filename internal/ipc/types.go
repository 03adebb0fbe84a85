package ipc

import "time"

// StopRequest asks the node to shut down.
type StopRequest struct {
	Reason string `json:"reason"`
}

// StopResponse reports whether the request was recorded.
type StopResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// StatusRequest fetches node status.
type StatusRequest struct{}

// StepStatus is the outcome of one startup step.
type StepStatus struct {
	Name      string `json:"name"`
	Outcome   string `json:"outcome"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`
}

// WalletStatus summarizes the key store.
type WalletStatus struct {
	Enabled      bool   `json:"enabled"`
	Path         string `json:"path"`
	Keys         int    `json:"keys"`
	PoolSize     int    `json:"pool_size"`
	Transactions int    `json:"transactions"`
	Balance      int64  `json:"balance"`
	BestHeight   int64  `json:"best_height"`
}

// StatusResponse is the node status shown by `coind status`.
type StatusResponse struct {
	PID               int          `json:"pid"`
	RunID             string       `json:"run_id"`
	Network           string       `json:"network"`
	DataDir           string       `json:"data_dir"`
	StartedAt         time.Time    `json:"started_at"`
	Height            int64        `json:"height"`
	Tip               string       `json:"tip"`
	Listeners         []string     `json:"listeners"`
	InboundPeers      int64        `json:"inbound_peers"`
	OutboundPeers     []string     `json:"outbound_peers"`
	Workers           []string     `json:"workers"`
	Steps             []StepStatus `json:"steps"`
	Wallet            WalletStatus `json:"wallet"`
	Staking           bool         `json:"staking"`
	StakeAttempts     int64        `json:"stake_attempts"`
	Masternode        bool         `json:"masternode"`
	MasternodePings   int          `json:"masternode_pings"`
	MixingEntries     int          `json:"mixing_entries"`
	ShutdownRequested bool         `json:"shutdown_requested"`
}
