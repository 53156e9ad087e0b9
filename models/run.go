package models

// Run is the stored summary of one finished simulation run.
type Run struct {
	ID           string `json:"id"`
	Protocol     string `json:"protocol"`
	Seed         int64  `json:"seed"`
	Miners       int    `json:"miners"`
	Ticks        int    `json:"ticks"`
	TriggeredAt  int    `json:"triggered_at"` // tick the primary termination condition fired, -1 if never
	Transactions int    `json:"transactions"`
	DistinctIDs  int    `json:"distinct_ids"`
	CreatedAt    int64  `json:"created_at"` // unix ms
	Error        string `json:"error,omitempty"`
}

// MinerView is a miner's final local view, kept for diagnostic rendering.
type MinerView struct {
	Miner    int    `json:"miner"`
	Root     Hash   `json:"root"`
	Frontier []Hash `json:"frontier"`
	Accepted []Hash `json:"accepted"`
	Orphans  []Hash `json:"orphans"`
	Seen     int    `json:"seen"`
}
