package models

// CandlesResponse is the payload of the candles endpoint.
type CandlesResponse struct {
	Symbol  string       `json:"symbol"`
	Count   int          `json:"count"`
	Candles []CandleView `json:"candles"`
}

// HealthStatus reports backend reachability.
type HealthStatus struct {
	OK      bool        `json:"ok"`
	Store   string      `json:"store"`
	Cache   string      `json:"cache"`
	Version string      `json:"version"`
	Queue   *QueueDepth `json:"queue,omitempty"`
}

// QueueDepth counts background jobs by state. Dead jobs do not fail the health check.
type QueueDepth struct {
	Waiting  int64  `json:"waiting"`
	Retrying int64  `json:"retrying"`
	Dead     int64  `json:"dead"`
	Error    string `json:"error,omitempty"`
}

// SnapshotList is the payload of the snapshot listing endpoint.
type SnapshotList struct {
	Symbol    string           `json:"symbol"`
	Count     int              `json:"count"`
	Snapshots []KernelSnapshot `json:"snapshots"`
}
