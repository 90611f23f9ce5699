package gatherwire

// QueryRequest asks a node to execute one query.
type QueryRequest struct {
	ID        uint64 `json:"id"`
	RequestID string `json:"request_id,omitempty"`
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
	// TimeoutMs is the broker's remaining budget; the node stops
	// executing when it runs out.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}
