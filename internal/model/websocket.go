package model

// WebSocket message types
const (
	WSMessageTypeComplete = "complete"
	WSMessageTypeFailed   = "failed"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Result interface{} `json:"result"`
}

// WSFailedMessage represents a permanently failed job
type WSFailedMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	Error string `json:"error"`
}
