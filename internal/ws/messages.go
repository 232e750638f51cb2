package ws

import "encoding/json"

const (
	TypeStatus = "status"
	TypeError  = "error"
)

// StatusMessage carries a status change of one job.
type StatusMessage struct {
	Type        string          `json:"type"`
	UID         string          `json:"uid"`
	Status      string          `json:"status"`
	Filename    string          `json:"filename"`
	Timestamp   string          `json:"timestamp"`
	Explanation json.RawMessage `json:"explanation"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	UID   string `json:"uid"`
	Error string `json:"error"`
}
