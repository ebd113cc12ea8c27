package job

import (
	"encoding/json"
	"time"
)

// Job is a failed ingestion run kept for operator-initiated retry.
type Job struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Stage     string          `json:"stage"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
