package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Service enqueues work for background workers.
type Service interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig configures workers and retries.
type QueueConfig struct {
	Workers      int
	RetryLimit   int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}

// ParsePayload decodes a job payload into T.
func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	var out T
	if len(payload) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
