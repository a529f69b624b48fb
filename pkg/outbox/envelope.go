package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event sources recorded on the envelope actor.
const (
	SourceWebhook = "webhook"
	SourceCron    = "cron"
	SourceAPI     = "api"
)

// ActorRef names the account and entry point that caused the event.
type ActorRef struct {
	AccountID *uuid.UUID `json:"accountId,omitempty"`
	Source    string     `json:"source"`
}

// PayloadEnvelope wraps every outbox payload. Data holds the event-specific
// body and is decoded by the publisher registry.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload. Envelopes newer than this build
// understands, or without a data body, are rejected.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version > currentVersion {
		return env, fmt.Errorf("envelope version %d not supported", env.Version)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, fmt.Errorf("envelope %s has no data", env.EventID)
	}
	return env, nil
}
