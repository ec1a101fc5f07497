package events

import (
	"context"
	"encoding/json"

	"github.com/darehouse/backend/internal/models"
)

// Streams
const (
	StreamBet    = "events:bet"
	StreamMirror = "events:mirror"
)

// Event types
const (
	EventBetLifecycle    = "bet_lifecycle"
	EventDepositCredited = "deposit_credited"
	EventSnapshotUpdated = "snapshot_updated"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// FromBetEvent wraps a committed lifecycle record for publication.
func FromBetEvent(e models.BetEvent) Event {
	var details any
	if len(e.Details) > 0 {
		_ = json.Unmarshal(e.Details, &details)
	}
	return Event{
		Type: EventBetLifecycle,
		Payload: map[string]any{
			"seq":        e.Seq,
			"tx_ref":     e.TxRef.String(),
			"log_index":  e.LogIndex,
			"bet_id":     e.BetID,
			"name":       e.Name,
			"actor":      e.Actor,
			"block_time": e.BlockTime,
			"details":    details,
		},
	}
}

// Seq extracts the lifecycle seq from a received event. JSON numbers decode
// as float64.
func Seq(e Event) (int64, bool) {
	switch v := e.Payload["seq"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
