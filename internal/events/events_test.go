package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/darehouse/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBetEventRoundTrip(t *testing.T) {
	e := models.BetEvent{
		Seq:       42,
		TxRef:     uuid.New(),
		BetID:     7,
		Name:      models.EventBetClaimed,
		Actor:     "watcher",
		BlockTime: time.Now().UTC(),
		Details:   json.RawMessage(`{"resultingStatus":"BET_NOT_ACCEPTED_IN_TIME"}`),
	}

	ev := FromBetEvent(e)
	assert.Equal(t, EventBetLifecycle, ev.Type)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	seq, ok := Seq(back)
	require.True(t, ok)
	assert.Equal(t, int64(42), seq)
	assert.Equal(t, "BetClaimed", back.Payload["name"])

	details, ok := back.Payload["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "BET_NOT_ACCEPTED_IN_TIME", details["resultingStatus"])
}

func TestSeqMissing(t *testing.T) {
	_, ok := Seq(Event{Type: EventDepositCredited, Payload: map[string]any{}})
	assert.False(t, ok)
}
