package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(KEY_MESSAGE_RECEIVED, MessageEvent{ConversationID: "c1", MessageID: "m1", Channel: "sms"}).
		WithCorrelation("c1")

	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, "switchboard", env.Meta.Producer)
	assert.Equal(t, "conversation.message.received.v1", env.Meta.Type)
	require.NotNil(t, env.Meta.CorrelationID)
	assert.Equal(t, "c1", *env.Meta.CorrelationID)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	data := decoded["data"].(map[string]any)
	assert.Equal(t, "m1", data["message_id"])
	assert.NotContains(t, data, "business_id")
}

func TestMemoryPublisher(t *testing.T) {
	pub := &MemoryPublisher{}
	require.NoError(t, pub.Publish(context.Background(), KEY_REPLY_RECORDED, NewEnvelope(KEY_REPLY_RECORDED, nil)))
	require.NoError(t, pub.Publish(context.Background(), KEY_REPLY_DELIVERED, NewEnvelope(KEY_REPLY_DELIVERED, nil)))
	assert.Equal(t, []string{KEY_REPLY_RECORDED, KEY_REPLY_DELIVERED}, pub.Keys())
	assert.Len(t, pub.Published(), 2)
}
