package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPurchaseEvent(t *testing.T) {
	now := time.Date(2025, 3, 1, 11, 0, 0, 0, time.FixedZone("WAT", 3600))

	event := NewPurchaseEvent(PurchaseVerified, "PSK-1-ABCDEFG", now)
	event.Amount = decimal.NewFromInt(53750)
	event.Method = "paystack"

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, time.UTC, event.OccurredAt.Location())
	assert.True(t, event.OccurredAt.Equal(now))

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "purchase.verified", decoded["type"])
	assert.Equal(t, "PSK-1-ABCDEFG", decoded["reference"])
	assert.Equal(t, "paystack", decoded["method"])
	assert.NotContains(t, decoded, "reason")
}

func TestNewProducerUsesTopic(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "purchase-events")
	defer p.Close()

	assert.Equal(t, "purchase-events", p.writer.Topic)
	assert.Equal(t, 3, p.maxRetries)
}
