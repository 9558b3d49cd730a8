package cache

import (
	"testing"

	"github.com/mbeoliero/vesper/pkg/constant"
	"github.com/stretchr/testify/assert"
)

func TestAggregateStatusSeenByAll(t *testing.T) {
	msg := MessageEntry{Statuses: []StatusEntry{
		{RecipientId: "bob", Status: constant.StatusSeen},
		{RecipientId: "carol", Status: constant.StatusSeen},
	}}

	agg := AggregateStatus(msg, []string{"bob", "carol"})
	assert.True(t, agg.SeenByAll)
	assert.True(t, agg.DeliveredToAll)
	assert.Equal(t, 2, agg.Counts[constant.StatusSeen])
}

func TestAggregateStatusDeliveredToAll(t *testing.T) {
	msg := MessageEntry{Statuses: []StatusEntry{
		{RecipientId: "bob", Status: constant.StatusDelivered},
		{RecipientId: "carol", Status: constant.StatusSeen},
	}}

	agg := AggregateStatus(msg, []string{"bob", "carol"})
	assert.False(t, agg.SeenByAll)
	assert.True(t, agg.DeliveredToAll)
}

func TestAggregateStatusMixedCounts(t *testing.T) {
	// carol has no status row yet, which counts as sent
	msg := MessageEntry{Statuses: []StatusEntry{
		{RecipientId: "bob", Status: constant.StatusSeen},
	}}

	agg := AggregateStatus(msg, []string{"bob", "carol"})
	assert.False(t, agg.SeenByAll)
	assert.False(t, agg.DeliveredToAll)
	assert.Equal(t, 1, agg.Counts[constant.StatusSeen])
	assert.Equal(t, 1, agg.Counts[constant.StatusSent])
}

func TestAggregateStatusNoRecipients(t *testing.T) {
	agg := AggregateStatus(MessageEntry{}, nil)
	assert.False(t, agg.SeenByAll)
	assert.False(t, agg.DeliveredToAll)
	assert.Empty(t, agg.Counts)
}

func TestDisplayStatus(t *testing.T) {
	msg := MessageEntry{Statuses: []StatusEntry{
		{RecipientId: "bob", Status: constant.StatusDelivered},
	}}

	assert.Equal(t, int32(constant.StatusDelivered), DisplayStatus(msg, "bob"))
	assert.Equal(t, int32(constant.StatusSent), DisplayStatus(msg, "carol"))
}
