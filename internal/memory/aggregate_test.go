package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leaflinelabs/intuition/internal/eventlog"
)

func TestAggregateEvents_Weights(t *testing.T) {
	events := []eventlog.AgentEvent{
		{Type: eventlog.TypeFeedbackPositive, Payload: map[string]any{
			eventlog.PayloadEffects: []string{"relaxed", "sleepy"},
		}},
		{Type: eventlog.TypeProductClick, Payload: map[string]any{
			eventlog.PayloadEffects:   []string{"relaxed"},
			eventlog.PayloadProductID: "p1",
			eventlog.PayloadFormat:    "flower",
		}},
		{Type: eventlog.TypeFeedbackNegative, Payload: map[string]any{
			eventlog.PayloadEffects: []string{"paranoid"},
		}},
		{Type: eventlog.TypePurchase, Payload: map[string]any{
			eventlog.PayloadProductID: "p2",
			eventlog.PayloadFormat:    "gummy",
		}},
		{Type: eventlog.TypeSessionStarted},
	}

	agg := aggregateEvents(events)

	assert.Equal(t, 5, agg.Events)
	assert.Equal(t, 3, agg.Liked["relaxed"], "feedback +2 and click +1")
	assert.Equal(t, 2, agg.Liked["sleepy"])
	assert.Equal(t, 1, agg.Disliked["paranoid"])
	assert.Equal(t, map[string]int{"flower": 1, "gummy": 1}, agg.Formats)
	assert.Equal(t, []string{"p1"}, agg.Viewed)
	assert.Equal(t, []string{"p2"}, agg.Purchased)
	assert.Equal(t, 1, agg.Positive)
	assert.Equal(t, 1, agg.Negative)
}

func TestAggregateEvents_Empty(t *testing.T) {
	agg := aggregateEvents(nil)
	assert.Zero(t, agg.Events)
	assert.Empty(t, agg.Liked)
}

func TestTopN(t *testing.T) {
	counts := map[string]int{"relaxed": 5, "sleepy": 5, "energetic": 9, "giggly": 1}

	// Count descending, ties lexicographic.
	assert.Equal(t, []string{"energetic", "relaxed", "sleepy"}, topN(counts, 3))
	assert.Equal(t, []string{"energetic"}, topN(counts, 1))
	assert.Nil(t, topN(nil, 3))
	assert.Nil(t, topN(counts, 0))
}

func TestDedupeHead(t *testing.T) {
	items := []string{"p3", "p1", "p3", "p2", "p1", "p4"}

	assert.Equal(t, []string{"p3", "p1", "p2", "p4"}, dedupeHead(items, 10))
	assert.Equal(t, []string{"p3", "p1"}, dedupeHead(items, 2))
	assert.Nil(t, dedupeHead(nil, 10))
}

func TestPotencyFor(t *testing.T) {
	thc := map[string]float64{"low": 8, "mid": 18, "high": 28}

	tests := []struct {
		name      string
		purchased []string
		want      PotencyTolerance
	}{
		{"no purchases", nil, PotencyMedium},
		{"unknown products only", []string{"x", "y"}, PotencyMedium},
		{"low mean", []string{"low", "low"}, PotencyLow},
		{"medium mean", []string{"mid"}, PotencyMedium},
		{"high mean", []string{"high", "high"}, PotencyHigh},
		{"mixed lands medium", []string{"low", "high"}, PotencyMedium},
		{"unknowns skipped", []string{"x", "high"}, PotencyHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, potencyFor(tt.purchased, thc))
		})
	}

	// Boundary behavior: exactly 15 is medium, exactly 22 is medium.
	assert.Equal(t, PotencyMedium, potencyFor([]string{"a"}, map[string]float64{"a": 15}))
	assert.Equal(t, PotencyMedium, potencyFor([]string{"a"}, map[string]float64{"a": 22}))
	assert.Equal(t, PotencyHigh, potencyFor([]string{"a"}, map[string]float64{"a": 22.5}))
	assert.Equal(t, PotencyLow, potencyFor([]string{"a"}, map[string]float64{"a": 14.9}))
}
