package memory

import (
	"sort"

	"github.com/leaflinelabs/intuition/internal/eventlog"
)

// Effect weights. Explicit feedback counts for more than a browse.
const (
	likedWeightFeedback = 2
	likedWeightClick    = 1
	dislikedWeight      = 1
)

// Aggregate is the tally of one scan over a customer's recent events.
// Keys are effects, formats, or product IDs as they appear in payloads;
// product slices are ordered most recent first.
type Aggregate struct {
	Events    int
	Liked     map[string]int
	Disliked  map[string]int
	Formats   map[string]int
	Viewed    []string
	Purchased []string
	Positive  int
	Negative  int
}

// aggregateEvents tallies preference signals from events ordered newest
// first, the order event queries return them in.
func aggregateEvents(events []eventlog.AgentEvent) Aggregate {
	agg := Aggregate{
		Liked:    make(map[string]int),
		Disliked: make(map[string]int),
		Formats:  make(map[string]int),
	}
	for i := range events {
		ev := &events[i]
		agg.Events++

		if format := ev.PayloadString(eventlog.PayloadFormat); format != "" {
			agg.Formats[format]++
		}

		switch ev.Type {
		case eventlog.TypeProductClick:
			for _, effect := range ev.PayloadStrings(eventlog.PayloadEffects) {
				agg.Liked[effect] += likedWeightClick
			}
			if id := ev.PayloadString(eventlog.PayloadProductID); id != "" {
				agg.Viewed = append(agg.Viewed, id)
			}
		case eventlog.TypePurchase:
			if id := ev.PayloadString(eventlog.PayloadProductID); id != "" {
				agg.Purchased = append(agg.Purchased, id)
			}
		case eventlog.TypeFeedbackPositive:
			agg.Positive++
			for _, effect := range ev.PayloadStrings(eventlog.PayloadEffects) {
				agg.Liked[effect] += likedWeightFeedback
			}
		case eventlog.TypeFeedbackNegative:
			agg.Negative++
			for _, effect := range ev.PayloadStrings(eventlog.PayloadEffects) {
				agg.Disliked[effect] += dislikedWeight
			}
		}
	}
	return agg
}

// topN returns the n highest-counted keys, ties broken lexicographically so
// derivations are deterministic.
func topN(counts map[string]int, n int) []string {
	if len(counts) == 0 || n <= 0 {
		return nil
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// dedupeHead keeps the first occurrence of each item, capped at n. Input is
// newest first, so the result is the n most recent distinct items.
func dedupeHead(items []string, n int) []string {
	if len(items) == 0 || n <= 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, n)
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
		if len(out) == n {
			break
		}
	}
	return out
}

// potencyFor buckets the mean THC across purchase occurrences. Products
// without a catalog entry are skipped; no data means medium.
func potencyFor(purchased []string, thcByProduct map[string]float64) PotencyTolerance {
	if len(purchased) == 0 || len(thcByProduct) == 0 {
		return PotencyMedium
	}
	var sum float64
	var n int
	for _, id := range purchased {
		thc, ok := thcByProduct[id]
		if !ok {
			continue
		}
		sum += thc
		n++
	}
	if n == 0 {
		return PotencyMedium
	}
	mean := sum / float64(n)
	switch {
	case mean < lowMaxTHC:
		return PotencyLow
	case mean <= mediumMaxTHC:
		return PotencyMedium
	default:
		return PotencyHigh
	}
}
