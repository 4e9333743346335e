// Package starterpack seeds new tenants with archetype defaults so the
// decision engine has something to work with before any events arrive.
//
// Each archetype bundles a handful of starter heuristics, seed pattern
// clusters, and one baseline metrics document. Apply installs the bundle
// exactly once per tenant.
package starterpack

import (
	"errors"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/heuristics"
	"github.com/leaflinelabs/intuition/internal/patterns"
)

// Archetype names a tenant business shape.
type Archetype string

const (
	ArchetypeUrbanDispensary Archetype = "urban_dispensary"
	ArchetypeRuralDispensary Archetype = "rural_dispensary"
	ArchetypeBrand           Archetype = "brand"
	ArchetypeDelivery        Archetype = "delivery"
)

// Archetypes lists every installable archetype.
func Archetypes() []Archetype {
	return []Archetype{
		ArchetypeUrbanDispensary,
		ArchetypeRuralDispensary,
		ArchetypeBrand,
		ArchetypeDelivery,
	}
}

var (
	ErrUnknownArchetype = errors.New("unknown archetype")
	ErrAlreadyApplied   = errors.New("starter pack already applied")
	ErrNotApplied       = errors.New("no starter pack applied")
	ErrNoBaseline       = errors.New("no baseline recorded")
)

// Baseline seeds the tenant's expected daily shape before real traffic
// exists. Reporting compares observed numbers against these until the
// tenant has history of its own.
type Baseline struct {
	TenantID             string             `json:"tenant_id"`
	Archetype            Archetype          `json:"archetype"`
	ExpectedEventsPerDay int                `json:"expected_events_per_day"`
	BaselineConversion   float64            `json:"baseline_conversion_rate"`
	AverageBasket        float64            `json:"average_basket"`
	CreatedAt            docstore.Timestamp `json:"created_at"`
}

// Receipt records a completed application. Its existence in the
// starter_packs collection is what makes Apply idempotent.
type Receipt struct {
	TenantID   string             `json:"tenant_id"`
	Archetype  Archetype          `json:"archetype"`
	Heuristics int                `json:"heuristics"`
	Clusters   int                `json:"clusters"`
	AppliedAt  docstore.Timestamp `json:"applied_at"`
}

// Pack is the bundle one archetype installs for one tenant.
type Pack struct {
	Archetype  Archetype
	Heuristics []heuristics.Heuristic
	Clusters   []patterns.PatternCluster
	Baseline   Baseline
}

// PackFor builds the archetype's bundle bound to tenantID.
func PackFor(tenantID string, archetype Archetype) (Pack, error) {
	switch archetype {
	case ArchetypeUrbanDispensary:
		return urbanDispensaryPack(tenantID), nil
	case ArchetypeRuralDispensary:
		return ruralDispensaryPack(tenantID), nil
	case ArchetypeBrand:
		return brandPack(tenantID), nil
	case ArchetypeDelivery:
		return deliveryPack(tenantID), nil
	default:
		return Pack{}, ErrUnknownArchetype
	}
}

// Starter heuristics all target the budtender agent; it runs the
// recommendation path the packs are meant to shape.
const starterAgent = "budtender"

func starterHeuristic(tenantID, name string, priority int, conds []heuristics.Condition, action heuristics.Action) heuristics.Heuristic {
	h := heuristics.New(tenantID, starterAgent, name)
	h.Source = heuristics.SourceStarter
	h.Priority = priority
	h.Conditions = conds
	h.Action = action
	return h
}

func starterCluster(tenantID, label string, typ patterns.ClusterType, effects ...string) patterns.PatternCluster {
	c := patterns.NewCluster(tenantID, label, typ)
	c.TopEffects = effects
	return c
}

func urbanDispensaryPack(tenantID string) Pack {
	return Pack{
		Archetype: ArchetypeUrbanDispensary,
		Heuristics: []heuristics.Heuristic{
			starterHeuristic(tenantID, "new customer potency cap", 100,
				[]heuristics.Condition{{Target: "customer.is_new", Operator: heuristics.OpEq, Value: true}},
				heuristics.Action{Type: heuristics.ActionFilter, Target: "thc", Operator: heuristics.OpLte, Value: 20}),
			starterHeuristic(tenantID, "anxiety aware concentrate bury", 90,
				[]heuristics.Condition{{Target: "customer.avoid_effects", Operator: heuristics.OpContains, Value: "anxious"}},
				heuristics.Action{Type: heuristics.ActionBury, Target: "format", Value: "concentrate"}),
			starterHeuristic(tenantID, "evening pre roll push", 80,
				[]heuristics.Condition{{Target: "session.daypart", Operator: heuristics.OpEq, Value: "evening"}},
				heuristics.Action{Type: heuristics.ActionBoost, Target: "format", Value: "pre_roll", Multiplier: 1.15}),
			starterHeuristic(tenantID, "regular welcome back", 60,
				[]heuristics.Condition{{Target: "customer.interaction_count", Operator: heuristics.OpGte, Value: 10}},
				heuristics.Action{Type: heuristics.ActionMessagePrepend, Message: "Welcome back! Your usual picks are front and center."}),
			starterHeuristic(tenantID, "low tolerance advisory", 50,
				[]heuristics.Condition{{Target: "customer.potency_tolerance", Operator: heuristics.OpEq, Value: "low"}},
				heuristics.Action{Type: heuristics.ActionWarn, Message: "Suggest starting with low-THC options and going slow."}),
		},
		Clusters: []patterns.PatternCluster{
			starterCluster(tenantID, "energetic_lovers", patterns.ClusterCustomer, "energetic", "social"),
			starterCluster(tenantID, "relaxed_lovers", patterns.ClusterCustomer, "relaxed"),
			starterCluster(tenantID, "lunch_break_regulars", patterns.ClusterBehavior),
			starterCluster(tenantID, "weekend_party_shoppers", patterns.ClusterBehavior, "social", "giggly"),
		},
		Baseline: Baseline{
			TenantID:             tenantID,
			Archetype:            ArchetypeUrbanDispensary,
			ExpectedEventsPerDay: 400,
			BaselineConversion:   0.18,
			AverageBasket:        42.50,
			CreatedAt:            docstore.Now(),
		},
	}
}

func ruralDispensaryPack(tenantID string) Pack {
	return Pack{
		Archetype: ArchetypeRuralDispensary,
		Heuristics: []heuristics.Heuristic{
			starterHeuristic(tenantID, "low tolerance potency filter", 100,
				[]heuristics.Condition{{Target: "customer.potency_tolerance", Operator: heuristics.OpEq, Value: "low"}},
				heuristics.Action{Type: heuristics.ActionFilter, Target: "thc", Operator: heuristics.OpLte, Value: 15}),
			starterHeuristic(tenantID, "first visit guidance", 90,
				[]heuristics.Condition{{Target: "customer.is_new", Operator: heuristics.OpEq, Value: true}},
				heuristics.Action{Type: heuristics.ActionMessagePrepend, Message: "Happy to walk you through the menu at your pace."}),
			starterHeuristic(tenantID, "flower regular boost", 80,
				[]heuristics.Condition{{Target: "customer.preferred_formats", Operator: heuristics.OpContains, Value: "flower"}},
				heuristics.Action{Type: heuristics.ActionBoost, Target: "format", Value: "flower", Multiplier: 1.2}),
			starterHeuristic(tenantID, "sleepy evening edibles", 70,
				[]heuristics.Condition{{Target: "customer.favorite_effects", Operator: heuristics.OpContains, Value: "sleepy"}},
				heuristics.Action{Type: heuristics.ActionBoost, Target: "format", Value: "edible"}),
			starterHeuristic(tenantID, "weekend stock tag", 40,
				[]heuristics.Condition{{Target: "session.day_of_week", Operator: heuristics.OpIn, Value: []string{"saturday", "sunday"}}},
				heuristics.Action{Type: heuristics.ActionTag, Value: "weekend_stock"}),
		},
		Clusters: []patterns.PatternCluster{
			starterCluster(tenantID, "relaxed_lovers", patterns.ClusterCustomer, "relaxed"),
			starterCluster(tenantID, "sleepy_lovers", patterns.ClusterCustomer, "sleepy"),
			starterCluster(tenantID, "value_bulk_buyers", patterns.ClusterBehavior),
		},
		Baseline: Baseline{
			TenantID:             tenantID,
			Archetype:            ArchetypeRuralDispensary,
			ExpectedEventsPerDay: 120,
			BaselineConversion:   0.22,
			AverageBasket:        61.00,
			CreatedAt:            docstore.Now(),
		},
	}
}

func brandPack(tenantID string) Pack {
	return Pack{
		Archetype: ArchetypeBrand,
		Heuristics: []heuristics.Heuristic{
			starterHeuristic(tenantID, "house brand boost", 100,
				nil,
				heuristics.Action{Type: heuristics.ActionBoost, Target: "brand", Value: "house", Multiplier: 1.25}),
			starterHeuristic(tenantID, "low dose entry filter", 90,
				[]heuristics.Condition{{Target: "customer.is_new", Operator: heuristics.OpEq, Value: true}},
				heuristics.Action{Type: heuristics.ActionFilter, Target: "thc", Operator: heuristics.OpLte, Value: 10}),
			starterHeuristic(tenantID, "new customer education", 80,
				[]heuristics.Condition{{Target: "customer.is_new", Operator: heuristics.OpEq, Value: true}},
				heuristics.Action{Type: heuristics.ActionMessagePrepend, Message: "New to our lineup? Start with the sampler picks."}),
			starterHeuristic(tenantID, "loyalist merch tag", 60,
				[]heuristics.Condition{{Target: "customer.clusters", Operator: heuristics.OpContains, Value: "brand_loyalists"}},
				heuristics.Action{Type: heuristics.ActionTag, Value: "offer_merch"}),
			starterHeuristic(tenantID, "returning fan reward", 50,
				[]heuristics.Condition{{Target: "customer.interaction_count", Operator: heuristics.OpGte, Value: 25}},
				heuristics.Action{Type: heuristics.ActionMessageAppend, Message: "Loyalty reward available at checkout."}),
		},
		Clusters: []patterns.PatternCluster{
			starterCluster(tenantID, "brand_loyalists", patterns.ClusterCustomer),
			starterCluster(tenantID, "sampler_curious", patterns.ClusterBehavior),
			starterCluster(tenantID, "gift_shoppers", patterns.ClusterBehavior),
		},
		Baseline: Baseline{
			TenantID:             tenantID,
			Archetype:            ArchetypeBrand,
			ExpectedEventsPerDay: 80,
			BaselineConversion:   0.08,
			AverageBasket:        35.00,
			CreatedAt:            docstore.Now(),
		},
	}
}

func deliveryPack(tenantID string) Pack {
	return Pack{
		Archetype: ArchetypeDelivery,
		Heuristics: []heuristics.Heuristic{
			starterHeuristic(tenantID, "free delivery threshold note", 100,
				nil,
				heuristics.Action{Type: heuristics.ActionMessageAppend, Message: "Free delivery on orders over $60."}),
			starterHeuristic(tenantID, "late night ready stock filter", 90,
				[]heuristics.Condition{{Target: "session.daypart", Operator: heuristics.OpEq, Value: "late_night"}},
				heuristics.Action{Type: heuristics.ActionFilter, Target: "ready_to_ship", Operator: heuristics.OpEq, Value: true}),
			starterHeuristic(tenantID, "bulk stocker boost", 80,
				[]heuristics.Condition{{Target: "customer.clusters", Operator: heuristics.OpContains, Value: "bulk_stockers"}},
				heuristics.Action{Type: heuristics.ActionBoost, Target: "category", Value: "bulk", Multiplier: 1.2}),
			starterHeuristic(tenantID, "first delivery id check", 70,
				[]heuristics.Condition{{Target: "customer.is_new", Operator: heuristics.OpEq, Value: true}},
				heuristics.Action{Type: heuristics.ActionWarn, Message: "Courier must verify ID on first delivery."}),
			starterHeuristic(tenantID, "evening rush eta note", 60,
				[]heuristics.Condition{{Target: "session.daypart", Operator: heuristics.OpEq, Value: "evening"}},
				heuristics.Action{Type: heuristics.ActionMessageAppend, Message: "Evening ETAs are running 45-60 minutes."}),
		},
		Clusters: []patterns.PatternCluster{
			starterCluster(tenantID, "bulk_stockers", patterns.ClusterBehavior),
			starterCluster(tenantID, "evening_orderers", patterns.ClusterBehavior),
			starterCluster(tenantID, "discreet_shoppers", patterns.ClusterCustomer),
		},
		Baseline: Baseline{
			TenantID:             tenantID,
			Archetype:            ArchetypeDelivery,
			ExpectedEventsPerDay: 200,
			BaselineConversion:   0.25,
			AverageBasket:        74.00,
			CreatedAt:            docstore.Now(),
		},
	}
}
