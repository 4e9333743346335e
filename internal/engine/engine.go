package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/confidence"
	"github.com/leaflinelabs/intuition/internal/eventlog"
	"github.com/leaflinelabs/intuition/internal/heuristics"
	"github.com/leaflinelabs/intuition/internal/memory"
	"github.com/leaflinelabs/intuition/internal/outcomes"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

const tracerName = "github.com/leaflinelabs/intuition/internal/engine"

// ErrMissingAgent is returned when a decision request names no agent.
var ErrMissingAgent = errors.New("decision requires an agent")

// ContextReader supplies the customer context for a decision.
type ContextReader interface {
	GetCustomerContext(ctx context.Context, tenantID, customerID string) (memory.CustomerContext, error)
}

// HeuristicEvaluator runs the tenant's rules over a candidate list.
type HeuristicEvaluator interface {
	EvaluateHeuristics(ctx context.Context, tenantID, agent string, evalCtx heuristics.EvalContext, items []heuristics.Item) (heuristics.EvalResult, error)
}

// EventReader reads interaction history for the recency signal.
type EventReader interface {
	Query(ctx context.Context, tenantID string, q eventlog.EventQuery) ([]eventlog.AgentEvent, error)
}

// OutcomeRecorder persists resolved outcomes.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o outcomes.Outcome) (outcomes.Outcome, error)
}

// DecisionRequest is one routing question from the agent runtime.
type DecisionRequest struct {
	TenantID   string            `json:"tenant_id"`
	Agent      string            `json:"agent"`
	SessionID  string            `json:"session_id,omitempty"`
	CustomerID string            `json:"customer_id,omitempty"`
	Session    map[string]any    `json:"session,omitempty"`
	Items      []heuristics.Item `json:"items,omitempty"`

	// Anomaly signals measured by the caller's runtime. DeviationKnown
	// distinguishes a measured zero deviation from an unmeasured one.
	IsAnomalous    bool    `json:"is_anomalous,omitempty"`
	Deviation      float64 `json:"deviation,omitempty"`
	DeviationKnown bool    `json:"deviation_known,omitempty"`
}

// Decision is the routing answer: which path to take, why, and the shaped
// candidate list to serve if the fast path wins.
type Decision struct {
	Mode          confidence.Mode          `json:"mode"`
	Score         float64                  `json:"score"`
	Factors       confidence.Factors       `json:"factors"`
	IsNewCustomer bool                     `json:"is_new_customer"`
	Items         []heuristics.Item        `json:"items"`
	Matches       []heuristics.MatchResult `json:"matches"`
	Directives    []heuristics.Directive   `json:"directives,omitempty"`
	AppliedIDs    []string                 `json:"applied_heuristics,omitempty"`
	Explanation   []string                 `json:"explanation,omitempty"`
}

// Engine is the one integration point the agent runtime calls: Decide before
// serving, RecordOutcome after the interaction resolves.
type Engine struct {
	memories   ContextReader
	heuristics HeuristicEvaluator
	events     EventReader
	outcomes   OutcomeRecorder
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewEngine wires the decision facade.
func NewEngine(memories ContextReader, evaluator HeuristicEvaluator, events EventReader, recorder OutcomeRecorder, logger *zap.Logger) (*Engine, error) {
	if memories == nil {
		return nil, errors.New("context reader is required")
	}
	if evaluator == nil {
		return nil, errors.New("heuristic evaluator is required")
	}
	if events == nil {
		return nil, errors.New("event reader is required")
	}
	if recorder == nil {
		return nil, errors.New("outcome recorder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		memories:   memories,
		heuristics: evaluator,
		events:     events,
		outcomes:   recorder,
		logger:     logger.Named("engine"),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Decide reads the customer context, shapes the candidate list through the
// tenant's heuristics, and scores confidence to pick the fast or slow path.
// Collaborator reads degrade internally, so the only errors are invalid
// inputs; a tenant with no data still gets a decision, just a slow one.
func (e *Engine) Decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	ctx, span := e.tracer.Start(ctx, "engine.decide",
		trace.WithAttributes(
			attribute.String("tenant_id", req.TenantID),
			attribute.String("agent", req.Agent),
			attribute.Int("items_in", len(req.Items)),
		))
	defer span.End()

	if err := tenant.ValidateID(req.TenantID); err != nil {
		span.RecordError(err)
		return Decision{}, err
	}
	if req.Agent == "" {
		span.RecordError(ErrMissingAgent)
		return Decision{}, ErrMissingAgent
	}

	cust, err := e.memories.GetCustomerContext(ctx, req.TenantID, req.CustomerID)
	if err != nil {
		span.RecordError(err)
		return Decision{}, fmt.Errorf("reading customer context: %w", err)
	}

	evalCtx := heuristics.NewEvalContext(cust, req.Session)
	result, err := e.heuristics.EvaluateHeuristics(ctx, req.TenantID, req.Agent, evalCtx, req.Items)
	if err != nil {
		span.RecordError(err)
		return Decision{}, fmt.Errorf("evaluating heuristics: %w", err)
	}

	applied := result.AppliedIDs()
	in := confidence.Inputs{
		LastInteraction:   e.lastInteraction(ctx, req.TenantID, req.CustomerID),
		HeuristicsMatched: len(applied),
		HeuristicsTotal:   len(result.Matches),
		ClusterKnown:      len(cust.ClusterLabels) > 0,
		IsAnomalous:       req.IsAnomalous,
		Deviation:         req.Deviation,
		DeviationKnown:    req.DeviationKnown,
	}
	if p := cust.Profile; p != nil {
		in.InteractionCount = p.InteractionCount
		in.SimilarCustomers = len(p.SimilarCustomers)
	}
	if in.ClusterKnown {
		// Placement is only as trustworthy as the memory behind it.
		in.ClusterConfidence = cust.MemoryConfidence
	}

	score := confidence.Compute(in)
	decision := Decision{
		Mode:          score.SystemMode,
		Score:         score.Score,
		Factors:       score.Factors,
		IsNewCustomer: cust.IsNewCustomer,
		Items:         result.Items,
		Matches:       result.Matches,
		Directives:    result.Directives,
		AppliedIDs:    applied,
		Explanation:   confidence.Explain(score),
	}

	decisionsTotal.WithLabelValues(string(decision.Mode)).Inc()
	scoreObserved.Observe(decision.Score)
	span.SetAttributes(
		attribute.String("mode", string(decision.Mode)),
		attribute.Float64("score", decision.Score),
		attribute.Int("heuristics_matched", len(applied)),
		attribute.Int("items_out", len(decision.Items)),
	)
	e.logger.Debug("decision made",
		zap.String("tenant_id", req.TenantID),
		zap.String("agent", req.Agent),
		zap.String("session_id", req.SessionID),
		zap.String("mode", string(decision.Mode)),
		zap.Float64("score", decision.Score),
		zap.Int("items_in", len(req.Items)),
		zap.Int("items_out", len(decision.Items)))
	return decision, nil
}

// RecordOutcome forwards a resolved outcome so the runtime only ever talks
// to the engine.
func (e *Engine) RecordOutcome(ctx context.Context, o outcomes.Outcome) (outcomes.Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "engine.record_outcome",
		trace.WithAttributes(
			attribute.String("tenant_id", o.TenantID),
			attribute.String("outcome", string(o.Outcome)),
			attribute.String("mode", string(o.SystemMode)),
		))
	defer span.End()

	recorded, err := e.outcomes.RecordOutcome(ctx, o)
	if err != nil {
		span.RecordError(err)
		return outcomes.Outcome{}, err
	}
	return recorded, nil
}

// lastInteraction is the newest event time for the customer. Zero for
// anonymous sessions, unseen customers, and degraded reads, all of which
// score recency at the floor.
func (e *Engine) lastInteraction(ctx context.Context, tenantID, customerID string) time.Time {
	if customerID == "" {
		return time.Time{}
	}
	events, err := e.events.Query(ctx, tenantID, eventlog.EventQuery{CustomerID: customerID, Limit: 1})
	if err != nil || len(events) == 0 {
		return time.Time{}
	}
	return events[0].CreatedAt.Time()
}
