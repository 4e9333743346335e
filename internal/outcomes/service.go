// Package outcomes records how recommendations resolved and turns those
// records into heuristic statistics, evolution recommendations, and system
// performance summaries.
package outcomes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/confidence"
	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/heuristics"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

// HeuristicService is the slice of the heuristics service outcome
// processing needs: stat updates on record, definition access for the
// explicit apply phase.
type HeuristicService interface {
	UpdateHeuristicStats(ctx context.Context, id string, wasSuccessful bool) error
	Get(ctx context.Context, id string) (heuristics.Heuristic, error)
	Update(ctx context.Context, h heuristics.Heuristic) error
}

// Service records outcomes and analyzes heuristic and system performance.
type Service struct {
	store      docstore.Store
	heuristics HeuristicService
	logger     *zap.Logger
}

// NewService creates an outcome service.
func NewService(store docstore.Store, heuristicSvc HeuristicService, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if heuristicSvc == nil {
		return nil, errors.New("heuristic service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		heuristics: heuristicSvc,
		logger:     logger.Named("outcomes"),
	}, nil
}

// RecordOutcome persists the outcome, then applies it to every heuristic it
// references. The record is the durable fact; stat updates are best effort
// per heuristic, so one stale ID cannot fail the recording.
func (s *Service) RecordOutcome(ctx context.Context, o Outcome) (Outcome, error) {
	if err := o.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("validating outcome: %w", err)
	}
	doc, err := docstore.Encode(o)
	if err != nil {
		return Outcome{}, fmt.Errorf("encoding outcome: %w", err)
	}
	if err := s.store.Put(ctx, tenant.CollectionOutcomes, o.ID, doc); err != nil {
		return Outcome{}, fmt.Errorf("storing outcome: %w", err)
	}

	for _, id := range o.HeuristicsApplied {
		if err := s.heuristics.UpdateHeuristicStats(ctx, id, o.Converted()); err != nil {
			statUpdateFailures.Inc()
			s.logger.Warn("heuristic stat update failed",
				zap.String("tenant_id", o.TenantID),
				zap.String("heuristic_id", id),
				zap.Error(err))
		}
	}

	outcomesRecorded.WithLabelValues(string(o.Outcome), string(o.SystemMode)).Inc()
	if o.RevenueGenerated > 0 {
		revenueRecorded.Add(o.RevenueGenerated)
	}
	s.logger.Debug("outcome recorded",
		zap.String("tenant_id", o.TenantID),
		zap.String("outcome", string(o.Outcome)),
		zap.String("system_mode", string(o.SystemMode)),
		zap.Int("heuristics_applied", len(o.HeuristicsApplied)))
	return o, nil
}

// AnalyzeHeuristicPerformance aggregates the window's outcomes per
// heuristic and classifies each as keep, review, or disable. Store read
// failures degrade to an empty report.
func (s *Service) AnalyzeHeuristicPerformance(ctx context.Context, tenantID string, lookback time.Duration) (PerformanceReport, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return PerformanceReport{}, err
	}
	if lookback <= 0 {
		lookback = DefaultAnalysisWindow
	}

	scanned := s.scanWindow(ctx, tenantID, lookback)
	perHeuristic := make(map[string]*HeuristicPerformance)
	for _, o := range scanned {
		for _, id := range o.HeuristicsApplied {
			p, ok := perHeuristic[id]
			if !ok {
				p = &HeuristicPerformance{HeuristicID: id}
				perHeuristic[id] = p
			}
			p.AppliedCount++
			if o.Converted() {
				p.SuccessCount++
			}
			p.RevenueGenerated += o.RevenueGenerated
		}
	}

	report := PerformanceReport{
		TenantID:        tenantID,
		Window:          lookback,
		OutcomesScanned: len(scanned),
		GeneratedAt:     docstore.Now(),
	}
	for _, p := range perHeuristic {
		p.SuccessRate = float64(p.SuccessCount) / float64(p.AppliedCount)
		p.Classification = Classify(p.AppliedCount, p.SuccessCount)
		if h, err := s.heuristics.Get(ctx, p.HeuristicID); err == nil {
			p.Name = h.Name
		}
		report.Heuristics = append(report.Heuristics, *p)
	}
	sort.Slice(report.Heuristics, func(i, j int) bool {
		a, b := report.Heuristics[i], report.Heuristics[j]
		if a.AppliedCount != b.AppliedCount {
			return a.AppliedCount > b.AppliedCount
		}
		return a.HeuristicID < b.HeuristicID
	})
	return report, nil
}

// RunEvolutionJob analyzes the last 24 hours and logs what it would flag.
// It never flips a heuristic's enabled field; disabling is the separate,
// explicitly invoked ApplyRecommendation phase.
func (s *Service) RunEvolutionJob(ctx context.Context, tenantID string) (PerformanceReport, error) {
	report, err := s.AnalyzeHeuristicPerformance(ctx, tenantID, DefaultAnalysisWindow)
	if err != nil {
		return PerformanceReport{}, err
	}

	keep, review, disable := report.Counts()
	evolutionRuns.Inc()
	s.logger.Info("heuristic evolution pass",
		zap.String("tenant_id", tenantID),
		zap.Int("outcomes_scanned", report.OutcomesScanned),
		zap.Int("keep", keep),
		zap.Int("review", review),
		zap.Int("disable_recommended", disable))
	return report, nil
}

// ApplyRecommendation executes one disable recommendation. Keep and review
// verdicts are informational and apply nothing. Idempotent: a heuristic
// already disabled is left alone.
func (s *Service) ApplyRecommendation(ctx context.Context, rec HeuristicPerformance) error {
	if rec.Classification != ClassDisable {
		return nil
	}
	h, err := s.heuristics.Get(ctx, rec.HeuristicID)
	if err != nil {
		return fmt.Errorf("loading heuristic %s: %w", rec.HeuristicID, err)
	}
	if !h.Enabled {
		return nil
	}
	h.Enabled = false
	if err := s.heuristics.Update(ctx, h); err != nil {
		return fmt.Errorf("disabling heuristic %s: %w", rec.HeuristicID, err)
	}
	s.logger.Info("heuristic disabled by recommendation",
		zap.String("tenant_id", h.TenantID),
		zap.String("heuristic_id", h.ID),
		zap.String("name", h.Name),
		zap.Int("applied_count", rec.AppliedCount),
		zap.Float64("success_rate", rec.SuccessRate))
	return nil
}

// AnalyzeSystemPerformance summarizes routing behavior over the window:
// per-mode usage share and conversion, overall conversion, average
// confidence, and total revenue.
func (s *Service) AnalyzeSystemPerformance(ctx context.Context, tenantID string, window time.Duration) (SystemReport, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return SystemReport{}, err
	}
	if window <= 0 {
		window = DefaultAnalysisWindow
	}

	scanned := s.scanWindow(ctx, tenantID, window)
	report := SystemReport{
		TenantID:      tenantID,
		Window:        window,
		TotalOutcomes: len(scanned),
		GeneratedAt:   docstore.Now(),
	}
	if len(scanned) == 0 {
		return report, nil
	}

	var sumConfidence float64
	conversions := 0
	for _, o := range scanned {
		bucket := &report.Slow
		if o.SystemMode == confidence.ModeFast {
			bucket = &report.Fast
		}
		bucket.Decisions++
		if o.Converted() {
			bucket.Conversions++
			conversions++
		}
		sumConfidence += o.ConfidenceScore
		report.TotalRevenue += o.RevenueGenerated
	}

	total := float64(report.TotalOutcomes)
	report.Fast.Share = float64(report.Fast.Decisions) / total
	report.Slow.Share = float64(report.Slow.Decisions) / total
	if report.Fast.Decisions > 0 {
		report.Fast.ConversionRate = float64(report.Fast.Conversions) / float64(report.Fast.Decisions)
	}
	if report.Slow.Decisions > 0 {
		report.Slow.ConversionRate = float64(report.Slow.Conversions) / float64(report.Slow.Decisions)
	}
	report.OverallRate = float64(conversions) / total
	report.AvgConfidence = sumConfidence / total
	return report, nil
}

// scanWindow loads the tenant's outcomes newer than now-lookback, newest
// first. Read failures degrade to an empty slice with a warning.
func (s *Service) scanWindow(ctx context.Context, tenantID string, lookback time.Duration) []Outcome {
	since := docstore.Timestamp(time.Now().Add(-lookback))
	docs, err := s.store.Query(ctx, tenant.CollectionOutcomes, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "tenant_id", Op: docstore.OpEq, Value: tenantID},
			{Field: "created_at", Op: docstore.OpGte, Value: since},
		},
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		s.logger.Warn("outcome scan failed, returning empty window",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil
	}

	scanned := make([]Outcome, 0, len(docs))
	for _, doc := range docs {
		var o Outcome
		if err := docstore.Decode(doc, &o); err != nil {
			s.logger.Warn("skipping undecodable outcome", zap.Any("id", doc["id"]), zap.Error(err))
			continue
		}
		scanned = append(scanned, o)
	}
	return scanned
}
