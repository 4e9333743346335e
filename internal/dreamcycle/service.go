package dreamcycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/eventlog"
	"github.com/leaflinelabs/intuition/internal/memory"
	"github.com/leaflinelabs/intuition/internal/outcomes"
	"github.com/leaflinelabs/intuition/internal/patterns"
	"github.com/leaflinelabs/intuition/internal/tenant"
)

const tracerName = "github.com/leaflinelabs/intuition/internal/dreamcycle"

const (
	// DefaultRetention is how long events stay queryable before the archival
	// step removes them.
	DefaultRetention = 90 * 24 * time.Hour

	// DefaultTenantPacing is the minimum spacing between tenant cycles in a
	// global run.
	DefaultTenantPacing = time.Second

	// consolidationScanLimit caps how many recent events one cycle reads when
	// rebuilding customer profiles. Tenants with more churn converge over
	// successive nights.
	consolidationScanLimit = 500

	// discoveryMinInteractions is the interaction floor a profile needs
	// before it counts toward effect-frequency discovery.
	discoveryMinInteractions = 5

	// performanceWindow is the analysis window for the system report step.
	performanceWindow = 24 * time.Hour
)

// ErrCycleInProgress is returned when a cycle is triggered for a tenant that
// already has one running in this process.
var ErrCycleInProgress = errors.New("dream cycle already in progress")

// EventSource provides the event reads and archival the cycle needs.
type EventSource interface {
	Query(ctx context.Context, tenantID string, q eventlog.EventQuery) ([]eventlog.AgentEvent, error)
	CountSince(ctx context.Context, tenantID string, since time.Time) int
	LatestEventTime(ctx context.Context, tenantID string) (time.Time, bool)
	ArchiveOlderThan(ctx context.Context, tenantID string, cutoff time.Time, limit int) (int, error)
}

// MemoryConsolidator rebuilds customer profiles from logged events.
type MemoryConsolidator interface {
	UpdateMemoryFromEvents(ctx context.Context, tenantID, customerID string, thcByProduct map[string]float64) (memory.Profile, error)
	AssignCustomerToCluster(ctx context.Context, tenantID, customerID string) ([]string, error)
	EffectFrequencies(ctx context.Context, tenantID string, minInteractions int) (map[string]int, int, error)
}

// PatternDiscoverer materializes effect-affinity clusters from frequencies.
type PatternDiscoverer interface {
	DiscoverFromEffects(ctx context.Context, tenantID string, effectCounts map[string]int, eligible int) ([]patterns.PatternCluster, error)
}

// OutcomeAnalyzer runs heuristic evolution and system performance analysis.
type OutcomeAnalyzer interface {
	RunEvolutionJob(ctx context.Context, tenantID string) (outcomes.PerformanceReport, error)
	AnalyzeSystemPerformance(ctx context.Context, tenantID string, window time.Duration) (outcomes.SystemReport, error)
}

// MessageCleaner deletes expired agent bus messages.
type MessageCleaner interface {
	CleanupExpired(ctx context.Context, tenantID string) (int, error)
}

// TenantLister enumerates tenants for the global run.
type TenantLister interface {
	List(ctx context.Context) ([]tenant.Tenant, error)
}

// Deps bundles the collaborators a cycle sequences. All fields are required.
type Deps struct {
	Store     docstore.Store
	Events    EventSource
	Memories  MemoryConsolidator
	Discovery PatternDiscoverer
	Outcomes  OutcomeAnalyzer
	Bus       MessageCleaner
	Tenants   TenantLister
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("store is required")
	case d.Events == nil:
		return errors.New("event source is required")
	case d.Memories == nil:
		return errors.New("memory consolidator is required")
	case d.Discovery == nil:
		return errors.New("pattern discoverer is required")
	case d.Outcomes == nil:
		return errors.New("outcome analyzer is required")
	case d.Bus == nil:
		return errors.New("message cleaner is required")
	case d.Tenants == nil:
		return errors.New("tenant lister is required")
	}
	return nil
}

// Service sequences the nightly maintenance steps for each tenant. Steps are
// isolated: a failing step is recorded in the report and the rest still run,
// and a failing tenant never stops a global run.
type Service struct {
	deps         Deps
	logger       *zap.Logger
	tracer       trace.Tracer
	retention    time.Duration
	archiveLimit int
	limiter      *rate.Limiter

	mu     sync.Mutex
	active map[string]struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithRetention overrides how old an event must be before archival removes
// it.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithArchiveLimit caps how many events one archival step deletes.
func WithArchiveLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.archiveLimit = n
		}
	}
}

// WithTenantPacing sets the minimum spacing between tenant cycles in a
// global run.
func WithTenantPacing(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// NewService creates the dream cycle orchestrator.
func NewService(deps Deps, logger *zap.Logger, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		deps:         deps,
		logger:       logger.Named("dreamcycle"),
		tracer:       otel.Tracer(tracerName),
		retention:    DefaultRetention,
		archiveLimit: eventlog.DefaultArchiveLimit,
		limiter:      rate.NewLimiter(rate.Every(DefaultTenantPacing), 1),
		active:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunForTenant executes one full cycle for a tenant and returns the per-step
// report. The error is non-nil only when the cycle could not start at all:
// an invalid tenant ID or a cycle already in flight for the same tenant in
// this process. Step failures live in the report, not the error.
func (s *Service) RunForTenant(ctx context.Context, tenantID string) (CycleReport, error) {
	if err := tenant.ValidateID(tenantID); err != nil {
		return CycleReport{}, err
	}
	if err := s.claim(tenantID); err != nil {
		return CycleReport{}, err
	}
	defer s.release(tenantID)

	ctx, span := s.tracer.Start(ctx, "dreamcycle.run",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	start := time.Now()
	report := CycleReport{
		TenantID:  tenantID,
		StartedAt: docstore.Now(),
	}

	s.runStep(ctx, &report, StepConsolidateMemory, func(ctx context.Context) (map[string]any, error) {
		return s.consolidateMemory(ctx, tenantID)
	})
	s.runStep(ctx, &report, StepDiscoverPatterns, func(ctx context.Context) (map[string]any, error) {
		return s.discoverPatterns(ctx, tenantID)
	})
	s.runStep(ctx, &report, StepEvolveHeuristics, func(ctx context.Context) (map[string]any, error) {
		return s.evolveHeuristics(ctx, tenantID)
	})
	s.runStep(ctx, &report, StepArchiveEvents, func(ctx context.Context) (map[string]any, error) {
		return s.archiveEvents(ctx, tenantID)
	})
	s.runStep(ctx, &report, StepCleanupMessages, func(ctx context.Context) (map[string]any, error) {
		return s.cleanupMessages(ctx, tenantID)
	})
	s.runStep(ctx, &report, StepSystemPerformance, func(ctx context.Context) (map[string]any, error) {
		return s.systemPerformance(ctx, tenantID)
	})
	s.runStep(ctx, &report, StepReadiness, func(ctx context.Context) (map[string]any, error) {
		score := s.ReadinessScore(ctx, tenantID)
		report.Readiness = score
		readinessScore.WithLabelValues(tenantID).Set(float64(score))
		return map[string]any{"score": score}, nil
	})

	report.FinishedAt = docstore.Now()
	cyclesCompleted.Inc()
	cycleDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("readiness", report.Readiness),
		attribute.Int("failed_steps", len(report.FailedSteps())),
	)

	s.logger.Info("dream cycle finished",
		zap.String("tenant_id", tenantID),
		zap.Int("readiness", report.Readiness),
		zap.Strings("failed_steps", report.FailedSteps()),
		zap.Duration("duration", time.Since(start)))
	return report, nil
}

// RunAll cycles every registered tenant sequentially, paced by the limiter.
// Per-tenant failures are logged and skipped. The returned error is non-nil
// only when the tenant list cannot be read or the context ends mid-run.
func (s *Service) RunAll(ctx context.Context) ([]CycleReport, error) {
	all, err := s.deps.Tenants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}

	reports := make([]CycleReport, 0, len(all))
	for _, t := range all {
		if err := s.limiter.Wait(ctx); err != nil {
			return reports, fmt.Errorf("pacing global cycle: %w", err)
		}
		report, err := s.RunForTenant(ctx, t.ID)
		if err != nil {
			s.logger.Error("dream cycle failed for tenant",
				zap.String("tenant_id", t.ID),
				zap.Error(err))
			continue
		}
		reports = append(reports, report)
	}

	s.logger.Info("global dream cycle finished",
		zap.Int("tenants", len(all)),
		zap.Int("completed", len(reports)))
	return reports, nil
}

// claim marks a tenant cycle as in flight. The guard is process-local; a
// multi-process deployment wanting stronger exclusion needs a shared lease.
func (s *Service) claim(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[tenantID]; busy {
		return fmt.Errorf("%s: %w", tenantID, ErrCycleInProgress)
	}
	s.active[tenantID] = struct{}{}
	return nil
}

func (s *Service) release(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, tenantID)
}

// runStep times fn and records its result on the report. Failures increment
// the step metric and are logged, never propagated.
func (s *Service) runStep(ctx context.Context, report *CycleReport, name string, fn func(context.Context) (map[string]any, error)) {
	ctx, span := s.tracer.Start(ctx, "dreamcycle.step",
		trace.WithAttributes(attribute.String("step", name)))
	defer span.End()

	start := time.Now()
	detail, err := fn(ctx)
	result := StepResult{
		Name:     name,
		Duration: time.Since(start),
		Detail:   detail,
	}
	if err != nil {
		result.Error = err.Error()
		span.RecordError(err)
		stepFailures.WithLabelValues(name).Inc()
		s.logger.Warn("dream cycle step failed",
			zap.String("tenant_id", report.TenantID),
			zap.String("step", name),
			zap.Error(err))
	}
	report.Steps = append(report.Steps, result)
}

// consolidateMemory scans recent events, dedupes customer IDs, and rebuilds
// each customer's profile and cluster assignment. Per-customer failures are
// counted and logged without stopping the sweep.
func (s *Service) consolidateMemory(ctx context.Context, tenantID string) (map[string]any, error) {
	events, err := s.deps.Events.Query(ctx, tenantID, eventlog.EventQuery{Limit: consolidationScanLimit})
	if err != nil {
		return nil, fmt.Errorf("scanning recent events: %w", err)
	}

	// Potency mentioned anywhere in the scan feeds every profile rebuild.
	thcByProduct := make(map[string]float64)
	seen := make(map[string]struct{})
	var customers []string
	for _, ev := range events {
		if pid := ev.PayloadString(eventlog.PayloadProductID); pid != "" {
			if thc, ok := ev.PayloadFloat(eventlog.PayloadTHC); ok {
				thcByProduct[pid] = thc
			}
		}
		if ev.CustomerID == "" {
			continue
		}
		if _, dup := seen[ev.CustomerID]; dup {
			continue
		}
		seen[ev.CustomerID] = struct{}{}
		customers = append(customers, ev.CustomerID)
	}

	failed := 0
	for _, customerID := range customers {
		if _, err := s.deps.Memories.UpdateMemoryFromEvents(ctx, tenantID, customerID, thcByProduct); err != nil {
			failed++
			s.logger.Warn("memory consolidation failed for customer",
				zap.String("tenant_id", tenantID),
				zap.String("customer_id", customerID),
				zap.Error(err))
			continue
		}
		if _, err := s.deps.Memories.AssignCustomerToCluster(ctx, tenantID, customerID); err != nil {
			failed++
			s.logger.Warn("cluster assignment failed for customer",
				zap.String("tenant_id", tenantID),
				zap.String("customer_id", customerID),
				zap.Error(err))
		}
	}

	return map[string]any{
		"events_scanned": len(events),
		"customers":      len(customers),
		"failed":         failed,
	}, nil
}

func (s *Service) discoverPatterns(ctx context.Context, tenantID string) (map[string]any, error) {
	counts, eligible, err := s.deps.Memories.EffectFrequencies(ctx, tenantID, discoveryMinInteractions)
	if err != nil {
		return nil, fmt.Errorf("aggregating effect frequencies: %w", err)
	}
	created, err := s.deps.Discovery.DiscoverFromEffects(ctx, tenantID, counts, eligible)
	if err != nil {
		return nil, fmt.Errorf("discovering clusters: %w", err)
	}
	return map[string]any{
		"eligible_profiles": eligible,
		"clusters_created":  len(created),
	}, nil
}

func (s *Service) evolveHeuristics(ctx context.Context, tenantID string) (map[string]any, error) {
	report, err := s.deps.Outcomes.RunEvolutionJob(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("running evolution job: %w", err)
	}
	keep, review, disable := report.Counts()
	return map[string]any{
		"outcomes_scanned": report.OutcomesScanned,
		"keep":             keep,
		"review":           review,
		"disable":          disable,
	}, nil
}

func (s *Service) archiveEvents(ctx context.Context, tenantID string) (map[string]any, error) {
	cutoff := time.Now().Add(-s.retention)
	archived, err := s.deps.Events.ArchiveOlderThan(ctx, tenantID, cutoff, s.archiveLimit)
	if err != nil {
		return nil, fmt.Errorf("archiving events: %w", err)
	}
	return map[string]any{
		"archived": archived,
		// A full batch means a backlog likely remains for the next night.
		"backlog_likely": archived == s.archiveLimit,
	}, nil
}

func (s *Service) cleanupMessages(ctx context.Context, tenantID string) (map[string]any, error) {
	deleted, err := s.deps.Bus.CleanupExpired(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("cleaning expired messages: %w", err)
	}
	return map[string]any{"deleted": deleted}, nil
}

func (s *Service) systemPerformance(ctx context.Context, tenantID string) (map[string]any, error) {
	report, err := s.deps.Outcomes.AnalyzeSystemPerformance(ctx, tenantID, performanceWindow)
	if err != nil {
		return nil, fmt.Errorf("analyzing system performance: %w", err)
	}
	return map[string]any{
		"total_outcomes":  report.TotalOutcomes,
		"conversion_rate": report.OverallRate,
		"total_revenue":   report.TotalRevenue,
	}, nil
}
