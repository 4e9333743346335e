package dreamcycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/leaflinelabs/intuition/internal/docstore"
	"github.com/leaflinelabs/intuition/internal/eventlog"
	"github.com/leaflinelabs/intuition/internal/memory"
	"github.com/leaflinelabs/intuition/internal/outcomes"
	"github.com/leaflinelabs/intuition/internal/patterns"
)

// Stubs with no background goroutines so goleak can verify the scheduler
// lifecycle in isolation.
type stubEvents struct{}

func (stubEvents) Query(context.Context, string, eventlog.EventQuery) ([]eventlog.AgentEvent, error) {
	return nil, nil
}

func (stubEvents) CountSince(context.Context, string, time.Time) int { return 0 }

func (stubEvents) LatestEventTime(context.Context, string) (time.Time, bool) {
	return time.Time{}, false
}

func (stubEvents) ArchiveOlderThan(context.Context, string, time.Time, int) (int, error) {
	return 0, nil
}

type stubMemories struct{}

func (stubMemories) UpdateMemoryFromEvents(context.Context, string, string, map[string]float64) (memory.Profile, error) {
	return memory.Profile{}, nil
}

func (stubMemories) AssignCustomerToCluster(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (stubMemories) EffectFrequencies(context.Context, string, int) (map[string]int, int, error) {
	return nil, 0, nil
}

type stubDiscovery struct{}

func (stubDiscovery) DiscoverFromEffects(context.Context, string, map[string]int, int) ([]patterns.PatternCluster, error) {
	return nil, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) RunEvolutionJob(context.Context, string) (outcomes.PerformanceReport, error) {
	return outcomes.PerformanceReport{}, nil
}

func (stubAnalyzer) AnalyzeSystemPerformance(context.Context, string, time.Duration) (outcomes.SystemReport, error) {
	return outcomes.SystemReport{}, nil
}

type countingCleaner struct{ calls atomic.Int64 }

func (c *countingCleaner) CleanupExpired(context.Context, string) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func newStubService(t *testing.T, bus MessageCleaner, tenants TenantLister) *Service {
	t.Helper()
	svc, err := NewService(Deps{
		Store:     docstore.NewMemoryStore(),
		Events:    stubEvents{},
		Memories:  stubMemories{},
		Discovery: stubDiscovery{},
		Outcomes:  stubAnalyzer{},
		Bus:       bus,
		Tenants:   tenants,
	}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewScheduler(t *testing.T) {
	svc := newStubService(t, &countingCleaner{}, staticTenants{})

	_, err := NewScheduler(nil, zap.NewNop())
	require.ErrorContains(t, err, "service is required")

	sched, err := NewScheduler(svc, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, sched.schedule)
	assert.Equal(t, DefaultRunTimeout, sched.timeout)
	assert.False(t, sched.running)

	sched, err = NewScheduler(svc, nil,
		WithSchedule("@every 2h"),
		WithRunTimeout(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "@every 2h", sched.schedule)
	assert.Equal(t, time.Minute, sched.timeout)
}

func TestScheduler_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newStubService(t, &countingCleaner{}, staticTenants{})
	sched, err := NewScheduler(svc, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sched.Start())
	assert.True(t, sched.running)

	err = sched.Start()
	require.ErrorContains(t, err, "already running")

	require.NoError(t, sched.Stop())
	assert.False(t, sched.running)

	// Stopping again is a no-op.
	require.NoError(t, sched.Stop())

	// The scheduler can be restarted after a stop.
	require.NoError(t, sched.Start())
	require.NoError(t, sched.Stop())
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc := newStubService(t, &countingCleaner{}, staticTenants{})
	sched, err := NewScheduler(svc, zap.NewNop(), WithSchedule("every day at three"))
	require.NoError(t, err)

	err = sched.Start()
	require.ErrorContains(t, err, "parsing schedule")
	assert.False(t, sched.running)
	require.NoError(t, sched.Stop())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	cleaner := &countingCleaner{}
	svc := newStubService(t, cleaner, staticTenants{ids: []string{"demo"}})
	sched, err := NewScheduler(svc, zap.NewNop(), WithSchedule("@every 1s"))
	require.NoError(t, err)

	require.NoError(t, sched.Start())
	defer func() { require.NoError(t, sched.Stop()) }()

	require.Eventually(t, func() bool {
		return cleaner.calls.Load() > 0
	}, 5*time.Second, 50*time.Millisecond, "scheduled cycle never ran")
}
