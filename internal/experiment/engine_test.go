package experiment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/store/memory"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() (*Engine, *memory.Store) {
	s := memory.New()
	return NewEngine(s, func() time.Time { return testNow }, zap.NewNop()), s
}

func validConfig() domain.Experiment {
	return domain.Experiment{
		ID:     "exp-1",
		Name:   "subject line test",
		Metric: "reply_rate",
		Variants: []domain.Variant{
			{ID: "a", Weight: 0.5},
			{ID: "b", Weight: 0.5},
		},
		MinSampleSize: 100,
	}
}

func TestEngine_Create_Valid(t *testing.T) {
	engine, _ := newTestEngine()

	created, err := engine.Create(context.Background(), validConfig())

	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentRunning, created.Status)
	assert.Equal(t, domain.DefaultSignificanceLevel, created.SignificanceLevel)
}

func TestEngine_Create_RejectsInvalidConfig(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	single := validConfig()
	single.Variants = single.Variants[:1]
	_, err := engine.Create(ctx, single)
	assert.True(t, domain.IsValidationError(err))

	badWeights := validConfig()
	badWeights.Variants = []domain.Variant{{ID: "a", Weight: 0.5}, {ID: "b", Weight: 0.6}}
	_, err = engine.Create(ctx, badWeights)
	assert.True(t, domain.IsValidationError(err))

	noMetric := validConfig()
	noMetric.Metric = ""
	_, err = engine.Create(ctx, noMetric)
	assert.True(t, domain.IsValidationError(err))
}

func TestEngine_Create_WeightToleranceAccepted(t *testing.T) {
	engine, _ := newTestEngine()

	config := validConfig()
	config.Variants = []domain.Variant{{ID: "a", Weight: 0.3334}, {ID: "b", Weight: 0.3333}, {ID: "c", Weight: 0.3333}}

	_, err := engine.Create(context.Background(), config)
	assert.NoError(t, err)
}

func TestEngine_Assign_Deterministic(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	_, err := engine.Create(ctx, validConfig())
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		subject := fmt.Sprintf("lead-%d", i)
		first, err := engine.Assign(ctx, "exp-1", subject)
		require.NoError(t, err)

		// Repeated calls always return the same variant.
		for j := 0; j < 5; j++ {
			again, err := engine.Assign(ctx, "exp-1", subject)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestEngine_Assign_RespectsWeights(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	config := validConfig()
	config.Variants = []domain.Variant{{ID: "a", Weight: 0.9}, {ID: "b", Weight: 0.1}}
	_, err := engine.Create(ctx, config)
	require.NoError(t, err)

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		variant, err := engine.Assign(ctx, "exp-1", fmt.Sprintf("lead-%d", i))
		require.NoError(t, err)
		counts[variant]++
	}

	// 9:1 split; allow generous slack since the hash is fixed, not random.
	assert.Greater(t, counts["a"], 800)
	assert.Less(t, counts["b"], 200)
	assert.Greater(t, counts["b"], 20)
}

func TestEngine_Analyze_ScenarioTwoVariants(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	config := validConfig()
	config.MinSampleSize = 300
	_, err := engine.Create(ctx, config)
	require.NoError(t, err)

	// 120/500 vs 150/500 conversions. Seed results directly per variant by
	// going through the store would bypass assignment, so pick subjects whose
	// deterministic assignment matches, per variant, until each bucket holds
	// 500 subjects.
	seedResults(t, ctx, engine, "exp-1", "a", 500, 120)
	seedResults(t, ctx, engine, "exp-1", "b", 500, 150)

	analysis, err := engine.Analyze(ctx, "exp-1")
	require.NoError(t, err)

	require.Len(t, analysis.Stats, 2)
	assert.True(t, analysis.SampleMet)
	assert.Less(t, analysis.PValue, 0.05)
	assert.True(t, analysis.Significant)
}

func TestEngine_Analyze_BelowMinimumNotSignificant(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	config := validConfig()
	config.MinSampleSize = 300
	_, err := engine.Create(ctx, config)
	require.NoError(t, err)

	// A lopsided but tiny sample: the p-value may pass, significance must not.
	seedResults(t, ctx, engine, "exp-1", "a", 20, 1)
	seedResults(t, ctx, engine, "exp-1", "b", 20, 15)

	analysis, err := engine.Analyze(ctx, "exp-1")
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	// The stats still come back so callers can show progress toward the
	// minimum sample.
	require.Len(t, analysis.Stats, 2)
	assert.Equal(t, 20, analysis.Stats[0].Subjects)
	assert.False(t, analysis.SampleMet)
	assert.False(t, analysis.Significant, "early stopping on noise must be prevented")
}

func TestEngine_SelectWinner_AutomaticPicksBestRate(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()

	config := validConfig()
	config.MinSampleSize = 300
	_, err := engine.Create(ctx, config)
	require.NoError(t, err)

	seedResults(t, ctx, engine, "exp-1", "a", 500, 120)
	seedResults(t, ctx, engine, "exp-1", "b", 500, 150)

	experiment, err := engine.SelectWinner(ctx, "exp-1", "")
	require.NoError(t, err)

	assert.Equal(t, "b", experiment.Winner)
	assert.Equal(t, domain.WinnerAutomatic, experiment.WinnerSource)
	assert.Equal(t, domain.ExperimentCompleted, experiment.Status)
	assert.Equal(t, testNow, experiment.CompletedAt)
}

func TestEngine_SelectWinner_InsufficientDataIsPending(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	_, err := engine.Create(ctx, validConfig())
	require.NoError(t, err)

	seedResults(t, ctx, engine, "exp-1", "a", 10, 2)
	seedResults(t, ctx, engine, "exp-1", "b", 10, 5)

	_, err = engine.SelectWinner(ctx, "exp-1", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	// The experiment keeps running; it is not an error state.
	experiment, err := engine.Get(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentRunning, experiment.Status)
}

func TestEngine_SelectWinner_ManualOverrideAudited(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	_, err := engine.Create(ctx, validConfig())
	require.NoError(t, err)

	experiment, err := engine.SelectWinner(ctx, "exp-1", "a")
	require.NoError(t, err)

	assert.Equal(t, "a", experiment.Winner)
	assert.Equal(t, domain.WinnerManual, experiment.WinnerSource)

	// A winner is declared at most once.
	_, err = engine.SelectWinner(ctx, "exp-1", "b")
	assert.True(t, domain.IsValidationError(err))
}

func TestEngine_SelectWinner_ManualUnknownVariantRejected(t *testing.T) {
	engine, _ := newTestEngine()
	ctx := context.Background()
	_, err := engine.Create(ctx, validConfig())
	require.NoError(t, err)

	_, err = engine.SelectWinner(ctx, "exp-1", "zzz")
	assert.True(t, domain.IsValidationError(err))
}

func TestEngine_RecordResult_LaterCallOverrides(t *testing.T) {
	engine, s := newTestEngine()
	ctx := context.Background()
	_, err := engine.Create(ctx, validConfig())
	require.NoError(t, err)

	require.NoError(t, engine.RecordResult(ctx, "exp-1", "lead-1", false))
	require.NoError(t, engine.RecordResult(ctx, "exp-1", "lead-1", true))

	counts, err := s.ResultCounts(ctx, "exp-1")
	require.NoError(t, err)

	total := 0
	converted := 0
	for _, c := range counts {
		total += c.Subjects
		converted += c.Conversions
	}
	assert.Equal(t, 1, total, "one subject, one analysis row")
	assert.Equal(t, 1, converted, "the later result wins")
}

// seedResults records exactly total results for the given variant, the first
// converted of them successful, using subjects that deterministically hash
// into that variant.
func seedResults(t *testing.T, ctx context.Context, engine *Engine, experimentID, variantID string, total, converted int) {
	t.Helper()
	seeded := 0
	for i := 0; seeded < total; i++ {
		subject := fmt.Sprintf("seed-%s-%d", variantID, i)
		assigned, err := engine.Assign(ctx, experimentID, subject)
		require.NoError(t, err)
		if assigned != variantID {
			continue
		}
		require.NoError(t, engine.RecordResult(ctx, experimentID, subject, seeded < converted))
		seeded++
		require.Less(t, i, total*100, "hash never landed enough subjects in variant %s", variantID)
	}
}
