package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora-backend/domain/config"
	pkgerrors "agora-backend/pkg/errors"
)

func TestSensitivityAnalyzer_Deterministic(t *testing.T) {
	snap := buildSnapshot(
		map[string]float64{"goal": 0.9, "mid": 0.7, "target": 0.8},
		[][2]string{{"goal", "mid"}, {"mid", "target"}},
	)
	paths := [][]string{{"goal", "mid", "target"}}
	analyzer := NewSensitivityAnalyzer(config.DefaultSessionConfig(), nil)

	first, err := analyzer.Analyze(snap, paths)
	require.NoError(t, err)
	second, err := analyzer.Analyze(snap, paths)
	require.NoError(t, err)

	// Same seed, same snapshot, same report
	require.Equal(t, len(first.Elements), len(second.Elements))
	for i := range first.Elements {
		assert.Equal(t, first.Elements[i], second.Elements[i])
	}
	assert.Equal(t, first.BaseUtility, second.BaseUtility)
}

func TestSensitivityAnalyzer_BaseUtility(t *testing.T) {
	snap := buildSnapshot(
		map[string]float64{"goal": 0.9, "mid": 0.7, "target": 0.8},
		[][2]string{{"goal", "mid"}, {"mid", "target"}},
	)
	analyzer := NewSensitivityAnalyzer(config.DefaultSessionConfig(), nil)

	report, err := analyzer.Analyze(snap, [][]string{{"goal", "mid", "target"}})
	require.NoError(t, err)

	// Utility of a single path is the product of its confidences
	assert.InDelta(t, 0.9*0.7*0.8, report.BaseUtility, 1e-9)
}

func TestSensitivityAnalyzer_CollapseThreshold(t *testing.T) {
	snap := buildSnapshot(
		map[string]float64{"goal": 0.9, "mid": 0.7, "target": 0.8},
		[][2]string{{"goal", "mid"}, {"mid", "target"}},
	)
	analyzer := NewSensitivityAnalyzer(config.DefaultSessionConfig(), nil)

	report, err := analyzer.Analyze(snap, [][]string{{"goal", "mid", "target"}})
	require.NoError(t, err)

	// Utility stays above 0.5 while 0.9 * c * 0.8 >= 0.5, so the mid
	// node collapses below c = 0.5 / 0.72
	for _, el := range report.Elements {
		if el.NodeID == "mid" {
			assert.InDelta(t, 0.5/(0.9*0.8), el.CollapseThreshold, 1e-3)
		}
	}
}

func TestSensitivityAnalyzer_SharedNodeDominates(t *testing.T) {
	// goal sits on both paths of the diamond; left only on one. The
	// shared node must correlate with utility at least as strongly.
	snap := buildSnapshot(
		map[string]float64{"goal": 0.8, "left": 0.7, "right": 0.7, "target": 0.8},
		[][2]string{{"goal", "left"}, {"goal", "right"}, {"left", "target"}, {"right", "target"}},
	)
	paths := [][]string{
		{"goal", "left", "target"},
		{"goal", "right", "target"},
	}
	analyzer := NewSensitivityAnalyzer(config.DefaultSessionConfig(), nil)

	report, err := analyzer.Analyze(snap, paths)
	require.NoError(t, err)

	scores := make(map[string]float64)
	for _, el := range report.Elements {
		scores[el.NodeID] = el.SensitivityScore
	}
	assert.Greater(t, scores["goal"], scores["left"])
	assert.Greater(t, scores["goal"], scores["right"])
}

func TestSensitivityAnalyzer_Validation(t *testing.T) {
	analyzer := NewSensitivityAnalyzer(config.DefaultSessionConfig(), nil)

	_, err := analyzer.Analyze(buildSnapshot(map[string]float64{"a": 0.5}, nil), nil)
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = analyzer.Analyze(buildSnapshot(map[string]float64{"a": 0.5}, nil), [][]string{{"a", "ghost"}})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCollapseThresholdEdges(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	analyzer := NewSensitivityAnalyzer(cfg, nil)

	t.Run("node that can fail outright", func(t *testing.T) {
		// Two redundant paths: either branch alone keeps utility at the
		// bound only if the other is strong enough
		base := map[string]float64{"goal": 1.0, "left": 1.0, "right": 1.0, "target": 1.0}
		paths := [][]string{
			{"goal", "left", "target"},
			{"goal", "right", "target"},
		}
		// Mean utility with left at 0 is (0 + 1) / 2 = 0.5, right at the bound
		got := analyzer.collapseThreshold(paths, base, "left")
		assert.Equal(t, 0.0, got)
	})

	t.Run("node that can never satisfy the bound", func(t *testing.T) {
		base := map[string]float64{"goal": 0.4, "mid": 0.9, "target": 0.9}
		paths := [][]string{{"goal", "mid", "target"}}
		// Even at confidence 1 utility is 0.4 * 0.9 < bound
		got := analyzer.collapseThreshold(paths, base, "mid")
		assert.Equal(t, 1.0, got)
	})
}
