package analysis

import (
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"agora-backend/domain/config"
	"agora-backend/domain/core/aggregates"
	pkgerrors "agora-backend/pkg/errors"
)

// ElementSensitivity describes how strongly one node's confidence drives
// overall utility, and how far it can drop before utility collapses
type ElementSensitivity struct {
	NodeID            string  `json:"node_id"`
	SensitivityScore  float64 `json:"sensitivity_score"`
	CollapseThreshold float64 `json:"collapse_threshold"`
}

// SensitivityReport is the result of one sensitivity analysis run
type SensitivityReport struct {
	BaseUtility float64              `json:"base_utility"`
	Trials      int                  `json:"trials"`
	Seed        int64                `json:"seed"`
	Elements    []ElementSensitivity `json:"elements"`
}

// SensitivityAnalyzer runs Monte Carlo perturbation over path confidences.
// The trial stream is seeded, so the same snapshot and config always
// produce the same report.
type SensitivityAnalyzer struct {
	cfg    *config.SessionConfig
	logger *zap.Logger
}

// NewSensitivityAnalyzer creates a sensitivity analyzer
func NewSensitivityAnalyzer(cfg *config.SessionConfig, logger *zap.Logger) *SensitivityAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SensitivityAnalyzer{cfg: cfg, logger: logger}
}

// Analyze perturbs the confidences of every node appearing on the given
// paths and measures each node's influence on utility. Utility is the
// mean over paths of the product of confidences along the path.
func (a *SensitivityAnalyzer) Analyze(snap *aggregates.Snapshot, paths [][]string) (*SensitivityReport, error) {
	if len(paths) == 0 {
		return nil, pkgerrors.NewValidationError("sensitivity analysis needs at least one path")
	}

	nodes := snap.NodeIndex()
	base := make(map[string]float64)
	for _, path := range paths {
		for _, id := range path {
			node, ok := nodes[id]
			if !ok {
				return nil, pkgerrors.NewNotFoundError("node " + id)
			}
			base[id] = node.Confidence
		}
	}

	ids := make([]string, 0, len(base))
	for id := range base {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := &SensitivityReport{
		BaseUtility: pathUtility(paths, base),
		Trials:      a.cfg.SensitivityTrialCount,
		Seed:        a.cfg.SensitivitySeed,
	}

	rng := rand.New(rand.NewSource(a.cfg.SensitivitySeed))
	trials := a.cfg.SensitivityTrialCount

	samples := make(map[string][]float64, len(ids))
	utilities := make([]float64, trials)
	perturbed := make(map[string]float64, len(base))

	for t := 0; t < trials; t++ {
		for _, id := range ids {
			v := base[id] + rng.NormFloat64()*a.cfg.SensitivityNoiseSigma
			perturbed[id] = clip01(v)
			samples[id] = append(samples[id], perturbed[id])
		}
		utilities[t] = pathUtility(paths, perturbed)
	}

	for _, id := range ids {
		report.Elements = append(report.Elements, ElementSensitivity{
			NodeID:            id,
			SensitivityScore:  math.Abs(pearson(samples[id], utilities)),
			CollapseThreshold: a.collapseThreshold(paths, base, id),
		})
	}

	a.logger.Debug("sensitivity analysis complete",
		zap.Int("trials", trials),
		zap.Int("elements", len(report.Elements)),
		zap.Float64("base_utility", report.BaseUtility))
	return report, nil
}

// collapseThreshold bisects for the lowest confidence the node can hold,
// all others at their base values, before utility drops below the
// acceptance bound. 0 means the node can fail outright; 1 means utility
// is below the bound no matter what.
func (a *SensitivityAnalyzer) collapseThreshold(paths [][]string, base map[string]float64, nodeID string) float64 {
	values := make(map[string]float64, len(base))
	for k, v := range base {
		values[k] = v
	}
	holds := func(c float64) bool {
		values[nodeID] = c
		return pathUtility(paths, values) >= a.cfg.AcceptanceBound
	}

	if holds(0) {
		return 0
	}
	if !holds(1) {
		return 1
	}

	lo, hi := 0.0, 1.0
	for i := 0; i < 40; i++ {
		mid := (lo + hi) / 2
		if holds(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// pathUtility is the mean over paths of the product of confidences along
// each path
func pathUtility(paths [][]string, confidences map[string]float64) float64 {
	total := 0.0
	for _, path := range paths {
		product := 1.0
		for _, id := range path {
			product *= confidences[id]
		}
		total += product
	}
	return total / float64(len(paths))
}

// pearson computes the Pearson correlation coefficient of two equal
// length samples. Degenerate (zero variance) samples correlate at 0.
func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}

	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= n
	meanY /= n

	var cov, varX, varY float64
	for i := range xs {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
