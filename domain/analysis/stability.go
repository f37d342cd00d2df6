package analysis

import (
	"fmt"

	"agora-backend/domain/config"
)

// Structural classifications
const (
	ClassificationDeterminate   = "determinate"
	ClassificationIndeterminate = "indeterminate"
)

// Recommendation kinds
const (
	RecommendStrengthenNode = "strengthen_node"
	RecommendAddRedundancy  = "add_redundancy"
)

// Recommendation suggests one concrete repair for a fragile graph
type Recommendation struct {
	Kind      string `json:"kind"`
	NodeID    string `json:"node_id"`
	Rationale string `json:"rationale"`
}

// StabilityAssessment combines path and sensitivity findings into the
// structural verdict consumers act on
type StabilityAssessment struct {
	Classification  string             `json:"classification"`
	Bottlenecks     []string           `json:"bottlenecks"`
	CoverageScores  map[string]float64 `json:"coverage_scores,omitempty"`
	Recommendations []Recommendation   `json:"recommendations"`
}

// AssessStability derives the structural classification, bottleneck
// listing, and repair recommendations from one analysis round. The
// sensitivity report may be nil when only path analysis ran.
func AssessStability(cfg *config.SessionConfig, paths *PathReport, sensitivity *SensitivityReport) *StabilityAssessment {
	out := &StabilityAssessment{
		Classification:  ClassificationDeterminate,
		Recommendations: []Recommendation{},
	}

	if paths == nil || paths.Unreachable {
		out.Classification = ClassificationIndeterminate
		return out
	}

	// Bottlenecks are the interior critical nodes: single points of
	// failure between root and target
	for _, id := range paths.CriticalIDs {
		if id == paths.RootID || id == paths.TargetID {
			continue
		}
		out.Bottlenecks = append(out.Bottlenecks, id)
	}

	if paths.TotalPaths > 0 && len(paths.Elements) > 0 {
		out.CoverageScores = make(map[string]float64, len(paths.Elements))
		for _, el := range paths.Elements {
			out.CoverageScores[el.NodeID] = float64(el.PathsThrough) / float64(paths.TotalPaths)
		}
	}

	collapsible := make(map[string]float64)
	if sensitivity != nil {
		if sensitivity.BaseUtility < cfg.AcceptanceBound {
			out.Classification = ClassificationIndeterminate
		}
		for _, el := range sensitivity.Elements {
			collapsible[el.NodeID] = el.CollapseThreshold
		}
	}

	for _, id := range out.Bottlenecks {
		if threshold, ok := collapsible[id]; ok && threshold > 0 {
			out.Recommendations = append(out.Recommendations, Recommendation{
				Kind:   RecommendStrengthenNode,
				NodeID: id,
				Rationale: fmt.Sprintf(
					"utility collapses if confidence drops below %.2f", threshold),
			})
		}
		out.Recommendations = append(out.Recommendations, Recommendation{
			Kind:      RecommendAddRedundancy,
			NodeID:    id,
			Rationale: "every path between root and target runs through this node",
		})
	}

	return out
}
