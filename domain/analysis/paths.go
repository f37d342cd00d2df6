// Package analysis contains the read-side analyzers. They consume graph
// snapshots, never the live aggregate, so long computations cannot block
// mutations; every report carries the element versions it was computed
// against.
package analysis

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"agora-backend/domain/config"
	"agora-backend/domain/core/aggregates"
	pkgerrors "agora-backend/pkg/errors"
)

// ElementPathStats describes one node's role across all enumerated paths
type ElementPathStats struct {
	NodeID          string  `json:"node_id"`
	PathsThrough    int     `json:"paths_through"`
	PathsAvoiding   int     `json:"paths_avoiding"`
	RedundancyRatio float64 `json:"redundancy_ratio"`
	Critical        bool    `json:"critical"`
}

// PathReport is the result of one path analysis run
type PathReport struct {
	RootID      string             `json:"root_id"`
	TargetID    string             `json:"target_id"`
	TotalPaths  int                `json:"total_paths"`
	Approximate bool               `json:"approximate"`
	Unreachable bool               `json:"unreachable"`
	Paths       [][]string         `json:"paths,omitempty"`
	Elements    []ElementPathStats `json:"elements,omitempty"`
	CriticalIDs []string           `json:"critical_ids"`
	MinCutSets  [][]string         `json:"min_cut_sets"`
	WeakestCut  []string           `json:"weakest_cut,omitempty"`
}

// PathAnalyzer enumerates simple paths between two nodes and derives
// criticality, redundancy, and minimal cut sets from them. Past the
// enumeration cap it degrades to a max-flow approximation instead of
// blowing up combinatorially.
type PathAnalyzer struct {
	cfg    *config.SessionConfig
	logger *zap.Logger
}

// NewPathAnalyzer creates a path analyzer
func NewPathAnalyzer(cfg *config.SessionConfig, logger *zap.Logger) *PathAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PathAnalyzer{cfg: cfg, logger: logger}
}

// Analyze runs path analysis from rootID to targetID over a snapshot
func (a *PathAnalyzer) Analyze(snap *aggregates.Snapshot, rootID, targetID string) (*PathReport, error) {
	nodes := snap.NodeIndex()
	if _, ok := nodes[rootID]; !ok {
		return nil, pkgerrors.NewNotFoundError("node " + rootID)
	}
	if _, ok := nodes[targetID]; !ok {
		return nil, pkgerrors.NewNotFoundError("node " + targetID)
	}

	adjacency := make(map[string][]string)
	for _, e := range snap.Edges {
		adjacency[e.SourceID] = append(adjacency[e.SourceID], e.TargetID)
	}

	paths, capped := enumerateSimplePaths(adjacency, rootID, targetID, a.cfg.PathEnumerationCap)
	if capped {
		a.logger.Debug("path enumeration capped, degrading to max-flow",
			zap.String("root_id", rootID),
			zap.String("target_id", targetID),
			zap.Int("cap", a.cfg.PathEnumerationCap))
		return a.approximate(snap, adjacency, rootID, targetID), nil
	}

	report := &PathReport{
		RootID:     rootID,
		TargetID:   targetID,
		TotalPaths: len(paths),
		Paths:      paths,
	}
	if len(paths) == 0 {
		// An unreachable target is a finding, not an error
		report.Unreachable = true
		return report, nil
	}

	through := make(map[string]int)
	for _, path := range paths {
		for _, id := range path {
			through[id]++
		}
	}

	ids := make([]string, 0, len(through))
	for id := range through {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := through[id]
		avoiding := len(paths) - t
		report.Elements = append(report.Elements, ElementPathStats{
			NodeID:          id,
			PathsThrough:    t,
			PathsAvoiding:   avoiding,
			RedundancyRatio: float64(avoiding) / float64(t),
			Critical:        t == len(paths),
		})
		if t == len(paths) {
			report.CriticalIDs = append(report.CriticalIDs, id)
		}
	}

	report.MinCutSets = minimalCutSets(report.CriticalIDs)
	report.WeakestCut = weakestCut(report.MinCutSets, nodes)
	return report, nil
}

// approximate derives criticality and a vertex cut via unit-capacity
// max-flow with node splitting. TotalPaths is the number of
// vertex-disjoint paths, a lower bound on the true path count.
func (a *PathAnalyzer) approximate(snap *aggregates.Snapshot, adjacency map[string][]string, rootID, targetID string) *PathReport {
	report := &PathReport{
		RootID:      rootID,
		TargetID:    targetID,
		Approximate: true,
	}

	flow := maxVertexDisjointPaths(adjacency, rootID, targetID)
	report.TotalPaths = flow
	if flow == 0 {
		report.Unreachable = true
		return report
	}

	// A node is critical when removing it disconnects root from target
	var critical []string
	for id := range snap.NodeIndex() {
		if id == rootID || id == targetID {
			continue
		}
		if !reachableWithout(adjacency, rootID, targetID, id) {
			critical = append(critical, id)
		}
	}
	sort.Strings(critical)
	report.CriticalIDs = append([]string{}, critical...)
	report.CriticalIDs = append(report.CriticalIDs, rootID, targetID)
	sort.Strings(report.CriticalIDs)

	report.MinCutSets = minimalCutSetsFrom(rootID, targetID, critical)
	report.WeakestCut = weakestCut(report.MinCutSets, snap.NodeIndex())
	return report
}

// enumerateSimplePaths lists all simple paths from root to target by DFS.
// Returns capped=true as soon as the cap is exceeded.
func enumerateSimplePaths(adjacency map[string][]string, root, target string, cap int) ([][]string, bool) {
	var paths [][]string
	visited := map[string]bool{root: true}
	stack := []string{root}
	capped := false

	var dfs func(current string)
	dfs = func(current string) {
		if capped {
			return
		}
		if current == target {
			path := make([]string, len(stack))
			copy(path, stack)
			paths = append(paths, path)
			if len(paths) > cap {
				capped = true
			}
			return
		}
		for _, next := range adjacency[current] {
			if visited[next] {
				continue
			}
			visited[next] = true
			stack = append(stack, next)
			dfs(next)
			stack = stack[:len(stack)-1]
			visited[next] = false
			if capped {
				return
			}
		}
	}
	dfs(root)

	if capped {
		return nil, true
	}
	return paths, false
}

// minimalCutSets builds the size-1 cut sets: every critical node is one,
// the endpoints always among them
func minimalCutSets(criticalIDs []string) [][]string {
	cuts := make([][]string, 0, len(criticalIDs))
	for _, id := range criticalIDs {
		cuts = append(cuts, []string{id})
	}
	return cuts
}

func minimalCutSetsFrom(rootID, targetID string, interior []string) [][]string {
	all := append([]string{rootID, targetID}, interior...)
	sort.Strings(all)
	return minimalCutSets(all)
}

// weakestCut picks the cut set with the lowest aggregate confidence,
// breaking ties on sorted member IDs for determinism
func weakestCut(cuts [][]string, nodes map[string]aggregates.SnapshotNode) []string {
	var best []string
	bestScore := math.Inf(1)
	for _, cut := range cuts {
		score := 0.0
		for _, id := range cut {
			score += nodes[id].Confidence
		}
		if score < bestScore || (score == bestScore && lessIDs(cut, best)) {
			best = cut
			bestScore = score
		}
	}
	return best
}

func lessIDs(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// reachableWithout reports whether target is reachable from root when
// excluded is removed from the graph
func reachableWithout(adjacency map[string][]string, root, target, excluded string) bool {
	if root == excluded || target == excluded {
		return false
	}
	seen := map[string]bool{root: true}
	queue := []string{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == target {
			return true
		}
		for _, next := range adjacency[current] {
			if next == excluded || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return false
}

// maxVertexDisjointPaths computes the number of vertex-disjoint paths
// from root to target. Standard node-splitting reduction: every node
// becomes an in/out pair joined by a unit-capacity arc, then Edmonds-Karp
// over the unit network.
func maxVertexDisjointPaths(adjacency map[string][]string, root, target string) int {
	const inf = 1 << 30

	index := make(map[string]int)
	id := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		i := len(index)
		index[name] = i
		return i
	}

	type arc struct {
		to, cap, rev int
	}
	graph := make(map[int][]arc)
	addArc := func(from, to, cap int) {
		graph[from] = append(graph[from], arc{to: to, cap: cap, rev: len(graph[to])})
		graph[to] = append(graph[to], arc{to: from, cap: 0, rev: len(graph[from]) - 1})
	}

	inOf := func(name string) int { return id(name + "/in") }
	outOf := func(name string) int { return id(name + "/out") }

	seen := map[string]bool{}
	splitNode := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		cap := 1
		if name == root || name == target {
			cap = inf
		}
		addArc(inOf(name), outOf(name), cap)
	}

	splitNode(root)
	splitNode(target)
	for from, tos := range adjacency {
		splitNode(from)
		for _, to := range tos {
			splitNode(to)
			addArc(outOf(from), inOf(to), inf)
		}
	}

	source, sink := outOf(root), inOf(target)
	flow := 0
	for {
		// BFS for a shortest augmenting path
		parent := make(map[int]struct {
			node, arcIdx int
		})
		visited := map[int]bool{source: true}
		queue := []int{source}
		for len(queue) > 0 && !visited[sink] {
			current := queue[0]
			queue = queue[1:]
			for i, a := range graph[current] {
				if a.cap <= 0 || visited[a.to] {
					continue
				}
				visited[a.to] = true
				parent[a.to] = struct {
					node, arcIdx int
				}{current, i}
				queue = append(queue, a.to)
			}
		}
		if !visited[sink] {
			break
		}

		bottleneck := inf
		for v := sink; v != source; v = parent[v].node {
			p := parent[v]
			if graph[p.node][p.arcIdx].cap < bottleneck {
				bottleneck = graph[p.node][p.arcIdx].cap
			}
		}
		for v := sink; v != source; v = parent[v].node {
			p := parent[v]
			graph[p.node][p.arcIdx].cap -= bottleneck
			rev := graph[p.node][p.arcIdx].rev
			graph[v][rev].cap += bottleneck
		}
		flow += bottleneck
	}
	return flow
}
