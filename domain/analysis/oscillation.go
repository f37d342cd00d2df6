package analysis

import (
	"math"
	"sync"

	"agora-backend/domain/config"
	pkgerrors "agora-backend/pkg/errors"
)

// OscillationDetector watches each debating side's position embeddings
// for the A-B-A pattern: a side circling back to the position it held
// two rounds earlier. Histories are kept per side, so one side reverting
// is caught even while its opponent keeps moving, and two sides trading
// positions cannot mimic a revert. Similarity to a side's immediately
// preceding round is expected drift and never flags.
type OscillationDetector struct {
	mu        sync.Mutex
	threshold float64
	positions map[string][][]float64
}

// NewOscillationDetector creates a detector with the session's threshold
func NewOscillationDetector(cfg *config.SessionConfig) *OscillationDetector {
	return &OscillationDetector{
		threshold: cfg.OscillationThreshold,
		positions: make(map[string][][]float64),
	}
}

// RecordPosition appends one side's embedding for a round and reports
// whether that side has circled back to its own position two rounds
// back. Detection needs at least three recorded rounds for the side.
func (d *OscillationDetector) RecordPosition(side string, embedding []float64) (bool, error) {
	if side == "" {
		return false, pkgerrors.NewValidationError("position side cannot be empty")
	}
	if len(embedding) == 0 {
		return false, pkgerrors.NewValidationError("position embedding cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.positions[side]
	if len(history) > 0 && len(history[0]) != len(embedding) {
		return false, pkgerrors.NewValidationError("position embedding dimension mismatch")
	}

	history = append(history, embedding)
	d.positions[side] = history
	if len(history) < 3 {
		return false, nil
	}

	previous := history[len(history)-3]
	return cosineSimilarity(embedding, previous) >= d.threshold, nil
}

// RoundCount returns the number of rounds recorded for a side
func (d *OscillationDetector) RoundCount(side string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.positions[side])
}

// Reset clears every side's history
func (d *OscillationDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positions = make(map[string][][]float64)
}

// cosineSimilarity returns the cosine of the angle between two vectors;
// zero vectors compare at 0
func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
