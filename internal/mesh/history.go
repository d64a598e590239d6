package mesh

import (
	"meshcore/internal/refinement"
	"meshcore/internal/topology"
)

// HistoryKind distinguishes history entries.
type HistoryKind string

const (
	HistoryRoot   HistoryKind = "root"
	HistoryRefine HistoryKind = "refine"
)

// HistoryEntry is one mutation of the forest. Replaying the entries in order
// into an empty topology rebuilds the same cells with the same indices.
type HistoryEntry struct {
	Kind HistoryKind
	Cell int
	// Topology and Vertices are set for roots.
	Topology topology.Key
	Vertices [][]float64
	// Pattern and FirstChild are set for refinements.
	Pattern    refinement.Key
	FirstChild int
}

// History returns the ordered mutation log.
func (t *Topology) History() []HistoryEntry {
	return append([]HistoryEntry(nil), t.history...)
}

func (t *Topology) recordRoot(c *Cell) {
	t.history = append(t.history, HistoryEntry{
		Kind:     HistoryRoot,
		Cell:     c.index,
		Topology: c.topo.Key(),
		Vertices: t.CellVertexCoordinates(c.index),
	})
}

func (t *Topology) recordRefinement(cell int, pattern *refinement.Pattern, firstChild int) {
	t.history = append(t.history, HistoryEntry{
		Kind:       HistoryRefine,
		Cell:       cell,
		Pattern:    pattern.Key(),
		FirstChild: firstChild,
	})
}
