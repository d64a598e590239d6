package domain

import "time"

// SnapshotVersion is the current snapshot layout.
const SnapshotVersion = 1

// Snapshot is a replayable record of a topology. Roots and refinements carry
// a shared sequence number giving the order they were applied in. KeptCells
// lists the cells known locally when the topology had been pruned.
type Snapshot struct {
	ID              string       `json:"id"`
	Version         int          `json:"version"`
	CreatedAt       time.Time    `json:"created_at"`
	Label           string       `json:"label,omitempty"`
	SpaceDim        int          `json:"space_dim"`
	VertexTolerance float64      `json:"vertex_tolerance"`
	Roots           []RootCell   `json:"roots"`
	Refinements     []Refinement `json:"refinements"`
	Distributed     bool         `json:"distributed,omitempty"`
	OwnedCells      []int        `json:"owned_cells,omitempty"`
	KeptCells       []int        `json:"kept_cells,omitempty"`
	PruningOrdinal  int          `json:"pruning_ordinal"`
}

// RootCell is one inserted root.
type RootCell struct {
	Seq      int         `json:"seq"`
	Index    int         `json:"index"`
	Topology string      `json:"topology"`
	Vertices [][]float64 `json:"vertices"`
}

// Refinement is one applied refinement.
type Refinement struct {
	Seq        int    `json:"seq"`
	Cell       int    `json:"cell"`
	Pattern    string `json:"pattern"`
	FirstChild int    `json:"first_child"`
}

// SnapshotSummary is the listing form of a stored snapshot.
type SnapshotSummary struct {
	ID          string    `json:"id"`
	Label       string    `json:"label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	SpaceDim    int       `json:"space_dim"`
	Roots       int       `json:"roots"`
	Refinements int       `json:"refinements"`
}

// Summary derives the listing form.
func (s Snapshot) Summary() SnapshotSummary {
	return SnapshotSummary{
		ID:          s.ID,
		Label:       s.Label,
		CreatedAt:   s.CreatedAt,
		SpaceDim:    s.SpaceDim,
		Roots:       len(s.Roots),
		Refinements: len(s.Refinements),
	}
}
