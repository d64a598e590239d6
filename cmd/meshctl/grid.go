package main

import (
	"fmt"

	"meshcore/internal/config"
	"meshcore/internal/mesh"
)

// buildGrid lays out the configured structured grid of root cells, numbered
// with the first axis varying fastest. With more than one rank the roots are
// split into contiguous blocks and rank owns its block.
func buildGrid(cfg config.Config, rank int, opts ...mesh.Option) (*mesh.Topology, error) {
	m := cfg.Mesh
	shape, err := m.Shape()
	if err != nil {
		return nil, err
	}
	topo, err := mesh.New(m.Dimension, opts...)
	if err != nil {
		return nil, err
	}
	h := make([]float64, m.Dimension)
	total := 1
	for d := range h {
		h[d] = (m.Upper[d] - m.Lower[d]) / float64(m.Cells[d])
		total *= m.Cells[d]
	}
	ref := shape.ReferenceNodes()
	idx := make([]int, m.Dimension)
	for n := 0; n < total; n++ {
		rem := n
		for d := range idx {
			idx[d] = rem % m.Cells[d]
			rem /= m.Cells[d]
		}
		coords := make([][]float64, len(ref))
		for v, xi := range ref {
			x := make([]float64, m.Dimension)
			for d := range x {
				x[d] = m.Lower[d] + (float64(idx[d])+(xi[d]+1)/2)*h[d]
			}
			coords[v] = x
		}
		if _, err := topo.AddCell(shape, coords); err != nil {
			return nil, fmt.Errorf("grid cell %d: %w", n, err)
		}
	}
	if ranks := cfg.Distribution.Ranks; ranks > 1 {
		if err := topo.SetOwnedCells(rootBlock(total, ranks, rank)); err != nil {
			return nil, err
		}
	}
	return topo, nil
}

// rootBlock returns the roots of rank when n roots are split evenly over
// ranks.
func rootBlock(n, ranks, rank int) []int {
	lo, hi := n*rank/ranks, n*(rank+1)/ranks
	out := make([]int, 0, hi-lo)
	for c := lo; c < hi; c++ {
		out = append(out, c)
	}
	return out
}

// refine applies the configured pattern for the configured number of
// levels. The first level refines the listed cells, or every active cell
// when none are listed; each further level refines the children produced by
// the previous one.
func refine(topo *mesh.Topology, cfg config.RefinementConfig) error {
	if cfg.Levels == 0 {
		return nil
	}
	targets := append([]int(nil), cfg.Cells...)
	if len(targets) == 0 {
		targets = topo.ActiveCells()
	}
	for level := 0; level < cfg.Levels; level++ {
		var next []int
		for _, cell := range targets {
			if !topo.IsValidCellIndex(cell) {
				return fmt.Errorf("refine: cell %d is not known", cell)
			}
			pattern, err := cfg.ResolvePattern(topo.Cell(cell).Topology())
			if err != nil {
				return err
			}
			if err := topo.HRefine([]int{cell}, pattern); err != nil {
				return err
			}
			next = append(next, topo.Cell(cell).Children()...)
		}
		targets = next
	}
	return nil
}
