// Package irregularity drives a distributed mesh to 1-irregularity: no edge
// of an owned active cell may sit more than one refinement level below the
// entity that constrains it.
package irregularity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"meshcore/internal/comm"
	"meshcore/internal/mesh"
	"meshcore/internal/refinement"
	"meshcore/internal/telemetry"
)

// DefaultMaxRounds bounds Enforce when Enforcer.MaxRounds is zero.
const DefaultMaxRounds = 64

// ErrMaxRoundsExceeded is returned when the mesh is still changing after
// the configured number of rounds.
var ErrMaxRoundsExceeded = errors.New("irregularity: maximum rounds exceeded")

// Enforcer runs the refinement rounds for one worker. Every worker of the
// group must call Enforce with the same replicated refinement history.
type Enforcer struct {
	Topology  *mesh.Topology
	Comm      comm.Communicator
	MaxRounds int
	Logger    telemetry.Logger
	Metrics   telemetry.MetricsRecorder
	Tracer    telemetry.Tracer
}

// Report summarises an Enforce call.
type Report struct {
	// Rounds counts every round run, including the final one that found
	// nothing to refine.
	Rounds int
	// Refined counts the cells refined across all rounds and workers.
	Refined int
	// ActiveCells is the global active cell count afterwards.
	ActiveCells int
}

type proposals map[refinement.Key]map[int]struct{}

func (p proposals) add(key refinement.Key, cell int) {
	if p[key] == nil {
		p[key] = make(map[int]struct{})
	}
	p[key][cell] = struct{}{}
}

func (e *Enforcer) logger() telemetry.Logger {
	if e.Logger == nil {
		return telemetry.NopLogger()
	}
	return e.Logger
}

func (e *Enforcer) comm() comm.Communicator {
	if e.Comm == nil {
		return comm.Serial()
	}
	return e.Comm
}

// Enforce refines until a round proposes nothing. One-dimensional meshes
// are always 1-irregular and return immediately.
func (e *Enforcer) Enforce(ctx context.Context) (Report, error) {
	topo := e.Topology
	if topo == nil {
		return Report{}, errors.New("irregularity: nil topology")
	}
	report := Report{ActiveCells: topo.ActiveCellCount()}
	if topo.Dimension() == 1 {
		return report, nil
	}
	maxRounds := e.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	for round := 1; ; round++ {
		if round > maxRounds {
			return report, fmt.Errorf("%w: still refining after %d rounds", ErrMaxRoundsExceeded, maxRounds)
		}
		var refined int
		err := telemetry.Instrument(ctx, e.Tracer, e.Metrics, telemetry.OpIrregularityRound, func(ctx context.Context) error {
			var err error
			refined, err = e.round(ctx)
			return err
		})
		report.Rounds = round
		report.ActiveCells = topo.ActiveCellCount()
		if err != nil {
			return report, fmt.Errorf("irregularity round %d: %w", round, err)
		}
		report.Refined += refined
		e.logger().Info("irregularity round", "round", round, "refined", refined, "active", report.ActiveCells)
		if refined == 0 {
			return report, nil
		}
	}
}

// round proposes, exchanges and applies one set of refinements, returning
// the number of cells refined across the group.
func (e *Enforcer) round(ctx context.Context) (int, error) {
	local, err := e.propose()
	if err != nil {
		return 0, err
	}
	global, err := exchange(ctx, e.comm(), local)
	if err != nil {
		return 0, err
	}
	before := e.Topology.CellCount()
	keys := make([]refinement.Key, 0, len(global))
	for k := range global {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	refined := 0
	for _, k := range keys {
		pattern, err := refinement.ByKey(k)
		if err != nil {
			return 0, err
		}
		cells := global[k]
		if err := e.Topology.HRefine(cells, pattern); err != nil {
			return 0, fmt.Errorf("refine %d cells with %s: %w", len(cells), k, err)
		}
	}
	if grown := e.Topology.CellCount() - before; grown > 0 {
		for _, cells := range global {
			refined += len(cells)
		}
	}
	return refined, nil
}

// propose collects the cells this worker wants refined: every active cell
// on the constraining entity of an owned edge more than one level deep, and
// the unrefined neighbors of a grandparent whose child is interior.
func (e *Enforcer) propose() (proposals, error) {
	topo := e.Topology
	out := make(proposals)
	for _, cell := range topo.MyActiveCells() {
		c := topo.Cell(cell)
		edges := c.Topology().SubcellCount(1)
		for ord := 0; ord < edges; ord++ {
			branch, err := topo.RefinementBranchForSubcell(cell, 1, ord)
			if err != nil {
				return nil, err
			}
			if len(branch) <= 1 {
				continue
			}
			constraining := topo.ConstrainingEntity(1, c.EntityIndex(1, ord))
			for _, ref := range topo.ActiveCellsForEntity(constraining.Dim, constraining.Index) {
				other := topo.Cell(ref.Cell)
				out.add(refinement.Regular(other.Topology()).Key(), ref.Cell)
			}
		}

		parent := c.Parent()
		if parent == mesh.NoIndex || !topo.IsInteriorChild(parent) {
			continue
		}
		grandparent := topo.Cell(topo.Cell(parent).Parent())
		for side := 0; side < grandparent.SideCount(); side++ {
			nb := topo.NeighborInfo(grandparent.Index(), side)
			if nb.Cell == mesh.NoIndex || topo.IsParent(nb.Cell) {
				continue
			}
			out.add(refinement.Regular(topo.Cell(nb.Cell).Topology()).Key(), nb.Cell)
		}
	}
	return out, nil
}

// exchange merges every worker's proposals. Pattern keys travel as their
// position in refinement.Keys; cells are then gathered once per key, with
// every worker joining every gather.
func exchange(ctx context.Context, c comm.Communicator, local proposals) (map[refinement.Key][]int, error) {
	keys := refinement.Keys()
	ids := make(map[refinement.Key]int64, len(keys))
	for i, k := range keys {
		ids[k] = int64(i)
	}
	mine := make([]int64, 0, len(local))
	for k := range local {
		id, ok := ids[k]
		if !ok {
			return nil, fmt.Errorf("pattern %s is not registered", k)
		}
		mine = append(mine, id)
	}
	gathered, _, err := c.AllGatherVariable(ctx, mine)
	if err != nil {
		return nil, fmt.Errorf("gather pattern keys: %w", err)
	}
	distinct := make(map[int64]struct{}, len(gathered))
	for _, id := range gathered {
		distinct[id] = struct{}{}
	}
	order := make([]int64, 0, len(distinct))
	for id := range distinct {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make(map[refinement.Key][]int, len(order))
	for _, id := range order {
		if id < 0 || int(id) >= len(keys) {
			return nil, fmt.Errorf("gathered unknown pattern id %d", id)
		}
		key := keys[id]
		cells := make([]int64, 0, len(local[key]))
		for cell := range local[key] {
			cells = append(cells, int64(cell))
		}
		all, _, err := c.AllGatherVariable(ctx, cells)
		if err != nil {
			return nil, fmt.Errorf("gather cells for %s: %w", key, err)
		}
		seen := make(map[int]struct{}, len(all))
		for _, v := range all {
			seen[int(v)] = struct{}{}
		}
		list := make([]int, 0, len(seen))
		for cell := range seen {
			list = append(list, cell)
		}
		sort.Ints(list)
		out[key] = list
	}
	return out, nil
}

// Irregularity returns the largest refinement branch length over the edges
// of every worker's owned active cells.
func (e *Enforcer) Irregularity(ctx context.Context) (int, error) {
	topo := e.Topology
	if topo == nil {
		return 0, errors.New("irregularity: nil topology")
	}
	mine := 0
	if topo.Dimension() > 1 {
		for _, cell := range topo.MyActiveCells() {
			edges := topo.Cell(cell).Topology().SubcellCount(1)
			for ord := 0; ord < edges; ord++ {
				branch, err := topo.RefinementBranchForSubcell(cell, 1, ord)
				if err != nil {
					return 0, err
				}
				if len(branch) > mine {
					mine = len(branch)
				}
			}
		}
	}
	reduced, err := e.comm().MaxAll(ctx, []int64{int64(mine)})
	if err != nil {
		return 0, fmt.Errorf("reduce irregularity: %w", err)
	}
	return int(reduced[0]), nil
}
