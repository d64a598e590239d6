package mesh

import (
	"context"
	"fmt"
	"sort"

	"meshcore/internal/comm"
)

// gatherBySum assembles every worker's values into one ordered list: each
// worker writes its values at its scan offset in a zeroed buffer and the
// buffers are summed.
func gatherBySum(ctx context.Context, c comm.Communicator, mine []int64) ([]int64, error) {
	count := int64(len(mine))
	inclusive, err := c.ScanSum(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("scan offsets: %w", err)
	}
	totals, err := c.SumAll(ctx, []int64{count})
	if err != nil {
		return nil, fmt.Errorf("sum counts: %w", err)
	}
	buf := make([]int64, totals[0])
	copy(buf[inclusive-count:], mine)
	out, err := c.SumAll(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("sum values: %w", err)
	}
	return out, nil
}

// GlobalActiveCellIndices gathers the active cells owned by every worker.
func (t *Topology) GlobalActiveCellIndices(ctx context.Context, c comm.Communicator) ([]int, error) {
	mine := t.MyActiveCells()
	values := make([]int64, len(mine))
	for i, cell := range mine {
		values[i] = int64(cell)
	}
	all, err := gatherBySum(ctx, c, values)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(all))
	for i, v := range all {
		out[i] = int(v)
	}
	sort.Ints(out)
	return out, nil
}

// GlobalRootCellIndices gathers every root cell across workers. A worker
// claims a root when it owns the leaf reached by following first children.
func (t *Topology) GlobalRootCellIndices(ctx context.Context, c comm.Communicator) ([]int, error) {
	var claims []int64
	for _, root := range t.RootCells() {
		leaf := t.cells[root]
		for len(leaf.children) > 0 {
			next, ok := t.cells[leaf.children[0]]
			if !ok {
				leaf = nil
				break
			}
			leaf = next
		}
		if leaf == nil {
			continue
		}
		if _, owned := t.owned[leaf.index]; owned || !t.distributed {
			claims = append(claims, int64(root))
		}
	}
	all, err := gatherBySum(ctx, c, claims)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(all))
	for i, v := range all {
		out[i] = int(v)
	}
	sort.Ints(out)
	for i := 1; i < len(out); i++ {
		if out[i] == out[i-1] {
			return nil, internalf("root cell %d claimed by more than one worker", out[i])
		}
	}
	return out, nil
}
