package comm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

type opKind string

const (
	opGather  opKind = "allgather"
	opSum     opKind = "sum"
	opMax     opKind = "max"
	opScan    opKind = "scan"
	opBarrier opKind = "barrier"
)

// Group connects a fixed number of in-process workers. The n-th collective
// of every member joins round n; the last member to arrive publishes it.
type Group struct {
	size   int
	mu     sync.Mutex
	rounds map[int]*round
}

type round struct {
	ops      []opKind
	values   [][]int64
	arrived  int
	mismatch bool
	done     chan struct{}
}

// NewGroup creates a group of size workers.
func NewGroup(size int) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("comm: group size %d must be positive", size)
	}
	return &Group{size: size, rounds: make(map[int]*round)}, nil
}

// Member returns the communicator of rank. Each member must be used by a
// single goroutine.
func (g *Group) Member(rank int) Communicator {
	return &member{group: g, rank: rank}
}

// Run launches size workers, each given its own communicator, and waits for
// all of them. The first error cancels the context shared by the others.
func Run(ctx context.Context, size int, fn func(ctx context.Context, c Communicator) error) error {
	g, err := NewGroup(size)
	if err != nil {
		return err
	}
	eg, egCtx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		c := g.Member(rank)
		eg.Go(func() error { return fn(egCtx, c) })
	}
	return eg.Wait()
}

func (g *Group) join(seq, rank int, op opKind, values []int64) *round {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rounds[seq]
	if !ok {
		r = &round{
			ops:    make([]opKind, g.size),
			values: make([][]int64, g.size),
			done:   make(chan struct{}),
		}
		g.rounds[seq] = r
	}
	r.ops[rank] = op
	r.values[rank] = append([]int64(nil), values...)
	for _, other := range r.ops {
		if other != "" && other != op {
			r.mismatch = true
		}
	}
	r.arrived++
	if r.arrived == g.size {
		delete(g.rounds, seq)
		close(r.done)
	}
	return r
}

type member struct {
	group *Group
	rank  int
	seq   int
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.group.size }

func (m *member) collective(ctx context.Context, op opKind, values []int64) ([][]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seq := m.seq
	m.seq++
	r := m.group.join(seq, m.rank, op, values)
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.mismatch {
		return nil, fmt.Errorf("%w: round %d, rank %d issued %s", ErrCollectiveMismatch, seq, m.rank, op)
	}
	return r.values, nil
}

func (m *member) AllGatherVariable(ctx context.Context, values []int64) ([]int64, []int, error) {
	all, err := m.collective(ctx, opGather, values)
	if err != nil {
		return nil, nil, err
	}
	counts := make([]int, len(all))
	var out []int64
	for rank, v := range all {
		counts[rank] = len(v)
		out = append(out, v...)
	}
	return out, counts, nil
}

func (m *member) reduce(ctx context.Context, op opKind, values []int64, combine func(a, b int64) int64) ([]int64, error) {
	all, err := m.collective(ctx, op, values)
	if err != nil {
		return nil, err
	}
	out := append([]int64(nil), all[0]...)
	for rank := 1; rank < len(all); rank++ {
		if len(all[rank]) != len(out) {
			return nil, fmt.Errorf("%w: rank %d reduced %d values, rank 0 reduced %d", ErrCollectiveMismatch, rank, len(all[rank]), len(out))
		}
		for i, v := range all[rank] {
			out[i] = combine(out[i], v)
		}
	}
	return out, nil
}

func (m *member) SumAll(ctx context.Context, values []int64) ([]int64, error) {
	return m.reduce(ctx, opSum, values, func(a, b int64) int64 { return a + b })
}

func (m *member) MaxAll(ctx context.Context, values []int64) ([]int64, error) {
	return m.reduce(ctx, opMax, values, func(a, b int64) int64 {
		if b > a {
			return b
		}
		return a
	})
}

func (m *member) ScanSum(ctx context.Context, value int64) (int64, error) {
	all, err := m.collective(ctx, opScan, []int64{value})
	if err != nil {
		return 0, err
	}
	var sum int64
	for rank := 0; rank <= m.rank; rank++ {
		sum += all[rank][0]
	}
	return sum, nil
}

func (m *member) Barrier(ctx context.Context) error {
	_, err := m.collective(ctx, opBarrier, nil)
	return err
}
