// Package comm provides the collective operations the mesh needs when it
// runs as one of several SPMD workers: a variable-length all-gather, sum and
// max reductions, an inclusive prefix sum, and a barrier.
package comm

import (
	"context"
	"errors"
)

// ErrCollectiveMismatch is returned when workers issue different collectives
// in the same round.
var ErrCollectiveMismatch = errors.New("comm: mismatched collective operations")

// Communicator is one worker's handle on its group. Every worker must call
// the same collectives in the same order.
type Communicator interface {
	Rank() int
	Size() int
	// AllGatherVariable concatenates every worker's values in rank order and
	// returns them with each worker's count.
	AllGatherVariable(ctx context.Context, values []int64) ([]int64, []int, error)
	SumAll(ctx context.Context, values []int64) ([]int64, error)
	MaxAll(ctx context.Context, values []int64) ([]int64, error)
	// ScanSum returns the sum of value over ranks 0..Rank().
	ScanSum(ctx context.Context, value int64) (int64, error)
	Barrier(ctx context.Context) error
}

type serial struct{}

// Serial returns the communicator of a single worker.
func Serial() Communicator { return serial{} }

func (serial) Rank() int { return 0 }
func (serial) Size() int { return 1 }

func (serial) AllGatherVariable(ctx context.Context, values []int64) ([]int64, []int, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return append([]int64(nil), values...), []int{len(values)}, nil
}

func (serial) SumAll(ctx context.Context, values []int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]int64(nil), values...), nil
}

func (serial) MaxAll(ctx context.Context, values []int64) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]int64(nil), values...), nil
}

func (serial) ScanSum(ctx context.Context, value int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return value, nil
}

func (serial) Barrier(ctx context.Context) error { return ctx.Err() }
