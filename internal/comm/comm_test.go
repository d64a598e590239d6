package comm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialCollectives(t *testing.T) {
	ctx := context.Background()
	c := Serial()
	assert.Equal(t, 0, c.Rank())
	assert.Equal(t, 1, c.Size())

	values, counts, err := c.AllGatherVariable(ctx, []int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, values)
	assert.Equal(t, []int{2}, counts)

	sum, err := c.SumAll(ctx, []int64{5})
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, sum)

	scan, err := c.ScanSum(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), scan)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, c.Barrier(cancelled), context.Canceled)
}

func TestGroupCollectives(t *testing.T) {
	const size = 4
	var mu sync.Mutex
	gathered := make(map[int][]int64)
	scans := make(map[int]int64)
	err := Run(context.Background(), size, func(ctx context.Context, c Communicator) error {
		mine := make([]int64, c.Rank())
		for i := range mine {
			mine[i] = int64(c.Rank())
		}
		values, counts, err := c.AllGatherVariable(ctx, mine)
		if err != nil {
			return err
		}
		if len(counts) != size || counts[3] != 3 {
			return errors.New("unexpected counts")
		}
		sum, err := c.SumAll(ctx, []int64{int64(c.Rank()), 1})
		if err != nil {
			return err
		}
		if sum[0] != 6 || sum[1] != size {
			return errors.New("unexpected sum")
		}
		max, err := c.MaxAll(ctx, []int64{int64(c.Rank() * 10)})
		if err != nil {
			return err
		}
		if max[0] != 30 {
			return errors.New("unexpected max")
		}
		scan, err := c.ScanSum(ctx, int64(c.Rank()+1))
		if err != nil {
			return err
		}
		if err := c.Barrier(ctx); err != nil {
			return err
		}
		mu.Lock()
		gathered[c.Rank()] = values
		scans[c.Rank()] = scan
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	for rank := 0; rank < size; rank++ {
		assert.Equal(t, []int64{1, 2, 2, 3, 3, 3}, gathered[rank], "rank %d", rank)
	}
	assert.Equal(t, map[int]int64{0: 1, 1: 3, 2: 6, 3: 10}, scans)
}

func TestGroupDetectsMismatchedOperations(t *testing.T) {
	err := Run(context.Background(), 2, func(ctx context.Context, c Communicator) error {
		if c.Rank() == 0 {
			_, err := c.SumAll(ctx, []int64{1})
			return err
		}
		return c.Barrier(ctx)
	})
	assert.ErrorIs(t, err, ErrCollectiveMismatch)
}

func TestGroupHonoursCancellation(t *testing.T) {
	g, err := NewGroup(2)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// rank 1 never joins
	err = g.Member(0).Barrier(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewGroupRejectsEmpty(t *testing.T) {
	_, err := NewGroup(0)
	assert.Error(t, err)
}
