package ident

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		datacenterID uint64
		workerID     uint64
		wantErr      bool
	}{
		{name: "both zero", datacenterID: 0, workerID: 0},
		{name: "both max", datacenterID: 31, workerID: 31},
		{name: "datacenter out of range", datacenterID: 32, workerID: 0, wantErr: true},
		{name: "worker out of range", datacenterID: 0, workerID: 32, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, err := New(tt.datacenterID, tt.workerID)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIdentityOutOfRange)
				assert.Nil(t, g)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, g)
		})
	}
}

func TestNextUniqueAndOrderedUnderConcurrency(t *testing.T) {
	t.Parallel()

	g, err := New(1, 2)
	require.NoError(t, err)

	const (
		goroutines = 8
		perG       = 2000
	)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make([]uint64, 0, goroutines*perG)
	)

	wg.Add(goroutines)
	for n := 0; n < goroutines; n++ {
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perG)
			for i := 0; i < perG; i++ {
				id, err := g.Next()
				if err != nil {
					t.Error(err)
					return
				}
				local = append(local, id)
			}
			mu.Lock()
			ids = append(ids, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id issued: %d", id)
		}
		seen[id] = struct{}{}
	}
	require.Len(t, seen, goroutines*perG)
}

func TestNextTimestampsNonDecreasing(t *testing.T) {
	t.Parallel()

	g, err := New(0, 0)
	require.NoError(t, err)

	var prev uint64
	for i := 0; i < 10000; i++ {
		id, err := g.Next()
		require.NoError(t, err)
		if Timestamp(id).Before(Timestamp(prev)) {
			t.Fatalf("timestamp regressed: %d after %d", id, prev)
		}
		prev = id
	}
}

func TestNextEmbedsIdentity(t *testing.T) {
	t.Parallel()

	g, err := New(5, 17)
	require.NoError(t, err)

	id, err := g.Next()
	require.NoError(t, err)

	assert.Equal(t, uint64(5), id>>datacenterShift&maxIdentity)
	assert.Equal(t, uint64(17), id>>workerShift&maxIdentity)
}

func TestNextFailsOnClockRegression(t *testing.T) {
	t.Parallel()

	g, err := New(0, 0)
	require.NoError(t, err)

	clock := int64(epoch + 5000)
	g.now = func() int64 { return clock }

	_, err = g.Next()
	require.NoError(t, err)

	clock -= 100
	_, err = g.Next()
	assert.ErrorIs(t, err, ErrClockRegression)
}

func TestNextRollsSequenceIntoNextMillisecond(t *testing.T) {
	t.Parallel()

	g, err := New(0, 0)
	require.NoError(t, err)

	// Frozen clock until the sequence overflows, then the busy-wait must
	// observe an advanced millisecond.
	calls := 0
	base := int64(epoch + 1000)
	g.now = func() int64 {
		calls++
		if calls > sequenceMask+2 {
			return base + 1
		}
		return base
	}

	var last uint64
	for i := 0; i <= sequenceMask+1; i++ {
		id, err := g.Next()
		require.NoError(t, err)
		if id <= last && i > 0 {
			t.Fatalf("id not increasing at sequence overflow: %d after %d", id, last)
		}
		last = id
	}

	assert.Equal(t, int64(1001), int64(last>>timestampShift))
	assert.Zero(t, last&sequenceMask)
}
