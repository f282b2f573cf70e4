// Package ident produces globally unique, time-ordered 64-bit identifiers.
//
// Layout, most significant bits first: 41 bits of milliseconds since the
// epoch, 5 bits datacenter id, 5 bits worker id, 12 bits intra-millisecond
// sequence. Ids issued by one generator are monotonically non-decreasing;
// generators with distinct (datacenter, worker) identities never collide.
package ident

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Milliseconds since 2024-01-01T00:00:00Z; keeps the timestamp inside its
// 41-bit budget until the year 2093.
const epoch int64 = 1704067200000

const (
	maxIdentity  = 31
	sequenceMask = 0xFFF

	workerShift     = 12
	datacenterShift = 17
	timestampShift  = 22
)

var (
	ErrIdentityOutOfRange = errors.New("ident: identity must be in [0,31]")
	ErrClockRegression    = errors.New("ident: clock moved backwards, refusing to generate id")
)

type Generator struct {
	datacenterID uint64
	workerID     uint64

	mu            sync.Mutex
	lastTimestamp int64
	sequence      uint64

	now func() int64
}

func New(datacenterID, workerID uint64) (*Generator, error) {
	if datacenterID > maxIdentity {
		return nil, fmt.Errorf("%w: datacenter id %d", ErrIdentityOutOfRange, datacenterID)
	}
	if workerID > maxIdentity {
		return nil, fmt.Errorf("%w: worker id %d", ErrIdentityOutOfRange, workerID)
	}

	return &Generator{
		datacenterID:  datacenterID,
		workerID:      workerID,
		lastTimestamp: -1,
		now:           nowMillis,
	}, nil
}

// Next issues the next identifier. Safe for concurrent use; the whole
// read-compare-increment sequence runs under one critical section so no two
// callers ever observe the same (timestamp, sequence) pair.
func (g *Generator) Next() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now()
	if ts < g.lastTimestamp {
		return 0, fmt.Errorf("%w: last=%d now=%d", ErrClockRegression, g.lastTimestamp, ts)
	}

	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			ts = g.waitNextMillis(ts)
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = ts

	id := uint64(ts-epoch)<<timestampShift |
		g.datacenterID<<datacenterShift |
		g.workerID<<workerShift |
		g.sequence
	return id, nil
}

// waitNextMillis spins until the clock leaves the exhausted millisecond.
func (g *Generator) waitNextMillis(last int64) int64 {
	ts := g.now()
	for ts <= last {
		ts = g.now()
	}
	return ts
}

// Timestamp extracts the embedded time of an issued id.
func Timestamp(id uint64) time.Time {
	ms := int64(id>>timestampShift) + epoch
	return time.UnixMilli(ms)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
