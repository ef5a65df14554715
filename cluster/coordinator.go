package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

const (
	opAllReduce = "allreduce"
	opReduce    = "reduce"
	opBarrier   = "barrier"
	opFinalize  = "finalize"
)

type message struct {
	Round  uint64    `json:"round"`
	Op     string    `json:"op"`
	Rank   int       `json:"rank"`
	Values []float64 `json:"values,omitempty"`
	Fault  *Fault    `json:"fault,omitempty"`
}

type reply struct {
	Values []float64 `json:"values,omitempty"`
	Fault  *Fault    `json:"fault,omitempty"`
}

type round struct {
	op         string
	values     [][]float64
	faults     []*Fault
	arrived    []bool
	numArrived int
	read       []bool

	finished bool
	done     chan struct{}
	result   reply
}

func newRound(op string, size int) *round {
	return &round{
		op:      op,
		values:  make([][]float64, size),
		faults:  make([]*Fault, size),
		arrived: make([]bool, size),
		read:    make([]bool, size),
		done:    make(chan struct{}),
	}
}

// combine sums the contributions in ascending rank order.
func (r *round) combine() reply {
	for _, f := range r.faults {
		if f != nil {
			return reply{Fault: f}
		}
	}
	n := len(r.values[0])
	sum := make([]float64, n)
	for rank, v := range r.values {
		if len(v) != n {
			return reply{Fault: lifecycleFault(rank, "%d values, rank 0 sent %d", len(v), n)}
		}
		for i, x := range v {
			sum[i] += x
		}
	}
	return reply{Values: sum}
}

// coordinator matches the messages of all ranks round by round.
type coordinator struct {
	size int

	mu          sync.Mutex
	rounds      map[uint64]*round
	// latest is the highest round each rank has submitted.
	latest      []uint64
	detached    []bool
	numDetached int
	allDetached chan struct{}
}

func newCoordinator(size int) *coordinator {
	return &coordinator{
		size:        size,
		rounds:      make(map[uint64]*round),
		latest:      make([]uint64, size),
		detached:    make([]bool, size),
		allDetached: make(chan struct{}),
	}
}

// submit blocks until every rank has joined the round of m, or the round is aborted.
func (c *coordinator) submit(ctx context.Context, m *message) *reply {
	if m.Op == opFinalize {
		c.detach(m.Rank)
		return &reply{}
	}

	c.mu.Lock()
	r := c.join(m)
	c.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		kind := KindTimeout
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindCanceled
		}
		c.mu.Lock()
		c.abort(r, &Fault{Rank: m.Rank, Kind: kind, Msg: fmt.Sprintf("round %d %s: %v", m.Round, m.Op, ctx.Err())})
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rep := r.result
	if rep.Fault == nil && m.Op == opReduce && m.Rank != 0 {
		rep.Values = nil
	}
	if m.Rank >= 0 && m.Rank < c.size {
		r.read[m.Rank] = true
	}
	c.collect(m.Round, r)
	return &rep
}

func (c *coordinator) join(m *message) *round {
	if m.Rank < 0 || m.Rank >= c.size {
		r := newRound(m.Op, c.size)
		c.abort(r, lifecycleFault(m.Rank, "outside worker set of size %d", c.size))
		return r
	}

	c.latest[m.Rank] = max(c.latest[m.Rank], m.Round)
	defer c.sweep()

	r, ok := c.rounds[m.Round]
	if !ok {
		r = newRound(m.Op, c.size)
		c.rounds[m.Round] = r
	}
	switch {
	case r.finished:
	case c.detached[m.Rank]:
		c.abort(r, lifecycleFault(m.Rank, "round %d after finalize", m.Round))
	case r.op != m.Op:
		c.abort(r, lifecycleFault(m.Rank, "round %d called %s, peers called %s", m.Round, m.Op, r.op))
	case r.arrived[m.Rank]:
		c.abort(r, lifecycleFault(m.Rank, "joined round %d twice", m.Round))
	default:
		r.arrived[m.Rank] = true
		r.values[m.Rank] = m.Values
		r.faults[m.Rank] = m.Fault
		r.numArrived++
		if r.numArrived == c.size {
			c.finish(r, r.combine())
			break
		}
		for rank, gone := range c.detached {
			if gone && !r.arrived[rank] {
				c.abort(r, lifecycleFault(rank, "finalized before round %d", m.Round))
				break
			}
		}
	}
	return r
}

func (c *coordinator) finish(r *round, rep reply) {
	r.result = rep
	r.finished = true
	close(r.done)
}

func (c *coordinator) abort(r *round, f *Fault) {
	if r.finished {
		return
	}
	c.finish(r, reply{Fault: f})
}

// detach marks rank as finalized and aborts the open rounds it will never join.
func (c *coordinator) detach(rank int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rank < 0 || rank >= c.size || c.detached[rank] {
		return
	}
	c.detached[rank] = true
	c.numDetached++
	for id, r := range c.rounds {
		if !r.arrived[rank] {
			c.abort(r, lifecycleFault(rank, "finalized before round %d", id))
		}
	}
	if c.numDetached == c.size {
		close(c.allDetached)
	}
	c.sweep()
}

// sweep aborts the open rounds that a live rank has moved past, and collects the finished ones.
func (c *coordinator) sweep() {
	for id, r := range c.rounds {
		for rank := range c.size {
			if !r.arrived[rank] && !c.detached[rank] && c.latest[rank] > id {
				c.abort(r, lifecycleFault(rank, "skipped round %d", id))
				break
			}
		}
		c.collect(id, r)
	}
}

// collect deletes round id once no rank can read it anymore.
// A rank can read a finished round until it has read it, finalized, or submitted a later round.
func (c *coordinator) collect(id uint64, r *round) {
	if !r.finished || c.rounds[id] != r {
		return
	}
	for rank := range c.size {
		if !r.read[rank] && !c.detached[rank] && c.latest[rank] <= id {
			return
		}
	}
	delete(c.rounds, id)
}
