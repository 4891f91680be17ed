package reducekey

import "fmt"

// Pool hands out reusable processors. A pool is owned by one index and
// used by one indexing batch at a time, it is not safe for concurrent use.
type Pool struct {
	mode        Mode
	opts        []Option
	free        []*Processor
	outstanding int
	max         int
}

// NewPool creates a pool of processors in the given mode, max limits
// the number of processors in use at the same time (0 is unlimited).
func NewPool(mode Mode, max int, opts ...Option) *Pool {
	return &Pool{
		mode: mode,
		opts: opts,
		max:  max,
	}
}

func (p *Pool) Mode() Mode {
	return p.mode
}

// Get returns a reset processor. Exceeding the limit of the pool is a
// programming error and panics.
func (p *Pool) Get() *Processor {
	if p.max > 0 && p.outstanding >= p.max {
		panic(fmt.Sprintf("reducekey: pool exhausted, %d processors in use", p.outstanding))
	}

	var proc *Processor
	if n := len(p.free); n > 0 {
		proc = p.free[n-1]
		p.free = p.free[:n-1]
		proc.Reset()
	} else {
		proc = NewProcessor(p.mode, p.opts...)
		proc.pool = p
	}
	proc.inUse = true
	p.outstanding++
	return proc
}

// Put returns the processor to the pool, its key must not be used
// afterwards.
func (p *Pool) Put(proc *Processor) {
	if proc == nil {
		return
	}
	if proc.pool != p {
		panic("reducekey: processor returned to a foreign pool")
	}
	if !proc.inUse {
		panic("reducekey: processor returned twice")
	}
	proc.inUse = false
	p.outstanding--
	p.free = append(p.free, proc)
}

// Outstanding returns the number of processors in use.
func (p *Pool) Outstanding() int {
	return p.outstanding
}
