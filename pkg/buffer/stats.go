package buffer

import "sync/atomic"

// Stats is a point-in-time snapshot of pool activity, generalizing the
// teacher's ad hoc hit/miss counters into one typed accessor consumers
// (an admin endpoint, a test assertion, the Tuner below) can read
// without reaching into Pool's internals.
type Stats struct {
	Hits, Misses  uint64
	Reads, Writes uint64
	DirtyPages    int
	TotalFrames   int
}

// HitRatio returns the fraction of Get calls satisfied without a disk
// read, or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// DirtyRatio returns the fraction of the pool's frames currently dirty.
func (s Stats) DirtyRatio() float64 {
	if s.TotalFrames == 0 {
		return 0
	}
	return float64(s.DirtyPages) / float64(s.TotalFrames)
}

// Stats snapshots the pool's counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Hits:        atomic.LoadUint64(&p.hitCount),
		Misses:      atomic.LoadUint64(&p.missCount),
		Reads:       atomic.LoadUint64(&p.readCount),
		Writes:      atomic.LoadUint64(&p.writeCount),
		DirtyPages:  p.DirtyPageCount(),
		TotalFrames: p.cfg.TotalFrames,
	}
}
