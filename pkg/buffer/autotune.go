package buffer

import (
	"sync/atomic"
	"time"

	"github.com/xmysql-server/innodb-core/internal/xlog"
)

// Tuner periodically widens or narrows the background flusher's batch
// size as the pool's dirty ratio drifts from a target band, the
// auto-tuning complement to a fixed FlushBatch(n) call that spec.md's
// §4.1 "flush respecting WAL" leaves as a caller-chosen constant.
type Tuner struct {
	pool   *Pool
	lowWM  float64
	highWM float64
	batch  int32

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewTuner builds a tuner over pool targeting a dirty ratio between
// lowWatermark and highWatermark, starting from a conservative batch
// size of 8 pages per flush round.
func NewTuner(pool *Pool, lowWatermark, highWatermark float64) *Tuner {
	return &Tuner{
		pool: pool, lowWM: lowWatermark, highWM: highWatermark,
		batch: 8, stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

// BatchSize reports the flush batch size the tuner currently
// recommends. Nothing in this module reads it: FlushBatch takes its
// batch size from its own caller.
func (t *Tuner) BatchSize() int { return int(atomic.LoadInt32(&t.batch)) }

// Run adjusts the batch size every interval until Stop is called. Meant
// to be started in its own goroutine, matching the teacher's own
// pattern for long-lived background workers.
func (t *Tuner) Run(interval time.Duration) {
	defer close(t.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.adjust()
		}
	}
}

func (t *Tuner) adjust() {
	ratio := t.pool.Stats().DirtyRatio()
	cur := atomic.LoadInt32(&t.batch)
	switch {
	case ratio > t.highWM && cur < 256:
		next := cur * 2
		atomic.StoreInt32(&t.batch, next)
		xlog.Logger.Debugf("buffer: dirty ratio %.2f above high watermark %.2f, widening flush batch to %d", ratio, t.highWM, next)
	case ratio < t.lowWM && cur > 1:
		next := cur / 2
		if next < 1 {
			next = 1
		}
		atomic.StoreInt32(&t.batch, next)
		xlog.Logger.Debugf("buffer: dirty ratio %.2f below low watermark %.2f, narrowing flush batch to %d", ratio, t.lowWM, next)
	}
}

// Stop signals Run to exit and waits for it to return.
func (t *Tuner) Stop() {
	close(t.stopCh)
	<-t.doneCh
}
