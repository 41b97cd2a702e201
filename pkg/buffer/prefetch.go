package buffer

import (
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

// Prefetcher issues asynchronous reads for pages a sequential scan is
// about to need, so the caller's eventual synchronous Get finds the
// frame already resident instead of paying a disk read on the scan's
// critical path. It is the read-ahead complement to the scan-resistant
// LRU: a linear B+ tree leaf-chain walk is exactly the access pattern
// the old sublist is tuned to survive without being warmed first, so a
// cursor hands its sibling pointers here as it advances.
type Prefetcher struct {
	pool *Pool
}

// NewPrefetcher builds a prefetcher issuing reads against pool.
func NewPrefetcher(pool *Pool) *Prefetcher {
	return &Prefetcher{pool: pool}
}

// Ahead schedules a background warm-up read of each id not already
// resident, then immediately releases it back to the LRU. It never
// blocks the caller and swallows read errors -- a failed or wasted
// prefetch only costs the synchronous Get its ordinary full price.
func (pf *Prefetcher) Ahead(ids ...page.ID) {
	if pf == nil || pf.pool == nil {
		return
	}
	go func() {
		for _, id := range ids {
			if id.PageNo == page.NilPageNo {
				continue
			}
			pf.pool.hashMu.RLock()
			_, resident := pf.pool.hash[id]
			pf.pool.hashMu.RUnlock()
			if resident {
				continue
			}
			f, err := pf.pool.Get(id, latch.SLatch)
			if err != nil {
				continue
			}
			pf.pool.Release(f, latch.SLatch)
		}
	}()
}
