package engine

import (
	"sync"

	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/row"
	"github.com/xmysql-server/innodb-core/pkg/txn"
)

func errNoTableForSpace(spaceID uint32) error {
	return errors.Annotatef(enginerr.ErrSpaceMissing, "engine: no table registered for space %d", spaceID)
}

// tableRouter implements txn.RollbackApplier and txn.PhysicalPurger by
// dispatching an undo entry or a purge request to the pkg/row.Table
// that owns the tablespace it names. pkg/txn.Manager keeps one undo
// chain per transaction regardless of how many tables that transaction
// touched, so the applier it calls back into has to be able to route
// across every table the engine has opened, not just one.
type tableRouter struct {
	mu     sync.RWMutex
	tables map[uint32]*row.Table // keyed by space-id
}

func newTableRouter() *tableRouter {
	return &tableRouter{tables: make(map[uint32]*row.Table)}
}

func (r *tableRouter) register(spaceID uint32, tbl *row.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[spaceID] = tbl
}

func (r *tableRouter) lookup(spaceID uint32) (*row.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tbl, ok := r.tables[spaceID]
	return tbl, ok
}

// ApplyUndo implements txn.RollbackApplier.
func (r *tableRouter) ApplyUndo(m *mtr.Mtr, e txn.UndoEntry) error {
	tbl, ok := r.lookup(e.SpaceID)
	if !ok {
		return errNoTableForSpace(e.SpaceID)
	}
	return tbl.ApplyUndo(m, e)
}

// PurgeDeleted implements txn.PhysicalPurger.
func (r *tableRouter) PurgeDeleted(spaceID, pageNo uint32, heapNo uint16) error {
	tbl, ok := r.lookup(spaceID)
	if !ok {
		return errNoTableForSpace(spaceID)
	}
	return tbl.PurgeDeleted(spaceID, pageNo, heapNo)
}
