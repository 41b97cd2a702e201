// Package mtr implements the mini-transaction of §4.2: a short-lived,
// single-thread object bracketing a set of page modifications that must
// become durable all-or-nothing. It is the path through which pkg/btree
// and pkg/row mutate pages (pkg/txn keeps undo in memory and writes no
// pages), mirroring how the teacher's buffer_pool/redo_log_manager split
// page mutation from log append but unifying them behind one call
// sequence so callers never write a page without also producing its redo
// record. The exception is a freshly allocated page (pkg/btree's
// allocRawPage, pkg/row's allocOverflowPage), which is stamped and
// written straight to the tablespace file without a redo record.
package mtr

import (
	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/pkg/buffer"
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/page"
	"github.com/xmysql-server/innodb-core/pkg/wal"
)

type heldLatch struct {
	frame *buffer.Frame
	mode  latch.Mode
}

// Mtr is one mini-transaction. Not safe for concurrent use: a single
// goroutine starts it, drives its mutations, and commits or discards it.
type Mtr struct {
	pool *buffer.Pool
	log  *wal.Manager

	trxID uint64

	latches  []heldLatch
	records  []*wal.Record
	modified []*buffer.Frame
	dirtySet map[page.ID]bool

	done bool
}

// Start begins a new mini-transaction against pool, logging through log,
// attributed to trxID (0 for system/background MTRs that don't belong to
// a user transaction, e.g. page allocation).
func Start(pool *buffer.Pool, log *wal.Manager, trxID uint64) *Mtr {
	return &Mtr{pool: pool, log: log, trxID: trxID, dirtySet: make(map[page.ID]bool)}
}

// GetPage fetches and latches a page, per §4.2 "get_page(space,pg,mode)
// -> page; MTR tracks the latch" -- the latch is released only at
// Commit/Discard, in reverse acquisition order.
func (m *Mtr) GetPage(id page.ID, mode latch.Mode) (*buffer.Frame, error) {
	f, err := m.pool.Get(id, mode)
	if err != nil {
		return nil, err
	}
	m.latches = append(m.latches, heldLatch{frame: f, mode: mode})
	return f, nil
}

func (m *Mtr) trackModified(f *buffer.Frame) {
	if !m.dirtySet[f.ID()] {
		m.dirtySet[f.ID()] = true
		m.modified = append(m.modified, f)
	}
}

// WriteUint mutates f's page bytes and appends a physiological redo
// record describing the same mutation, per §4.2's write_ulint/write_bytes.
func (m *Mtr) WriteUint(f *buffer.Frame, bodyOffset, n int, v uint64) {
	f.Page.WriteUint(bodyOffset, n, v)
	m.logRecord(f, wal.RecUpdate, encodeUintWrite(bodyOffset, n, v))
}

// WriteBytes mutates f's page bytes at bodyOffset and logs the write.
func (m *Mtr) WriteBytes(f *buffer.Frame, bodyOffset int, data []byte) {
	f.Page.WriteBytes(bodyOffset, data)
	m.logRecord(f, wal.RecUpdate, encodeBytesWrite(bodyOffset, data))
}

// LogInsert/LogDelete let pkg/btree and pkg/row describe higher-level
// logical mutations (a full record insert/delete) rather than a raw byte
// range, the MLOG_REC_INSERT/MLOG_REC_DELETE distinction of §4.3.
func (m *Mtr) LogInsert(f *buffer.Frame, data []byte) {
	m.logRecord(f, wal.RecInsert, data)
}

func (m *Mtr) LogDelete(f *buffer.Frame, data []byte) {
	m.logRecord(f, wal.RecDelete, data)
}

// SetSiblings mutates f's prev/next page pointers (the FIL header fields
// outside the body proper) and logs the change, used by pkg/btree when a
// split relinks a page's level-wide sibling chain.
func (m *Mtr) SetSiblings(f *buffer.Frame, prevPage, nextPage uint32) {
	f.Page.SetPrevPage(prevPage)
	f.Page.SetNextPage(nextPage)
	m.trackModified(f)
	buf := make([]byte, 8)
	buf[0], buf[1], buf[2], buf[3] = byte(prevPage>>24), byte(prevPage>>16), byte(prevPage>>8), byte(prevPage)
	buf[4], buf[5], buf[6], buf[7] = byte(nextPage>>24), byte(nextPage>>16), byte(nextPage>>8), byte(nextPage)
	m.records = append(m.records, &wal.Record{
		TrxID: m.trxID, SpaceID: f.ID().Space, PageNo: f.ID().PageNo,
		Type: wal.RecPageLink, Data: buf,
	})
}

// DecodeSiblings is the inverse of SetSiblings's encoding, used by
// pkg/engine's recovery redo to reapply a page-link change.
func DecodeSiblings(data []byte) (prevPage, nextPage uint32) {
	prevPage = uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	nextPage = uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7])
	return
}

// LogMarker appends a page-independent log record -- a transaction
// begin/commit/rollback marker or checkpoint -- to this MTR's redo
// group, for callers with no page to latch.
func (m *Mtr) LogMarker(typ wal.RecType, data []byte) {
	m.records = append(m.records, &wal.Record{TrxID: m.trxID, Type: typ, Data: data})
}

func (m *Mtr) logRecord(f *buffer.Frame, typ wal.RecType, data []byte) {
	m.trackModified(f)
	m.records = append(m.records, &wal.Record{
		TrxID: m.trxID, SpaceID: f.ID().Space, PageNo: f.ID().PageNo,
		Type: typ, Data: data,
	})
}

// Commit performs the four steps of §4.2 commit(): append the redo group
// (terminated by an MLOG_MULTI_REC_END-equivalent marker) to the log,
// stamp the resulting end-LSN into every modified page and insert it
// into the flush list, then release every latch in reverse order. It
// returns the (start,end) LSN range the group occupied, or (0,0) if the
// MTR logged no records at all (an MTR holding only a LogMarker record
// still gets a real range).
func (m *Mtr) Commit() (startLSN, endLSN uint64, err error) {
	if m.done {
		return 0, 0, errors.New("mtr: commit called twice")
	}
	m.done = true
	defer m.releaseLatches()

	if len(m.records) == 0 {
		return 0, 0, nil
	}

	for i, rec := range m.records {
		lsn, aerr := m.log.Append(rec)
		if aerr != nil {
			return 0, 0, errors.Annotate(aerr, "mtr: append redo record")
		}
		if i == 0 {
			startLSN = lsn
		}
		endLSN = lsn
	}
	markerLSN, aerr := m.log.Append(&wal.Record{TrxID: m.trxID, Type: wal.RecMTRCommit})
	if aerr != nil {
		return 0, 0, errors.Annotate(aerr, "mtr: append mtr-commit marker")
	}
	endLSN = markerLSN

	for _, f := range m.modified {
		m.pool.MarkDirty(f, startLSN, endLSN)
	}
	return startLSN, endLSN, nil
}

// Discard releases all held latches without logging anything, used when
// an MTR is abandoned before any mutation occurred (e.g. a read-only
// cursor search) or after an error makes the in-progress mutation moot.
func (m *Mtr) Discard() {
	if m.done {
		return
	}
	m.done = true
	m.releaseLatches()
}

func (m *Mtr) releaseLatches() {
	for i := len(m.latches) - 1; i >= 0; i-- {
		h := m.latches[i]
		m.pool.Release(h.frame, h.mode)
	}
	m.latches = nil
}

func encodeUintWrite(bodyOffset, n int, v uint64) []byte {
	buf := make([]byte, 2+1+8)
	buf[0], buf[1] = byte(bodyOffset>>8), byte(bodyOffset)
	buf[2] = byte(n)
	for i := 0; i < 8; i++ {
		buf[3+i] = byte(v >> uint(56-8*i))
	}
	return buf
}

// DecodeUintWrite is the inverse of encodeUintWrite. Nothing in this
// module calls it.
func DecodeUintWrite(data []byte) (bodyOffset, n int, v uint64) {
	bodyOffset = int(data[0])<<8 | int(data[1])
	n = int(data[2])
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(data[3+i])
	}
	return
}

func encodeBytesWrite(bodyOffset int, data []byte) []byte {
	buf := make([]byte, 2+len(data))
	buf[0], buf[1] = byte(bodyOffset>>8), byte(bodyOffset)
	copy(buf[2:], data)
	return buf
}

// DecodeBytesWrite is the inverse of encodeBytesWrite.
func DecodeBytesWrite(data []byte) (bodyOffset int, payload []byte) {
	bodyOffset = int(data[0])<<8 | int(data[1])
	payload = data[2:]
	return
}
