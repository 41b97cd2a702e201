// Package wal implements the write-ahead log manager and crash recovery
// of §4.3: an append-only, LSN-addressed redo stream, group commit via a
// log buffer, checkpointing, and the analysis and redo recovery passes.
// There is no undo pass: transactions with no commit or rollback record
// are reported in Result.ActiveTrx and are not rolled back.
//
// Grounded on the teacher's server/innodb/manager/redo_log_manager.go
// and log_types.go (RedoLogEntry, LSN assignment under a single mutex,
// buffer-then-flush, background ticker flush, binary.Write/Read framing),
// generalized from a demo log into a single-file (redo.log), checksum-
// framed log that pkg/buffer's flush path and pkg/mtr's commit path both
// drive.
package wal

import (
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
)

// RecType tags a log record's payload, the operation-type byte of the
// teacher's RedoLogEntry.Type generalized to the engine's redo/undo/
// transaction-boundary/checkpoint records (§4.3 "Record types").
type RecType uint8

const (
	RecInsert RecType = iota + 1
	RecUpdate
	RecDelete
	RecCompensate // CLR: compensation log record written during rollback/undo
	RecTrxBegin
	RecTrxCommit
	RecTrxRollback
	RecCheckpoint
	RecMTRCommit // marks the end of one mini-transaction's redo records
	RecPageLink  // updates a page's prev/next sibling pointers (§4.4 split/merge)
)

func (t RecType) String() string {
	switch t {
	case RecInsert:
		return "INSERT"
	case RecUpdate:
		return "UPDATE"
	case RecDelete:
		return "DELETE"
	case RecCompensate:
		return "COMPENSATE"
	case RecTrxBegin:
		return "TRX_BEGIN"
	case RecTrxCommit:
		return "TRX_COMMIT"
	case RecTrxRollback:
		return "TRX_ROLLBACK"
	case RecCheckpoint:
		return "CHECKPOINT"
	case RecMTRCommit:
		return "MTR_COMMIT"
	case RecPageLink:
		return "PAGE_LINK"
	default:
		return "UNKNOWN"
	}
}

// Record is one WAL entry: an LSN-addressed, idempotently-replayable
// change, modeled directly on RedoLogEntry but widened with a SpaceID
// (RedoLogEntry.PageID alone can't address multiple tablespaces) and a
// PrevLSN back-pointer field. PrevLSN is encoded and decoded, but pkg/mtr
// leaves it 0 and Recover does not read it.
type Record struct {
	LSN     uint64
	TrxID   uint64
	SpaceID uint32
	PageNo  uint32
	Type    RecType
	PrevLSN uint64 // previous record written by the same transaction, 0 if none
	Data    []byte
}

// headerSize is the fixed portion of an encoded record, everything
// before the variable-length Data.
const headerSize = 8 + 8 + 4 + 4 + 1 + 8 + 4 // LSN,TrxID,SpaceID,PageNo,Type,PrevLSN,len(Data)

// Encode serializes r to its on-disk form: fixed header, data, then a
// trailing xxHash32 checksum over everything before it, so a torn write
// mid-record is detectable during the analysis pass without relying on
// the page-level checksum (§4.3 "Durability").
func (r *Record) Encode() []byte {
	buf := make([]byte, headerSize+len(r.Data)+4)
	o := 0
	binary.BigEndian.PutUint64(buf[o:], r.LSN)
	o += 8
	binary.BigEndian.PutUint64(buf[o:], r.TrxID)
	o += 8
	binary.BigEndian.PutUint32(buf[o:], r.SpaceID)
	o += 4
	binary.BigEndian.PutUint32(buf[o:], r.PageNo)
	o += 4
	buf[o] = byte(r.Type)
	o++
	binary.BigEndian.PutUint64(buf[o:], r.PrevLSN)
	o += 8
	binary.BigEndian.PutUint32(buf[o:], uint32(len(r.Data)))
	o += 4
	copy(buf[o:], r.Data)
	o += len(r.Data)

	h := xxhash.NewS32(0)
	h.Write(buf[:o])
	binary.BigEndian.PutUint32(buf[o:], h.Sum32())
	return buf
}

// EncodedLen reports the byte length Encode would produce for a record
// with the given data length, used to size the log buffer before append.
func EncodedLen(dataLen int) int { return headerSize + dataLen + 4 }

// Decode parses one record starting at buf[0], returning the record and
// the number of bytes consumed. It returns enginerr.ErrLogCorruption if
// the trailing checksum doesn't match, the signal the analysis pass uses
// to treat everything from here to EOF as a torn tail write.
func Decode(buf []byte) (*Record, int, error) {
	if len(buf) < headerSize+4 {
		return nil, 0, enginerr.ErrLogCorruption
	}
	o := 0
	r := &Record{}
	r.LSN = binary.BigEndian.Uint64(buf[o:])
	o += 8
	r.TrxID = binary.BigEndian.Uint64(buf[o:])
	o += 8
	r.SpaceID = binary.BigEndian.Uint32(buf[o:])
	o += 4
	r.PageNo = binary.BigEndian.Uint32(buf[o:])
	o += 4
	r.Type = RecType(buf[o])
	o++
	r.PrevLSN = binary.BigEndian.Uint64(buf[o:])
	o += 8
	dataLen := binary.BigEndian.Uint32(buf[o:])
	o += 4
	if len(buf) < o+int(dataLen)+4 {
		return nil, 0, enginerr.ErrLogCorruption
	}
	r.Data = append([]byte(nil), buf[o:o+int(dataLen)]...)
	o += int(dataLen)

	h := xxhash.NewS32(0)
	h.Write(buf[:o])
	want := h.Sum32()
	got := binary.BigEndian.Uint32(buf[o:])
	o += 4
	if want != got {
		return nil, 0, enginerr.ErrLogCorruption
	}
	return r, o, nil
}
