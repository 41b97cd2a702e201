package wal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/internal/xlog"
)

// Config configures a Manager, widening the teacher's LogConfig with the
// flush-to-LSN semantics spec.md §4.3 needs.
type Config struct {
	Dir           string
	BufferRecords int           // buffer entries before an implicit flush
	FlushInterval time.Duration // background ticker flush period
}

func DefaultConfig(dir string) Config {
	return Config{Dir: dir, BufferRecords: 256, FlushInterval: time.Second}
}

// Manager is the log manager of §4.3: single append-only file, LSN
// assignment under one mutex, a bounded in-memory buffer flushed either
// on demand (FlushTo) or on a background ticker, plus checkpoint
// bookkeeping. Grounded on RedoLogManager, generalized to record-level
// checksums and a FlushTo(lsn) that callers (pkg/buffer's flusher,
// pkg/txn's commit path) can wait on for group commit.
type Manager struct {
	mu sync.Mutex

	file *os.File
	dir  string

	nextLSN     uint64
	flushedLSN  uint64
	bufRecords  []*Record
	bufCap      int
	flushPeriod time.Duration

	lastCheckpointLSN uint64
	lastCheckpointAt  time.Time

	closed bool
	stopCh chan struct{}
}

// Open opens (creating if needed) the redo log file under cfg.Dir and
// starts the background flush goroutine, mirroring
// NewRedoLogManager's go manager.backgroundFlush().
func Open(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Annotatef(err, "wal: create log dir %s", cfg.Dir)
	}
	f, err := os.OpenFile(filepath.Join(cfg.Dir, "redo.log"), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Annotatef(err, "wal: open redo.log")
	}
	m := &Manager{
		file:        f,
		dir:         cfg.Dir,
		nextLSN:     1,
		bufCap:      cfg.BufferRecords,
		flushPeriod: cfg.FlushInterval,
		stopCh:      make(chan struct{}),
	}

	if lsn, ok := readCheckpointLSN(cfg.Dir); ok {
		m.lastCheckpointLSN = lsn
	}

	go m.backgroundFlush()
	return m, nil
}

// Append assigns the next LSN to r, buffers it, and flushes synchronously
// once the buffer fills, per the teacher's Append/flushBuffer split.
func (m *Manager) Append(r *Record) (uint64, error) {
	m.mu.Lock()
	r.LSN = m.nextLSN
	m.nextLSN += uint64(EncodedLen(len(r.Data)))
	m.bufRecords = append(m.bufRecords, r)
	full := len(m.bufRecords) >= m.bufCap
	m.mu.Unlock()

	if full {
		if err := m.Flush(); err != nil {
			return 0, err
		}
	}
	return r.LSN, nil
}

// FlushTo blocks until every buffered record up to and including lsn has
// been written and synced, the WAL-before-page-write obligation
// pkg/buffer.Pool.flushOne relies on (it satisfies buffer.LogFlusher).
func (m *Manager) FlushTo(lsn uint64) error {
	m.mu.Lock()
	for m.flushedLSN < lsn && !m.closed {
		if len(m.bufRecords) == 0 || m.bufRecords[0].LSN > lsn {
			// Nothing buffered can advance flushedLSN past lsn; the
			// caller asked to flush a page not yet logged, which would
			// violate WAL if honored blindly, so not waiting is correct
			// as long as flushedLSN already covers it (checked above).
			break
		}
		m.mu.Unlock()
		if err := m.Flush(); err != nil {
			return err
		}
		m.mu.Lock()
	}
	m.mu.Unlock()
	return nil
}

// Flush writes every buffered record to the file and fsyncs it.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Manager) flushLocked() error {
	if len(m.bufRecords) == 0 {
		return nil
	}
	for _, r := range m.bufRecords {
		buf := r.Encode()
		if _, err := m.file.Write(buf); err != nil {
			return errors.Annotatef(enginerr.ErrIOError, "wal: write record: %v", err)
		}
		if r.LSN > m.flushedLSN {
			m.flushedLSN = r.LSN
		}
	}
	m.bufRecords = m.bufRecords[:0]
	if err := m.file.Sync(); err != nil {
		return errors.Annotatef(enginerr.ErrIOError, "wal: fsync: %v", err)
	}
	return nil
}

func (m *Manager) backgroundFlush() {
	t := time.NewTicker(m.flushPeriod)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := m.Flush(); err != nil {
				xlog.Logger.Warnf("wal: background flush failed: %v", err)
			}
		case <-m.stopCh:
			return
		}
	}
}

// FlushedLSN reports the highest LSN durably on disk.
func (m *Manager) FlushedLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushedLSN
}

// NextLSN previews the LSN the next Append would assign.
func (m *Manager) NextLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextLSN
}

// Checkpoint flushes the buffer and persists minFlushLSN (the oldest
// modification LSN still dirty in the buffer pool, per §4.3 "Checkpoint")
// as the point recovery may start its redo pass from.
func (m *Manager) Checkpoint(minFlushLSN uint64) error {
	m.mu.Lock()
	if err := m.flushLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	cpLSN := minFlushLSN
	if cpLSN == 0 || cpLSN > m.flushedLSN {
		cpLSN = m.flushedLSN
	}
	m.lastCheckpointLSN = cpLSN
	m.lastCheckpointAt = time.Now()
	m.mu.Unlock()

	return writeCheckpointLSN(m.dir, cpLSN)
}

func (m *Manager) LastCheckpointLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheckpointLSN
}

// Close flushes remaining records, stops the background goroutine, and
// closes the log file.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	err := m.flushLocked()
	m.mu.Unlock()

	close(m.stopCh)
	if err != nil {
		return err
	}
	return m.file.Close()
}

func checkpointPath(dir string) string { return filepath.Join(dir, "checkpoint") }

func readCheckpointLSN(dir string) (uint64, bool) {
	buf, err := os.ReadFile(checkpointPath(dir))
	if err != nil || len(buf) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(buf), true
}

func writeCheckpointLSN(dir string, lsn uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, lsn)
	tmp := checkpointPath(dir) + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return errors.Annotatef(enginerr.ErrIOError, "wal: write checkpoint: %v", err)
	}
	return os.Rename(tmp, checkpointPath(dir))
}
