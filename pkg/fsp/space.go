package fsp

import (
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/internal/xlog"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

// Space is one tablespace: "an ordered list of files sharing a space-id,
// virtually appended" (§3). The open question on per-table vs. system
// tablespace handling (§9) is resolved here: a Space that cannot be
// opened at startup is marked Tombstoned and every subsequent access to
// it fails with enginerr.ErrSpaceMissing rather than attempting repair.
type Space struct {
	mu sync.Mutex

	ID   uint32
	UUID uuid.UUID // random per Create; not persisted, zero after Open
	Path string

	file *os.File

	SizePages  uint32 // pages currently backed by the file
	FreeLimit  uint32 // pages below this are tracked by extent descriptors
	Tombstoned bool

	segments  map[uint64]*Segment
	nextSegID uint64

	// xdes holds every extent descriptor for this space, keyed by the
	// first page-no of the extent it describes.
	xdes map[uint32]*XDES
}

// Create makes a new tablespace file on disk holding only the
// space-header page (page 0), per §6. Extent descriptors are kept in
// memory (xdes) and are not written to disk.
func Create(path string, spaceID uint32) (*Space, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o644)
	if err != nil {
		return nil, errors.Annotatef(err, "create tablespace %s", path)
	}
	sp := &Space{
		ID: spaceID, UUID: uuid.New(), Path: path, file: f,
		segments: make(map[uint64]*Segment),
		xdes:     make(map[uint32]*XDES),
	}
	if err := sp.extendFile(1); err != nil {
		f.Close()
		return nil, err
	}
	hdrBuf := make([]byte, page.Size)
	hdr := page.New(hdrBuf)
	hdr.Init(spaceID, 0, page.TypeSpaceHeader)
	if err := sp.writeRaw(0, hdrBuf); err != nil {
		f.Close()
		return nil, err
	}
	sp.SizePages = 1
	xlog.Logger.Infof("fsp: created tablespace space=%d path=%s", spaceID, path)
	return sp, nil
}

// Open opens an existing tablespace file. If the file is missing, the
// Space is returned Tombstoned=true rather than as an error, per the §9
// decision: callers must check Tombstoned before using it.
func Open(path string, spaceID uint32) (*Space, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			xlog.Logger.Warnf("fsp: tablespace file missing, tombstoning space=%d path=%s", spaceID, path)
			return &Space{ID: spaceID, Path: path, Tombstoned: true}, nil
		}
		return nil, errors.Annotatef(err, "open tablespace %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Trace(err)
	}
	sp := &Space{
		ID: spaceID, Path: path, file: f,
		SizePages: uint32(fi.Size() / page.Size),
		segments:  make(map[uint64]*Segment),
		xdes:      make(map[uint32]*XDES),
	}
	return sp, nil
}

func (s *Space) guard() error {
	if s.Tombstoned {
		return enginerr.ErrSpaceMissing
	}
	return nil
}

// ReadPage reads one page's raw bytes from disk (pread semantics).
func (s *Space) ReadPage(pageNo uint32) ([]byte, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	buf := make([]byte, page.Size)
	n, err := s.file.ReadAt(buf, int64(pageNo)*page.Size)
	if err != nil || n != page.Size {
		return nil, errors.Annotatef(enginerr.ErrIOError, "read page %d: %v", pageNo, err)
	}
	return buf, nil
}

// WritePage writes one page's raw bytes to disk (pwrite semantics). It
// does not fsync; callers coordinate durability through pkg/wal.
func (s *Space) WritePage(pageNo uint32, buf []byte) error {
	if err := s.guard(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRaw(pageNo, buf)
}

func (s *Space) writeRaw(pageNo uint32, buf []byte) error {
	n, err := s.file.WriteAt(buf, int64(pageNo)*page.Size)
	if err != nil || n != page.Size {
		return errors.Annotatef(enginerr.ErrIOError, "write page %d: %v", pageNo, err)
	}
	return nil
}

// Sync fsyncs the tablespace file.
func (s *Space) Sync() error {
	if err := s.guard(); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return errors.Annotatef(enginerr.ErrIOError, "fsync space %d: %v", s.ID, err)
	}
	return nil
}

func (s *Space) Close() error {
	if s.Tombstoned {
		return nil
	}
	return s.file.Close()
}

func (s *Space) extendFile(nPages uint32) error {
	newSize := int64(s.SizePages+nPages) * page.Size
	return s.file.Truncate(newSize)
}

// AllocateExtent grows the file by one extent and returns a fresh,
// entirely-free XDES for it, the low-level primitive segment allocation
// builds on (§4 "file-space manager ... tracks which pages are
// free/allocated via extent descriptors").
func (s *Space) AllocateExtent() (*XDES, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.SizePages
	if err := s.extendFile(PagesPerExtent); err != nil {
		return nil, errors.Annotatef(enginerr.ErrOutOfFileSpace, "extend space %d: %v", s.ID, err)
	}
	s.SizePages += PagesPerExtent

	x := NewXDES(first)
	for i := 0; i < PagesPerExtent; i++ {
		x.SetPageFree(i, true)
	}
	s.xdes[first] = x
	return x, nil
}

// AllocatePage extends the space by a single page, outside of any
// extent, used for fragment-page allocation (§3: "up to 32 individually
// allocated fragment pages").
func (s *Space) AllocatePage() (uint32, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pageNo := s.SizePages
	if err := s.extendFile(1); err != nil {
		return 0, errors.Annotatef(enginerr.ErrOutOfFileSpace, "extend space %d: %v", s.ID, err)
	}
	s.SizePages++
	return pageNo, nil
}

// CreateSegment allocates a new segment inode and registers it, used by
// pkg/btree when a tree's root page is first created (two segments per
// tree: leaf and non-leaf, §3).
func (s *Space) CreateSegment(typ SegType) (*Segment, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	inodePage, err := s.allocateInodePageLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextSegID++
	id := s.nextSegID
	s.mu.Unlock()

	seg := NewSegment(id, typ, s.ID, inodePage, 0)
	s.mu.Lock()
	s.segments[id] = seg
	s.mu.Unlock()
	return seg, nil
}

func (s *Space) allocateInodePageLocked() (uint32, error) {
	pageNo := s.SizePages
	if err := s.extendFile(1); err != nil {
		return 0, errors.Annotatef(enginerr.ErrOutOfFileSpace, "allocate inode page: %v", err)
	}
	s.SizePages++
	return pageNo, nil
}

// AllocatePageForSegment hands the segment one more page, preferring its
// fragment-page budget before reaching for a whole extent, per §3.
func (s *Space) AllocatePageForSegment(seg *Segment) (uint32, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	if pageNo, ok := seg.AllocateFragPage(func() uint32 {
		pn, _ := s.AllocatePage()
		return pn
	}); ok {
		return pageNo, nil
	}
	if pageNo, ok := seg.AllocateFromExtents(); ok {
		return pageNo, nil
	}
	x, err := s.AllocateExtent()
	if err != nil {
		return 0, err
	}
	x.SegmentID = seg.ID
	x.State = StateFSEG
	seg.Free = append(seg.Free, x)
	pageNo, ok := seg.AllocateFromExtents()
	if !ok {
		return 0, errors.Annotate(enginerr.ErrOutOfFileSpace, "allocate page for segment after new extent")
	}
	return pageNo, nil
}

// FreePage returns a page to its owning segment.
func (s *Space) FreePage(seg *Segment, pageNo uint32) {
	seg.FreePage(pageNo)
}

func (s *Space) Segment(id uint64) (*Segment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	return seg, ok
}
