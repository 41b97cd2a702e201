package row

import (
	"encoding/binary"

	"github.com/golang/snappy"
	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/pkg/fsp"
	"github.com/xmysql-server/innodb-core/pkg/latch"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/page"
)

// inlineThreshold is the largest encoded tuple pkg/row stores directly
// in a clustered-index record; anything larger moves off-page into a
// snappy-compressed page.TypeBlobOverflow chain, the on/off-page split
// InnoDB uses for long VARCHAR/TEXT/BLOB columns.
const inlineThreshold = 4000

const overflowHeaderLen = 8 // next page-no (4 bytes) + chunk length (4 bytes)
const overflowChunkLen = page.Size - page.HeaderSize - page.TrailerSize - overflowHeaderLen

// overflowDescLen is the inline descriptor's size: uncompressed length
// (4 bytes) + first overflow page-no (4 bytes).
const overflowDescLen = 8

// allocOverflowPage hands seg a fresh page and stamps it directly to
// the tablespace file, the same bypass-the-redo-path trick
// pkg/btree.Tree.allocRawPage uses: the page has no prior content to
// recover, and buffer.Pool.Get refuses to load a page that doesn't yet
// pass Page.Verify.
func allocOverflowPage(space *fsp.Space, seg *fsp.Segment, spaceID uint32) (uint32, error) {
	pageNo, err := space.AllocatePageForSegment(seg)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, page.Size)
	p := page.New(buf)
	p.Init(spaceID, pageNo, page.TypeBlobOverflow)
	p.Stamp()
	if err := space.WritePage(pageNo, buf); err != nil {
		return 0, err
	}
	return pageNo, nil
}

// writeOverflow snappy-compresses raw and chains it across freshly
// allocated BLOB_OVERFLOW pages, returning the small inline descriptor
// to store in the clustered-index record in raw's place.
func writeOverflow(m *mtr.Mtr, space *fsp.Space, seg *fsp.Segment, spaceID uint32, raw []byte) ([]byte, error) {
	compressed := snappy.Encode(nil, raw)

	var chunks [][]byte
	for len(compressed) > 0 {
		n := overflowChunkLen
		if n > len(compressed) {
			n = len(compressed)
		}
		chunks = append(chunks, compressed[:n])
		compressed = compressed[n:]
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}

	pageNos := make([]uint32, len(chunks))
	for i := range chunks {
		pageNo, err := allocOverflowPage(space, seg, spaceID)
		if err != nil {
			return nil, errors.Annotate(err, "row: allocate overflow page")
		}
		pageNos[i] = pageNo
	}

	for i, chunk := range chunks {
		f, err := m.GetPage(page.ID{Space: spaceID, PageNo: pageNos[i]}, latch.XLatch)
		if err != nil {
			return nil, errors.Annotate(err, "row: get overflow page")
		}
		next := page.NilPageNo
		if i+1 < len(pageNos) {
			next = pageNos[i+1]
		}
		body := make([]byte, page.Size-page.HeaderSize-page.TrailerSize)
		binary.BigEndian.PutUint32(body[0:], next)
		binary.BigEndian.PutUint32(body[4:], uint32(len(chunk)))
		copy(body[overflowHeaderLen:], chunk)
		m.WriteBytes(f, 0, body)
	}

	desc := make([]byte, overflowDescLen)
	binary.BigEndian.PutUint32(desc[0:], uint32(len(raw)))
	binary.BigEndian.PutUint32(desc[4:], pageNos[0])
	return desc, nil
}

// readOverflow reverses writeOverflow, reading and decompressing the
// BLOB_OVERFLOW chain desc addresses.
func readOverflow(m *mtr.Mtr, spaceID uint32, desc []byte) ([]byte, error) {
	if len(desc) != overflowDescLen {
		return nil, errors.New("row: malformed overflow descriptor")
	}
	wantLen := binary.BigEndian.Uint32(desc[0:])
	pageNo := binary.BigEndian.Uint32(desc[4:])

	var compressed []byte
	for pageNo != page.NilPageNo {
		f, err := m.GetPage(page.ID{Space: spaceID, PageNo: pageNo}, latch.SLatch)
		if err != nil {
			return nil, errors.Annotate(err, "row: get overflow page")
		}
		body := f.Page.Body()
		next := binary.BigEndian.Uint32(body[0:])
		n := binary.BigEndian.Uint32(body[4:])
		compressed = append(compressed, body[overflowHeaderLen:overflowHeaderLen+int(n)]...)
		pageNo = next
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Annotate(err, "row: snappy decode overflow chain")
	}
	if uint32(len(raw)) != wantLen {
		return nil, errors.New("row: overflow chain length mismatch")
	}
	return raw, nil
}
