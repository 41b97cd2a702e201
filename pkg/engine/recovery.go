package engine

import (
	"github.com/juju/errors"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/fsp"
	"github.com/xmysql-server/innodb-core/pkg/mtr"
	"github.com/xmysql-server/innodb-core/pkg/page"
	"github.com/xmysql-server/innodb-core/pkg/wal"
)

// spacePageSource adapts this engine's already-open tablespaces to
// wal.PageSource, the collaborator wal.Recover reads/writes pages
// through directly, bypassing the buffer pool entirely since the pool
// doesn't exist yet at the point recovery runs during Open.
type spacePageSource struct {
	spaces map[uint32]*fsp.Space
}

func (s spacePageSource) ReadPage(spaceID, pageNo uint32) ([]byte, error) {
	sp, ok := s.spaces[spaceID]
	if !ok {
		return nil, errors.Annotatef(enginerr.ErrSpaceMissing, "recovery: space %d", spaceID)
	}
	return sp.ReadPage(pageNo)
}

func (s spacePageSource) WritePage(spaceID, pageNo uint32, buf []byte) error {
	sp, ok := s.spaces[spaceID]
	if !ok {
		return errors.Annotatef(enginerr.ErrSpaceMissing, "recovery: space %d", spaceID)
	}
	return sp.WritePage(pageNo, buf)
}

// redo implements wal.Redoer, reversing the two record encodings
// pkg/mtr actually ever produces: a raw byte-range write (every
// pkg/btree/pkg/row structural mutation rebuilds its whole page body
// and logs it in one WriteBytes call) and a sibling-pointer relink
// (pkg/btree's splitPage threading prev/next across the leaf chain).
// RecInsert/RecDelete are never emitted by anything upstream -- both
// packages only ever use the whole-page rebuild path -- so they fall
// through as no-ops rather than needing their own decode logic.
func redo(rec *wal.Record, pageBuf []byte) error {
	switch rec.Type {
	case wal.RecUpdate:
		bodyOffset, payload := mtr.DecodeBytesWrite(rec.Data)
		p := page.New(pageBuf)
		p.WriteBytes(bodyOffset, payload)
		return nil
	case wal.RecPageLink:
		prevPage, nextPage := mtr.DecodeSiblings(rec.Data)
		p := page.New(pageBuf)
		p.SetPrevPage(prevPage)
		p.SetNextPage(nextPage)
		return nil
	default:
		return nil
	}
}
