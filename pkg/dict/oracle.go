package dict

// IndexMeta is everything pkg/engine needs to reopen one persisted B+
// tree index without re-deriving it: its physical placement plus the
// schema that interprets its leaf records.
type IndexMeta struct {
	IndexID      uint64
	SpaceID      uint32
	RootPageNo   uint32
	LeafSegID    uint64
	NonLeafSegID uint64
	// OverflowSegID is the segment pkg/row spills tuples larger than
	// its inline threshold into, distinct from LeafSegID (the
	// clustered index's own leaf segment) since the two grow from
	// independent allocation patterns.
	OverflowSegID uint64
	Schema        Schema
}

// Oracle is the data-dictionary collaborator §1 assumes: "index-id ->
// schema" plus enough physical placement to reattach pkg/btree.Tree to
// an existing index after restart.
type Oracle interface {
	Put(meta IndexMeta) error
	Get(indexID uint64) (IndexMeta, bool, error)
	Delete(indexID uint64) error
	All() ([]IndexMeta, error)
	Close() error
}
