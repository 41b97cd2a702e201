package dict

import (
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
	"go.etcd.io/bbolt"
)

var indexBucket = []byte("indexes")

// BoltOracle is the bbolt-backed default Oracle: a local embedding
// target needs a real catalog store before pkg/engine.Open can persist
// anything across a restart, and bbolt is itself a persisted B+ tree --
// a natural stand-in for "assume an oracle exists" without building a
// full system-tablespace data dictionary.
type BoltOracle struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if absent) a bbolt-backed oracle at path.
func OpenBolt(path string) (*BoltOracle, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "dict: open %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Annotate(err, "dict: create bucket")
	}
	return &BoltOracle{db: db}, nil
}

func boltKey(indexID uint64) []byte {
	return []byte(fmt.Sprintf("%020d", indexID))
}

func (o *BoltOracle) Put(meta IndexMeta) error {
	buf, err := json.Marshal(meta)
	if err != nil {
		return errors.Annotate(err, "dict: marshal index meta")
	}
	return o.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(indexBucket).Put(boltKey(meta.IndexID), buf)
	})
}

func (o *BoltOracle) Get(indexID uint64) (IndexMeta, bool, error) {
	var meta IndexMeta
	var found bool
	err := o.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(indexBucket).Get(boltKey(indexID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &meta)
	})
	if err != nil {
		return IndexMeta{}, false, errors.Annotate(err, "dict: get index meta")
	}
	return meta, found, nil
}

func (o *BoltOracle) Delete(indexID uint64) error {
	return o.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(indexBucket).Delete(boltKey(indexID))
	})
}

func (o *BoltOracle) All() ([]IndexMeta, error) {
	var out []IndexMeta
	err := o.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(indexBucket).ForEach(func(k, v []byte) error {
			var meta IndexMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			out = append(out, meta)
			return nil
		})
	})
	return out, errors.Annotate(err, "dict: list index meta")
}

func (o *BoltOracle) Close() error { return o.db.Close() }
