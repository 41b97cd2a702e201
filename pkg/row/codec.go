// Package row implements clustered-index record insert/update/delete/
// read of §4.7, composing pkg/btree for physical storage, pkg/lock for
// record-level concurrency control, and pkg/txn for undo/MVCC.
//
// Grounded on the teacher's server/innodb/schemas column-type taxonomy
// for the encode/decode shape and on storage/store/rows/row_codec.go's
// fixed-width-then-length-prefixed field layout, rewritten big-endian
// (matching pkg/page's own field accessors) rather than the teacher's
// little-endian MySQL-wire convention.
package row

import (
	"encoding/binary"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xmysql-server/innodb-core/internal/enginerr"
	"github.com/xmysql-server/innodb-core/pkg/dict"
)

// signBit flips a signed integer's sign bit so two's-complement values
// still sort correctly under a plain byte-wise Compare, the same trick
// memcmp-encoded keys always need for signed fields.
const signBit = uint64(1) << 63

// EncodeKey produces the memcmp-sortable primary-key bytes for pkValue,
// the only column pkg/btree's Comparator ever looks at.
func EncodeKey(schema dict.Schema, pkValue interface{}) ([]byte, error) {
	col := schema.PKColumn()
	switch col.Type {
	case dict.TypeInt64:
		v, ok := pkValue.(int64)
		if !ok {
			return nil, fmt.Errorf("row: primary key %q wants int64, got %T", col.Name, pkValue)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v)^signBit)
		return buf, nil
	case dict.TypeVarChar:
		s, ok := pkValue.(string)
		if !ok {
			return nil, fmt.Errorf("row: primary key %q wants string, got %T", col.Name, pkValue)
		}
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("row: column type %v is not a valid primary key type", col.Type)
	}
}

// EncodeTuple serializes every column of values, in schema order, into
// one record payload.
func EncodeTuple(schema dict.Schema, values []interface{}) ([]byte, error) {
	if len(values) != len(schema.Columns) {
		return nil, enginerr.ErrSchemaError
	}
	var buf []byte
	for i, col := range schema.Columns {
		enc, err := encodeColumn(col, values[i])
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

func encodeColumn(col dict.ColumnDef, v interface{}) ([]byte, error) {
	switch col.Type {
	case dict.TypeInt64:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("row: column %q wants int64, got %T", col.Name, v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(n))
		return buf, nil
	case dict.TypeVarChar:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("row: column %q wants string, got %T", col.Name, v)
		}
		if col.MaxLen > 0 && len(s) > col.MaxLen {
			return nil, fmt.Errorf("row: column %q value exceeds max length %d", col.Name, col.MaxLen)
		}
		return prefixed([]byte(s)), nil
	case dict.TypeDecimal:
		d, ok := v.(decimal.Decimal)
		if !ok {
			return nil, fmt.Errorf("row: column %q wants decimal.Decimal, got %T", col.Name, v)
		}
		raw, err := d.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return prefixed(raw), nil
	default:
		return nil, fmt.Errorf("row: unknown column type %v", col.Type)
	}
}

func prefixed(b []byte) []byte {
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(b)))
	return append(lenBuf, b...)
}

// DecodeTuple reverses EncodeTuple.
func DecodeTuple(schema dict.Schema, data []byte) ([]interface{}, error) {
	values := make([]interface{}, len(schema.Columns))
	off := 0
	for i, col := range schema.Columns {
		v, n, err := decodeColumn(col, data[off:])
		if err != nil {
			return nil, err
		}
		values[i] = v
		off += n
	}
	return values, nil
}

func decodeColumn(col dict.ColumnDef, data []byte) (interface{}, int, error) {
	switch col.Type {
	case dict.TypeInt64:
		if len(data) < 8 {
			return nil, 0, enginerr.ErrSchemaError
		}
		return int64(binary.BigEndian.Uint64(data)), 8, nil
	case dict.TypeVarChar:
		n, raw, err := unprefixed(data)
		if err != nil {
			return nil, 0, err
		}
		return string(raw), n, nil
	case dict.TypeDecimal:
		n, raw, err := unprefixed(data)
		if err != nil {
			return nil, 0, err
		}
		var d decimal.Decimal
		if err := d.UnmarshalBinary(raw); err != nil {
			return nil, 0, err
		}
		return d, n, nil
	default:
		return nil, 0, fmt.Errorf("row: unknown column type %v", col.Type)
	}
}

func unprefixed(data []byte) (consumed int, payload []byte, err error) {
	if len(data) < 4 {
		return 0, nil, enginerr.ErrSchemaError
	}
	n := int(binary.BigEndian.Uint32(data))
	if n < 0 || len(data) < 4+n {
		return 0, nil, enginerr.ErrSchemaError
	}
	return 4 + n, data[4 : 4+n], nil
}
