// Package dict implements the data-dictionary oracle §1 assumes as a
// collaborator ("index-id -> schema"): a column-type taxonomy
// pkg/row's record codec encodes against, and an Oracle interface
// mapping an index-id to its schema plus the physical location
// pkg/btree.Tree.Open needs to reattach to it after restart.
//
// Grounded on the teacher's server/innodb/schemas package (column-type
// constants, table/index metadata structs) for the taxonomy shape, and
// on other_examples' cuemby/warren for treating a local embedded KV
// store as a disposable catalog backing store rather than building a
// real system tablespace.
package dict

// ColumnType enumerates the column encodings pkg/row's record codec
// understands.
type ColumnType uint8

const (
	TypeInt64 ColumnType = iota
	TypeVarChar
	TypeDecimal
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt64:
		return "INT64"
	case TypeVarChar:
		return "VARCHAR"
	case TypeDecimal:
		return "DECIMAL"
	default:
		return "UNKNOWN"
	}
}

// ColumnDef describes one column of a row.
type ColumnDef struct {
	Name   string
	Type   ColumnType
	MaxLen int // VarChar byte cap; ignored for other types
}

// Schema describes one table's row shape, including which column is
// its primary key (the clustered index's key column).
type Schema struct {
	TableName  string
	Columns    []ColumnDef
	PrimaryKey int // index into Columns
}

// PKColumn returns the primary key column definition.
func (s Schema) PKColumn() ColumnDef { return s.Columns[s.PrimaryKey] }
