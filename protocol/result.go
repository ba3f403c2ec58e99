package protocol

// FieldDescription describes one result column, decoded from a
// RowDescription ('T') frame per SPEC_FULL.md §4.5.
type FieldDescription struct {
	Name         string
	TableOID     uint32
	ColumnNumber int16
	TypeOID      uint32
	TypeSize     int16
	TypeMod      int32
	Format       int16
}

// Result is one statement's worth of output within a (possibly multi-
// statement, via the simple query protocol) ResultSet: either a row-bearing
// SELECT-shaped result or a bare command tag.
type Result struct {
	Fields []FieldDescription
	Rows   [][]interface{}
	Tag    string
}

// ResultSet accumulates every Result produced between two ReadyForQuery
// frames, per SPEC_FULL.md §4.5 'Z'.
type ResultSet struct {
	Results []Result
}
