package domain

// ColumnType is the declared type of a raw or output column.
type ColumnType string

const (
	ColTypeUntyped ColumnType = ""
	ColTypeString  ColumnType = "str"
	ColTypeInt     ColumnType = "int"
	ColTypeFloat   ColumnType = "float"
	ColTypeBool    ColumnType = "bool"
	ColTypeDate    ColumnType = "date"
	ColTypeDecimal ColumnType = "decimal"
)

// Valid reports whether t is a type the coercion layer understands.
func (t ColumnType) Valid() bool {
	switch t {
	case ColTypeUntyped, ColTypeString, ColTypeInt, ColTypeFloat, ColTypeBool, ColTypeDate, ColTypeDecimal:
		return true
	}
	return false
}

// Column is a named, typed output column.
type Column struct {
	Name string     `json:"name" bson:"name"`
	Type ColumnType `json:"type,omitempty" bson:"type,omitempty"`
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// SameColumns reports whether a and b hold the same columns in the same order.
func SameColumns(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
