package types

// DataType is the logical column type values are reformatted into
type DataType string

const (
	Null      DataType = "null"
	Int32     DataType = "integer_small"
	Int64     DataType = "integer"
	Float32   DataType = "number_small"
	Float64   DataType = "number"
	String    DataType = "string"
	Bool      DataType = "boolean"
	Object    DataType = "object"
	Array     DataType = "array"
	Unknown   DataType = "unknown"
	Timestamp DataType = "timestamp"
)
