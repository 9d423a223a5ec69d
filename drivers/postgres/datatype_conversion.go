package postgres

import (
	"strings"

	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/typeutils"
)

// wal2json reports column types the way format_type() prints them
var pgTypeToDataTypes = map[string]types.DataType{
	// integers
	"bigint":      types.Int64,
	"integer":     types.Int32,
	"smallint":    types.Int32,
	"smallserial": types.Int32,
	"int":         types.Int32,
	"int2":        types.Int32,
	"int4":        types.Int32,
	"int8":        types.Int64,
	"serial":      types.Int32,
	"serial8":     types.Int64,
	"bigserial":   types.Int64,
	"oid":         types.Int64,

	// numbers
	"decimal":          types.Float64,
	"numeric":          types.Float64,
	"double precision": types.Float64,
	"float4":           types.Float32,
	"float8":           types.Float64,
	"real":             types.Float32,

	// boolean
	"bool":    types.Bool,
	"boolean": types.Bool,

	// date/time
	"date":                        types.Timestamp,
	"timestamp":                   types.Timestamp,
	"timestamptz":                 types.Timestamp,
	"timestamp with time zone":    types.Timestamp,
	"timestamp without time zone": types.Timestamp,
	"time":                        types.String,
	"timetz":                      types.String,
	"time with time zone":         types.String,
	"time without time zone":      types.String,
	"interval":                    types.String,

	// strings
	"bit":               types.String,
	"bit varying":       types.String,
	"bytea":             types.String,
	"character":         types.String,
	"character varying": types.String,
	"char":              types.String,
	"varchar":           types.String,
	"text":              types.String,
	"name":              types.String,
	"uuid":              types.String,
	"json":              types.String,
	"jsonb":             types.String,
	"xml":               types.String,
	"inet":              types.String,
	"cidr":              types.String,
	"macaddr":           types.String,
	"money":             types.String,
	"pg_lsn":            types.String,
	"tsvector":          types.String,
	"point":             types.String,
	"polygon":           types.String,
}

// baseType strips modifiers: "character varying(255)" is "character varying"
func baseType(columnType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(columnType, "(")[0]))
}

// dataTypeConverter reformats a wal2json value; unknown and enum types pass through
func dataTypeConverter(value interface{}, columnType string) (interface{}, error) {
	if value == nil {
		return nil, typeutils.ErrNullValue
	}

	if strings.HasSuffix(strings.TrimSpace(columnType), "[]") {
		return typeutils.ReformatValue(types.Array, value)
	}
	olakeType, found := pgTypeToDataTypes[baseType(columnType)]
	if !found {
		return value, nil
	}

	return typeutils.ReformatValue(olakeType, value)
}
