package types

type AdapterType string

const (
	Parquet AdapterType = "PARQUET"
)

type SourceType string

const (
	Postgres SourceType = "POSTGRES"
	MySQL    SourceType = "MYSQL"
	MongoDB  SourceType = "MONGODB"
)

// WriterConfig is a tagged destination configuration; Type selects the registered writer
type WriterConfig struct {
	Type         AdapterType `json:"type" validate:"required"`
	WriterConfig any         `json:"writer" validate:"required"`
}

// SourceConfig is a tagged source configuration; Type selects the registered source
type SourceConfig struct {
	Type   SourceType `json:"type" validate:"required"`
	Source any        `json:"source" validate:"required"`
}
