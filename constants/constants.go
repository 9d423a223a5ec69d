package constants

const (
	ParquetFileExt = "parquet"
	MongoPrimaryID = "_id"
)
