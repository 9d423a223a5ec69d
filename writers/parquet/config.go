package parquet

import (
	"fmt"
	"regexp"

	"github.com/datazip-inc/olake-cdc/utils"
)

// placeholders look like {column, 'fallback', granularity}
var partitionPlaceholder = regexp.MustCompile(`\{([^}]+)\}`)

type Config struct {
	Path      string `json:"local_path,omitempty"` // Local file path (for local file system usage)
	Bucket    string `json:"s3_bucket,omitempty" validate:"required_with=Region"`
	Region    string `json:"s3_region,omitempty" validate:"required_with=Bucket"`
	AccessKey string `json:"s3_access_key,omitempty" validate:"required_with=SecretKey"`
	SecretKey string `json:"s3_secret_key,omitempty" validate:"required_with=AccessKey"`
	Prefix    string `json:"s3_path,omitempty"`
	// PartitionRegex lays out files below namespace/name, e.g. /{created_at, '', DD}
	PartitionRegex string `json:"partition_regex,omitempty"`
}

func (c *Config) Validate() error {
	if c.Path == "" && c.Bucket == "" {
		return fmt.Errorf("either local_path or s3_bucket must be set")
	}
	for _, match := range partitionPlaceholder.FindAllStringSubmatch(c.PartitionRegex, -1) {
		if len(splitPlaceholder(match[1])) != 3 {
			return fmt.Errorf("partition placeholder %s must have a column, a fallback and a granularity", match[0])
		}
	}

	return utils.Validate(c)
}
