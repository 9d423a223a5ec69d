package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/datazip-inc/olake-cdc/constants"
	"github.com/datazip-inc/olake-cdc/logger"
	"github.com/datazip-inc/olake-cdc/protocol"
	"github.com/datazip-inc/olake-cdc/types"
	"github.com/datazip-inc/olake-cdc/typeutils"
	"github.com/datazip-inc/olake-cdc/utils"
	pqgo "github.com/parquet-go/parquet-go"
	"github.com/xitongsys/parquet-go-source/local"
)

// Parquet destination writes one Parquet file per flushed batch and partition
// to a local path and optionally uploads it to S3.
type Parquet struct {
	config   *Config
	s3Client *s3.S3
}

func init() {
	protocol.RegisteredWriters[types.Parquet] = func() protocol.Writer {
		return new(Parquet)
	}
}

// GetConfigRef returns the config reference for the parquet writer.
func (p *Parquet) GetConfigRef() protocol.Config {
	p.config = &Config{}
	return p.config
}

// Type returns the type of the writer.
func (p *Parquet) Type() string {
	return string(types.Parquet)
}

// setup s3 client if credentials provided
func (p *Parquet) initS3Writer() error {
	if p.s3Client != nil || p.config.Bucket == "" || p.config.Region == "" {
		return nil
	}

	s3Config := aws.Config{
		Region: aws.String(p.config.Region),
	}
	if p.config.AccessKey != "" && p.config.SecretKey != "" {
		s3Config.Credentials = credentials.NewStaticCredentials(p.config.AccessKey, p.config.SecretKey, "")
	}
	sess, err := session.NewSession(&s3Config)
	if err != nil {
		return fmt.Errorf("failed to create AWS session: %s", err)
	}
	p.s3Client = s3.New(sess)

	return nil
}

// Setup prepares the staging directory and the S3 client
func (p *Parquet) Setup(_ context.Context) error {
	if err := p.initS3Writer(); err != nil {
		return err
	}
	// for s3 p.config.path may not be provided
	if p.config.Path == "" {
		p.config.Path = os.TempDir()
	}

	if err := os.MkdirAll(p.config.Path, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create path[%s]: %s", p.config.Path, err)
	}
	return nil
}

// Check validates local paths and S3 credentials if applicable.
func (p *Parquet) Check(ctx context.Context) error {
	if err := p.initS3Writer(); err != nil {
		return err
	}
	// test for s3 permissions
	if p.s3Client != nil {
		testKey := fmt.Sprintf("olake_writer_test/%s", utils.TimestampedFileName("txt"))
		_, err := p.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.config.Bucket),
			Key:    aws.String(testKey),
			Body:   strings.NewReader("S3 write test"),
		})
		if err != nil {
			return fmt.Errorf("failed to write test file to S3: %s", err)
		}
		if p.config.Path == "" {
			p.config.Path = os.TempDir()
		}
		logger.Info("s3 writer configuration found")
	} else if p.config.Path != "" {
		logger.Infof("local writer configuration found, writing at location[%s]", p.config.Path)
	} else {
		return fmt.Errorf("invalid configuration found")
	}

	if err := os.MkdirAll(p.config.Path, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create path: %s", err)
	}

	// Test directory writability
	tempFile, err := os.CreateTemp(p.config.Path, "temporary-*.txt")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s", err)
	}
	tempFile.Close()
	os.Remove(tempFile.Name())
	return nil
}

// Flush writes the batch into one new file per partition. It is safe for
// concurrent use since every call owns its files.
func (p *Parquet) Flush(ctx context.Context, stream types.StreamDescriptor, records []types.RawRecord) error {
	partitions := make(map[string][]types.RawRecord)
	for _, record := range records {
		partitionedPath := p.getPartitionedFilePath(stream, record.Data, record.OlakeTimestamp)
		partitions[partitionedPath] = append(partitions[partitionedPath], record)
	}

	for partitionedPath, partitionRecords := range partitions {
		if err := ctx.Err(); err != nil {
			return err
		}

		fileName, err := p.writeFile(partitionedPath, partitionRecords)
		if err != nil {
			return err
		}
		if p.s3Client != nil {
			if err := p.upload(ctx, partitionedPath, fileName); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Parquet) writeFile(partitionedPath string, records []types.RawRecord) (string, error) {
	directoryPath := filepath.Join(p.config.Path, partitionedPath)
	if err := os.MkdirAll(directoryPath, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directories[%s]: %s", directoryPath, err)
	}

	fileName := utils.TimestampedFileName(constants.ParquetFileExt)
	filePath := filepath.Join(directoryPath, fileName)
	pqFile, err := local.NewLocalFileWriter(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create parquet file writer: %s", err)
	}

	writer := pqgo.NewGenericWriter[types.RawRecord](pqFile, pqgo.Compression(&pqgo.Snappy))
	if _, err := writer.Write(records); err != nil {
		_ = pqFile.Close()
		return "", fmt.Errorf("failed to write in parquet file: %s", err)
	}
	if err := writer.Close(); err != nil {
		_ = pqFile.Close()
		return "", fmt.Errorf("failed to close writer: %s", err)
	}
	if err := pqFile.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %s", err)
	}

	logger.Debugf("Finished writing file [%s] with %d records.", filePath, len(records))
	return fileName, nil
}

func (p *Parquet) upload(ctx context.Context, partitionedPath, fileName string) error {
	filePath := filepath.Join(p.config.Path, partitionedPath, fileName)
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open local file for S3 upload: %s", err)
	}
	defer file.Close()

	s3KeyPath := filepath.Join(p.config.Prefix, partitionedPath, fileName)
	_, err = p.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.config.Bucket),
		Key:    aws.String(s3KeyPath),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3 (bucket: %s, path: %s): %s", p.config.Bucket, s3KeyPath, err)
	}

	if err := os.Remove(filePath); err != nil {
		logger.Warnf("Failed to delete uploaded file [%s]: %s", filePath, err)
	}
	logger.Infof("Successfully uploaded file to S3: s3://%s/%s", p.config.Bucket, s3KeyPath)
	return nil
}

func (p *Parquet) Close() error {
	return nil
}

func splitPlaceholder(placeholder string) []string {
	parts := strings.Split(placeholder, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(strings.Trim(strings.TrimSpace(parts[i]), `'`))
	}

	return parts
}

func (p *Parquet) getPartitionedFilePath(stream types.StreamDescriptor, values map[string]any, olakeTimestamp time.Time) string {
	basePath := filepath.Join(stream.Namespace, stream.Name)
	pattern := p.config.PartitionRegex
	if pattern == "" {
		return basePath
	}

	result := partitionPlaceholder.ReplaceAllStringFunc(pattern, func(match string) string {
		regexVarBlock := splitPlaceholder(strings.Trim(match, "{}"))
		colName, defaultValue, granularity := regexVarBlock[0], regexVarBlock[1], regexVarBlock[2]
		if defaultValue == "" {
			defaultValue = fmt.Sprintf("default_%s", colName)
		}

		granularityFunction := func(value any) string {
			if granularity == "" {
				return fmt.Sprintf("%v", value)
			}
			timestampInterface, err := typeutils.ReformatValue(types.Timestamp, value)
			if err != nil {
				logger.Debugf("Failed to convert value to timestamp: %s", err)
				return fmt.Sprintf("%v", value)
			}
			timestamp := timestampInterface.(time.Time).UTC()
			switch granularity {
			case "HH":
				return fmt.Sprintf("%02d", timestamp.Hour())
			case "DD":
				return fmt.Sprintf("%02d", timestamp.Day())
			case "WW":
				_, week := timestamp.ISOWeek()
				return fmt.Sprintf("%02d", week)
			case "MM":
				return fmt.Sprintf("%02d", int(timestamp.Month()))
			case "YYYY":
				return fmt.Sprintf("%d", timestamp.Year())
			default:
				return fmt.Sprintf("%v", value)
			}
		}
		if colName == "now()" {
			return granularityFunction(olakeTimestamp)
		}
		if value, exists := values[colName]; exists && value != nil {
			return granularityFunction(value)
		}
		return defaultValue
	})

	return filepath.Join(basePath, strings.TrimSuffix(result, "/"))
}
