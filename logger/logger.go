package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger zerolog.Logger

// Info writes record into os.stdout with log level INFO
func Info(v ...interface{}) {
	if len(v) == 1 {
		logger.Info().Interface("message", v[0]).Send()
	} else {
		logger.Info().Msgf("%s", v...)
	}
}

func Infof(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

// Debug writes record into os.stdout with log level DEBUG
func Debug(v ...interface{}) {
	logger.Debug().Msgf("%s", v...)
}

func Debugf(format string, v ...interface{}) {
	logger.Debug().Msgf(format, v...)
}

// Error writes record into os.stdout with log level ERROR
func Error(v ...interface{}) {
	logger.Error().Msgf("%s", v...)
}

func Errorf(format string, v ...interface{}) {
	logger.Error().Msgf(format, v...)
}

// Fatal writes record into os.stdout with log level FATAL and exits
func Fatal(v ...interface{}) {
	logger.Fatal().Msgf("%s", v...)
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	logger.Fatal().Msgf(format, v...)
	os.Exit(1)
}

// Warn writes record into os.stdout with log level WARN
func Warn(v ...interface{}) {
	logger.Warn().Msgf("%s", v...)
}

func Warnf(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}

// FileLogger creates or truncates <CONFIG_FOLDER>/<fileName><fileExtension> and writes content as json
func FileLogger(content any, fileName, fileExtension string) error {
	filePath := viper.GetString("CONFIG_FOLDER")
	if filePath == "" {
		return fmt.Errorf("config folder is not set")
	}

	contentBytes, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal content: %s", err)
	}

	fullPath := filepath.Join(filePath, fileName+fileExtension)
	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create or open file: %s", err)
	}
	defer file.Close()

	if _, err = file.Write(contentBytes); err != nil {
		return fmt.Errorf("failed to write data to file: %s", err)
	}

	return nil
}

// SyncStats is a point-in-time view of a running sync
type SyncStats struct {
	SyncedRecords       int64
	RunningFlushWorkers int64
	InFlightBytes       int64
}

// StatsLogger periodically writes sync stats to stats.json until ctx is done
func StatsLogger(ctx context.Context, statsFunc func() SyncStats) {
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				Info("Monitoring stopped")
				return
			case <-ticker.C:
				current := statsFunc()
				memStats := new(runtime.MemStats)
				runtime.ReadMemStats(memStats)
				timeElapsed := time.Since(startTime).Seconds()
				speed := float64(current.SyncedRecords) / timeElapsed
				stats := map[string]interface{}{
					"Running Flush Workers": current.RunningFlushWorkers,
					"In-flight Bytes":       humanize.Bytes(uint64(current.InFlightBytes)),
					"Synced Records":        current.SyncedRecords,
					"Memory":                humanize.Bytes(memStats.HeapInuse),
					"Speed":                 fmt.Sprintf("%.2f rps", speed),
					"Seconds Elapsed":       fmt.Sprintf("%.2f", timeElapsed),
				}
				if err := FileLogger(stats, "stats", ".json"); err != nil {
					Errorf("failed to write stats in file: %s", err)
				}
			}
		}
	}()
}

func Init() {
	currentTimestamp := time.Now().UTC()
	timestamp := fmt.Sprintf("%d-%02d-%02d_%02d-%02d-%02d", currentTimestamp.Year(), currentTimestamp.Month(), currentTimestamp.Day(), currentTimestamp.Hour(), currentTimestamp.Minute(), currentTimestamp.Second())
	rotatingFile := &lumberjack.Logger{
		Filename:   fmt.Sprintf("%s/logs/sync_%s/olake-cdc.log", viper.GetString("CONFIG_FOLDER"), timestamp),
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var currentLevel string
	var logColors = map[string]string{
		"debug": "\033[36m", // Cyan
		"info":  "\033[32m", // Green
		"warn":  "\033[33m", // Yellow
		"error": "\033[31m", // Red
		"fatal": "\033[31m", // Red
	}
	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		FormatLevel: func(i interface{}) string {
			level := i.(string)
			currentLevel = level
			return fmt.Sprintf("%s%s\033[0m", logColors[level], strings.ToUpper(level))
		},
		FormatMessage: func(i interface{}) string {
			msg, ok := i.(string)
			if !ok {
				jsonMsg, err := json.Marshal(i)
				if err != nil {
					return err.Error()
				}
				return string(jsonMsg)
			}
			if currentLevel == zerolog.ErrorLevel.String() || currentLevel == zerolog.FatalLevel.String() {
				msg = fmt.Sprintf("\033[31m%s\033[0m", msg)
			}
			return msg
		},
		FormatTimestamp: func(i interface{}) string {
			return fmt.Sprintf("\033[90m%s\033[0m", i)
		},
	}

	multiwriter := zerolog.MultiLevelWriter(console, rotatingFile)
	logger = zerolog.New(multiwriter).Level(level).With().Timestamp().Logger()
}
