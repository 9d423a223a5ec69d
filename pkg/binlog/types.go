package binlog

import (
	"context"
	"time"

	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/go-mysql-org/go-mysql/mysql"
)

// Config holds the configuration for the binlog syncer.
type Config struct {
	ServerID        uint32
	Flavor          string
	Host            string
	Port            uint16
	User            string
	Password        string
	Charset         string
	VerifyChecksum  bool
	HeartbeatPeriod time.Duration
}

// Binlog is the resume offset persisted for mysql
type Binlog struct {
	ServerID uint32         `json:"server_id"`
	Position mysql.Position `json:"position"`
}

func (b *Binlog) IsEmpty() bool {
	return b == nil || b.Position.Name == ""
}

// OnChange is a callback function type for processing change events.
type OnChange = func(event cdc.ChangeEvent) error

// PositionFunc fetches the current end of the binlog
type PositionFunc func(ctx context.Context) (mysql.Position, error)

// Position is a binlog file and offset
type Position mysql.Position

func (p Position) Compare(other cdc.Position) int {
	o, ok := other.(Position)
	if !ok {
		return -1
	}

	return mysql.Position(p).Compare(mysql.Position(o))
}

func (p Position) String() string {
	return mysql.Position(p).String()
}
