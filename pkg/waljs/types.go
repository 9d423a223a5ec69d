package waljs

import (
	"crypto/tls"
	"net/url"
	"time"

	"github.com/datazip-inc/olake-cdc/pkg/cdc"
	"github.com/datazip-inc/olake-cdc/typeutils"
	"github.com/jackc/pglogrepl"
)

const DefaultStandbyInterval = 10 * time.Second

type Config struct {
	Connection          url.URL
	ReplicationSlotName string
	TLSConfig           *tls.Config
	// StandbyInterval bounds each wait for a server message; on expiry a status update is sent
	StandbyInterval time.Duration
}

// WALState is the resume offset persisted for postgres
type WALState struct {
	LSN string `json:"lsn"`
}

func (s *WALState) IsEmpty() bool {
	return s == nil || s.LSN == ""
}

type ReplicationSlot struct {
	SlotType string        `db:"slot_type"`
	Plugin   string        `db:"plugin"`
	LSN      pglogrepl.LSN `db:"confirmed_flush_lsn"`
}

// WALMessage is a wal2json (format version 1) transaction
type WALMessage struct {
	NextLSN   string         `json:"nextlsn"`
	Timestamp typeutils.Time `json:"timestamp"`
	Change    []struct {
		Kind         string        `json:"kind"`
		Schema       string        `json:"schema"`
		Table        string        `json:"table"`
		Columnnames  []string      `json:"columnnames"`
		Columntypes  []string      `json:"columntypes"`
		Columnvalues []interface{} `json:"columnvalues"`
		PK           struct {
			PKNames []string `json:"pknames"`
			PKTypes []string `json:"pktypes"`
		} `json:"pk"`
		Oldkeys struct {
			Keynames  []string      `json:"keynames"`
			Keytypes  []string      `json:"keytypes"`
			Keyvalues []interface{} `json:"keyvalues"`
		} `json:"oldkeys"`
	} `json:"change"`
}

// TypeConverter converts a wal2json column value given its postgres type
type TypeConverter func(value interface{}, columnType string) (interface{}, error)

type OnMessage = func(event cdc.ChangeEvent) error

// LSN is a position in the postgres write-ahead log
type LSN pglogrepl.LSN

func ParseLSN(value string) (LSN, error) {
	lsn, err := pglogrepl.ParseLSN(value)
	return LSN(lsn), err
}

func (l LSN) Compare(other cdc.Position) int {
	o, ok := other.(LSN)
	if !ok {
		return -1
	}

	switch {
	case l < o:
		return -1
	case l > o:
		return 1
	default:
		return 0
	}
}

func (l LSN) String() string {
	return pglogrepl.LSN(l).String()
}
