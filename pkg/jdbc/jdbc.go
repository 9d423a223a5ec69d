package jdbc

// PostgreSQL-Specific Queries

// PostgresWalLSNQuery returns the query to fetch the current WAL LSN in PostgreSQL
func PostgresWalLSNQuery() string {
	return `SELECT pg_current_wal_lsn()::text`
}

// PostgresReplicationSlotExistsQuery checks for a replication slot by name ($1)
func PostgresReplicationSlotExistsQuery() string {
	return `SELECT EXISTS(SELECT 1 FROM pg_replication_slots WHERE slot_name = $1)`
}

// PostgresWalLevelQuery returns the configured wal_level; logical decoding requires 'logical'
func PostgresWalLevelQuery() string {
	return `SHOW wal_level`
}

// MySQL-Specific Queries

// MySQLMasterStatusQuery returns the query to fetch the current binlog position in MySQL
func MySQLMasterStatusQuery() string {
	return "SHOW MASTER STATUS"
}

// MySQLBinaryLogStatusQuery replaces SHOW MASTER STATUS from MySQL 8.4
func MySQLBinaryLogStatusQuery() string {
	return "SHOW BINARY LOG STATUS"
}

// MySQLBinlogSettingsQuery returns binlog_format and binlog_row_image
func MySQLBinlogSettingsQuery() string {
	return "SELECT @@GLOBAL.binlog_format, @@GLOBAL.binlog_row_image"
}
