package database

import (
	"database/sql"
	"time"
)

// DeviceBinding maps a hardware address to a contestant identity.
type DeviceBinding struct {
	MAC           string    `db:"mac" json:"mac"`
	ID            string    `db:"id" json:"id"`
	IP            string    `db:"ip" json:"ip"`
	ClientVersion string    `db:"client_version" json:"clientVersion"`
	LastSeen      time.Time `db:"last_seen" json:"lastSeen"`
}

// ContestantCredential is owned by the importer; only Synced is written by
// the heartbeat path.
type ContestantCredential struct {
	ID       string `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Password string `db:"password" json:"password"`
	Synced   bool   `db:"synced" json:"synced"`
}

type Counts struct {
	Bindings    int64
	Credentials int64
	Synced      int64
}

// StatusRow is one row of the bindings/credentials full outer join. Binding
// columns are null for unclaimed credentials and credential columns are null
// for bindings whose identity has no credential yet.
type StatusRow struct {
	MAC           sql.NullString
	ID            string
	IP            sql.NullString
	ClientVersion sql.NullString
	LastSeen      sql.NullInt64
	Username      sql.NullString
	Password      sql.NullString
	Synced        sql.NullBool
}

type ImportResult struct {
	Inserted  int
	Updated   int
	Unchanged int
}
