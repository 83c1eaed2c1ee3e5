package database

import (
	"context"
	"database/sql"
	"fmt"
)

func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// GetBinding returns nil, nil when no binding exists for mac.
func (db *DB) GetBinding(ctx context.Context, mac string) (*DeviceBinding, error) {
	var binding *DeviceBinding
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		binding, err = db.getBinding(ctx, conn, mac)
		return err
	})
	return binding, err
}

// GetCredential returns nil, nil when no credential exists for id.
func (db *DB) GetCredential(ctx context.Context, id string) (*ContestantCredential, error) {
	var cred *ContestantCredential
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		cred, err = db.getCredential(ctx, conn, id)
		return err
	})
	return cred, err
}

// SetSynced seeds the synced flag without a heartbeat.
func (db *DB) SetSynced(ctx context.Context, id string, synced bool) error {
	return db.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, db.q(`UPDATE credentials SET synced = ? WHERE id = ?`), boolToInt(synced), id)
		if err != nil {
			return fmt.Errorf("failed to set synced for %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
