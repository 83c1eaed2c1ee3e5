package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"natsume/internal/api"
)

// insertBinding reports whether the row was created. ON CONFLICT DO NOTHING
// makes the existence check and the write one atomic step.
func (db *DB) insertBinding(ctx context.Context, tx *sql.Tx, b *DeviceBinding) (bool, error) {
	query := db.q(`INSERT INTO bindings (mac, id, ip, client_version, last_seen)
			  VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT (mac) DO NOTHING`)
	res, err := tx.ExecContext(ctx, query, b.MAC, b.ID, b.IP, b.ClientVersion, b.LastSeen.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to insert binding %s: %w", b.MAC, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// UpsertBinding creates the binding for b.MAC, or overwrites it when
// allowUpdate is set. An existing row with allowUpdate unset yields
// ErrBindingExists and no write.
func (db *DB) UpsertBinding(ctx context.Context, b *DeviceBinding, allowUpdate bool) (bool, error) {
	var created bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = db.insertBinding(ctx, tx, b)
		if err != nil || created {
			return err
		}
		if !allowUpdate {
			return ErrBindingExists
		}
		query := db.q(`UPDATE bindings SET id = ?, ip = ?, client_version = ?, last_seen = ? WHERE mac = ?`)
		if _, err := tx.ExecContext(ctx, query, b.ID, b.IP, b.ClientVersion, b.LastSeen.Unix(), b.MAC); err != nil {
			return fmt.Errorf("failed to update binding %s: %w", b.MAC, err)
		}
		return nil
	})
	return created, err
}

// TouchBinding records a heartbeat. Unseen addresses are created with b.ID;
// existing rows keep their identity and get address, version and timestamp
// refreshed. When markSynced is set the credential bound to the address's
// identity is flagged synced, if it exists. The UNKNOWN sentinel never
// counts as bound.
func (db *DB) TouchBinding(ctx context.Context, b *DeviceBinding, markSynced bool) (bool, error) {
	var created bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = db.insertBinding(ctx, tx, b)
		if err != nil {
			return err
		}
		if !created {
			query := db.q(`UPDATE bindings SET ip = ?, client_version = ?, last_seen = ? WHERE mac = ?`)
			if _, err := tx.ExecContext(ctx, query, b.IP, b.ClientVersion, b.LastSeen.Unix(), b.MAC); err != nil {
				return fmt.Errorf("failed to refresh binding %s: %w", b.MAC, err)
			}
		}
		if markSynced {
			query := db.q(`UPDATE credentials SET synced = 1
					  WHERE id IN (SELECT id FROM bindings WHERE mac = ?) AND id <> ?`)
			if _, err := tx.ExecContext(ctx, query, b.MAC, api.UnknownIdentity); err != nil {
				return fmt.Errorf("failed to mark %s synced: %w", b.MAC, err)
			}
		}
		return nil
	})
	return created, err
}

func (db *DB) DeleteBinding(ctx context.Context, mac string) error {
	return db.withConn(ctx, func(conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, db.q(`DELETE FROM bindings WHERE mac = ?`), mac)
		if err != nil {
			return fmt.Errorf("failed to delete binding %s: %w", mac, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (db *DB) getBinding(ctx context.Context, conn *sql.Conn, mac string) (*DeviceBinding, error) {
	query := db.q(`SELECT mac, id, ip, client_version, last_seen FROM bindings WHERE mac = ?`)

	binding := &DeviceBinding{}
	var lastSeen int64
	err := conn.QueryRowContext(ctx, query, mac).Scan(
		&binding.MAC, &binding.ID, &binding.IP, &binding.ClientVersion, &lastSeen,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binding %s: %w", mac, err)
	}

	binding.LastSeen = time.Unix(lastSeen, 0).UTC()
	return binding, nil
}

// CountStale counts bindings whose last heartbeat is older than before.
func (db *DB) CountStale(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		query := db.q(`SELECT COUNT(*) FROM bindings WHERE last_seen < ?`)
		if err := conn.QueryRowContext(ctx, query, before.Unix()).Scan(&n); err != nil {
			return fmt.Errorf("failed to count stale bindings: %w", err)
		}
		return nil
	})
	return n, err
}
