package database

import (
	"context"
	"database/sql"
	"fmt"
)

func (db *DB) getCredential(ctx context.Context, conn *sql.Conn, id string) (*ContestantCredential, error) {
	query := db.q(`SELECT id, username, password, synced FROM credentials WHERE id = ?`)

	cred := &ContestantCredential{}
	err := conn.QueryRowContext(ctx, query, id).Scan(&cred.ID, &cred.Username, &cred.Password, &cred.Synced)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential %s: %w", id, err)
	}
	return cred, nil
}

// Lookup resolves mac to its binding and the credential of the bound
// identity on a single connection. Either result may be nil.
func (db *DB) Lookup(ctx context.Context, mac string) (*DeviceBinding, *ContestantCredential, error) {
	var (
		binding *DeviceBinding
		cred    *ContestantCredential
	)
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		binding, err = db.getBinding(ctx, conn, mac)
		if err != nil || binding == nil {
			return err
		}
		cred, err = db.getCredential(ctx, conn, binding.ID)
		return err
	})
	return binding, cred, err
}

// ImportCredentials upserts creds in one transaction. A row whose username or
// password changes is reset to unsynced; an identical row keeps its flag.
func (db *DB) ImportCredentials(ctx context.Context, creds []ContestantCredential) (ImportResult, error) {
	var result ImportResult
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result = ImportResult{}
		selectQuery := db.q(`SELECT username, password FROM credentials WHERE id = ?`)
		insertQuery := db.q(`INSERT INTO credentials (id, username, password, synced) VALUES (?, ?, ?, 0)`)
		updateQuery := db.q(`UPDATE credentials SET username = ?, password = ?, synced = 0 WHERE id = ?`)

		for _, c := range creds {
			var username, password string
			err := tx.QueryRowContext(ctx, selectQuery, c.ID).Scan(&username, &password)
			switch {
			case err == sql.ErrNoRows:
				if _, err := tx.ExecContext(ctx, insertQuery, c.ID, c.Username, c.Password); err != nil {
					return fmt.Errorf("failed to insert credential %s: %w", c.ID, err)
				}
				result.Inserted++
			case err != nil:
				return fmt.Errorf("failed to read credential %s: %w", c.ID, err)
			case username == c.Username && password == c.Password:
				result.Unchanged++
			default:
				if _, err := tx.ExecContext(ctx, updateQuery, c.Username, c.Password, c.ID); err != nil {
					return fmt.Errorf("failed to update credential %s: %w", c.ID, err)
				}
				result.Updated++
			}
		}
		return nil
	})
	return result, err
}
