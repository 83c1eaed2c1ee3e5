package database

import (
	"context"
	"database/sql"
	"fmt"
)

func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		counts, err = db.counts(ctx, conn)
		return err
	})
	return counts, err
}

func (db *DB) counts(ctx context.Context, conn *sql.Conn) (Counts, error) {
	var counts Counts
	queries := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM bindings`, &counts.Bindings},
		{`SELECT COUNT(*) FROM credentials`, &counts.Credentials},
		{`SELECT COUNT(*) FROM credentials WHERE synced = 1`, &counts.Synced},
	}
	for _, q := range queries {
		if err := conn.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return Counts{}, fmt.Errorf("failed to execute query: %s, error: %w", q.query, err)
		}
	}
	return counts, nil
}

// Status returns the aggregate counts and the full outer join of bindings and
// credentials on identity, ordered by identity then hardware address.
func (db *DB) Status(ctx context.Context) (Counts, []StatusRow, error) {
	var (
		counts Counts
		rows   []StatusRow
	)
	err := db.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		counts, err = db.counts(ctx, conn)
		if err != nil {
			return err
		}

		query := `SELECT b.mac, COALESCE(b.id, c.id), b.ip, b.client_version, b.last_seen,
				  c.username, c.password, c.synced
				  FROM bindings b FULL OUTER JOIN credentials c ON b.id = c.id
				  ORDER BY COALESCE(b.id, c.id), b.mac`
		result, err := conn.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to list status: %w", err)
		}
		defer result.Close()

		for result.Next() {
			var row StatusRow
			if err := result.Scan(&row.MAC, &row.ID, &row.IP, &row.ClientVersion, &row.LastSeen,
				&row.Username, &row.Password, &row.Synced); err != nil {
				return fmt.Errorf("failed to scan status row: %w", err)
			}
			rows = append(rows, row)
		}
		return result.Err()
	})
	return counts, rows, err
}
