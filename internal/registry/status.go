package registry

import (
	"database/sql"
	"time"

	"natsume/internal/api"
	"natsume/internal/database"
)

func statusEntry(row database.StatusRow) api.StatusEntry {
	entry := api.StatusEntry{
		ID:            row.ID,
		MAC:           nullString(row.MAC),
		IP:            nullString(row.IP),
		ClientVersion: nullString(row.ClientVersion),
		Username:      nullString(row.Username),
		Password:      nullString(row.Password),
	}
	if row.LastSeen.Valid {
		t := time.Unix(row.LastSeen.Int64, 0).UTC()
		entry.LastSeen = &t
	}
	if row.Synced.Valid {
		synced := row.Synced.Bool
		entry.Synced = &synced
	}
	return entry
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
