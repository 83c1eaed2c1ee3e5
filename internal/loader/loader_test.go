package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"natsume/internal/config"
	"natsume/internal/database"
)

func TestParse(t *testing.T) {
	creds, err := Parse(strings.NewReader("\ufeffid,username,password\nc1,team01,p1\nc2, team02 ,\"p,2\"\n"))
	require.NoError(t, err)
	assert.Equal(t, []database.ContestantCredential{
		{ID: "c1", Username: "team01", Password: "p1"},
		{ID: "c2", Username: "team02", Password: "p,2"},
	}, creds)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{name: "empty", input: "", message: "empty file"},
		{name: "wrong header", input: "user,pass,id\n", message: "header must be id,username,password"},
		{name: "missing column", input: "id,username,password\nc1,team01\n", message: "wrong number of fields"},
		{name: "empty password", input: "id,username,password\nc1,team01,p1\nc2,team02,\n", message: "line 3"},
		{name: "duplicate id", input: "id,username,password\nc1,a,p\nc1,b,q\n", message: "already defined on line 2"},
		{name: "reserved id", input: "id,username,password\nc1,a,p\nUNKNOWN,u0,p0\n", message: "line 3: id \"UNKNOWN\" is reserved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformed)
			assert.ErrorContains(t, err, tt.message)
		})
	}
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := database.Open(ctx, config.DriverSQLite, database.SQLiteDSN(filepath.Join(dir, "natsume.db"), 5000), 2)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	path := filepath.Join(dir, "warmup.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,username,password\nc1,team01,p1\nc2,team02,p2\n"), 0o600))
	result, err := LoadFile(ctx, db, path)
	require.NoError(t, err)
	assert.Equal(t, database.ImportResult{Inserted: 2}, result)

	macs := map[string]string{"c1": "aa:bb:cc:dd:ee:01", "c2": "aa:bb:cc:dd:ee:02"}
	for id, mac := range macs {
		binding := &database.DeviceBinding{MAC: mac, ID: id, IP: "10.0.0.1", LastSeen: time.Now()}
		_, err := db.UpsertBinding(ctx, binding, false)
		require.NoError(t, err)
		_, err = db.TouchBinding(ctx, binding, true)
		require.NoError(t, err)
	}

	// Between warmup and the official contest only c2's password changes.
	require.NoError(t, os.WriteFile(path, []byte("id,username,password\nc1,team01,p1\nc2,team02,official\nc3,team03,p3\n"), 0o600))
	result, err = LoadFile(ctx, db, path)
	require.NoError(t, err)
	assert.Equal(t, database.ImportResult{Inserted: 1, Updated: 1, Unchanged: 1}, result)

	_, c1, err := db.Lookup(ctx, macs["c1"])
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.True(t, c1.Synced)
	_, c2, err := db.Lookup(ctx, macs["c2"])
	require.NoError(t, err)
	require.NotNil(t, c2)
	assert.Equal(t, "official", c2.Password)
	assert.False(t, c2.Synced)
}

func TestLoadFileRejectsWholeFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := database.Open(ctx, config.DriverSQLite, database.SQLiteDSN(filepath.Join(dir, "natsume.db"), 5000), 2)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,username,password\nc1,team01,p1\nc2,,p2\n"), 0o600))
	_, err = LoadFile(ctx, db, path)
	require.ErrorIs(t, err, ErrMalformed)

	counts, err := db.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Credentials)
}
