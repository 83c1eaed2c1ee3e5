package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"natsume/internal/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "natsume.db")
	db, err := Open(context.Background(), config.DriverSQLite, SQLiteDSN(path, 5000), 4)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var seen = time.Unix(1700000000, 0).UTC()

func binding(mac, id string) *DeviceBinding {
	return &DeviceBinding{MAC: mac, ID: id, IP: "10.0.0.2", ClientVersion: "1.0.0", LastSeen: seen}
}

func TestNewDBCreatesSchemaIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "natsume.db")
	cfg := &config.ServerConfig{DBDriver: config.DriverSQLite, DBPath: path, DBMaxConns: 2, DBBusyTimeoutMS: 100}

	db, err := NewDB(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping(context.Background()))
}

func TestUpsertBinding(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	created, err := db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:ff", "c1"), false)
	require.NoError(t, err)
	assert.True(t, created)

	_, err = db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:ff", "c1"), false)
	assert.ErrorIs(t, err, ErrBindingExists)

	next := binding("aa:bb:cc:dd:ee:ff", "c2")
	next.IP = "10.0.0.3"
	next.LastSeen = seen.Add(time.Minute)
	created, err = db.UpsertBinding(ctx, next, true)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := db.GetBinding(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, next, got)
}

func TestGetBindingMissing(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetBinding(context.Background(), "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConcurrentUpsertCreatesOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		creates int
		exists  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:ff", "c1"), false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && created:
				creates++
			case err == ErrBindingExists:
				exists++
			default:
				t.Errorf("unexpected result created=%v err=%v", created, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, creates)
	assert.Equal(t, 7, exists)
}

func TestTouchBinding(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	created, err := db.TouchBinding(ctx, binding("11:22:33:44:55:66", "UNKNOWN"), false)
	require.NoError(t, err)
	assert.True(t, created)

	_, err = db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:ff", "c1"), false)
	require.NoError(t, err)

	beat := binding("aa:bb:cc:dd:ee:ff", "UNKNOWN")
	beat.IP = "10.9.9.9"
	beat.ClientVersion = "2.0.0"
	beat.LastSeen = seen.Add(time.Hour)
	created, err = db.TouchBinding(ctx, beat, false)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := db.GetBinding(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID, "heartbeat must not change the identity")
	assert.Equal(t, "10.9.9.9", got.IP)
	assert.Equal(t, "2.0.0", got.ClientVersion)
	assert.Equal(t, seen.Add(time.Hour), got.LastSeen)
}

func TestTouchBindingMarksSynced(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ImportCredentials(ctx, []ContestantCredential{
		{ID: "c1", Username: "u1", Password: "p1"},
		{ID: "c2", Username: "u2", Password: "p2"},
	})
	require.NoError(t, err)
	_, err = db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:ff", "c1"), false)
	require.NoError(t, err)

	_, err = db.TouchBinding(ctx, binding("aa:bb:cc:dd:ee:ff", "UNKNOWN"), true)
	require.NoError(t, err)

	c1, err := db.GetCredential(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c1.Synced)
	c2, err := db.GetCredential(ctx, "c2")
	require.NoError(t, err)
	assert.False(t, c2.Synced)

	// A bound identity without a credential row is a no-op, not an error.
	_, err = db.UpsertBinding(ctx, binding("aa:aa:aa:aa:aa:aa", "ghost"), false)
	require.NoError(t, err)
	_, err = db.TouchBinding(ctx, binding("aa:aa:aa:aa:aa:aa", "UNKNOWN"), true)
	require.NoError(t, err)
}

func TestDeleteBinding(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	assert.ErrorIs(t, db.DeleteBinding(ctx, "aa:bb:cc:dd:ee:ff"), ErrNotFound)

	_, err := db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:ff", "c1"), false)
	require.NoError(t, err)
	require.NoError(t, db.DeleteBinding(ctx, "aa:bb:cc:dd:ee:ff"))

	got, err := db.GetBinding(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestImportCredentials(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	result, err := db.ImportCredentials(ctx, []ContestantCredential{
		{ID: "c1", Username: "u1", Password: "p1"},
		{ID: "c2", Username: "u2", Password: "p2"},
	})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Inserted: 2}, result)

	require.NoError(t, db.SetSynced(ctx, "c1", true))
	require.NoError(t, db.SetSynced(ctx, "c2", true))

	result, err = db.ImportCredentials(ctx, []ContestantCredential{
		{ID: "c1", Username: "u1", Password: "p1"},
		{ID: "c2", Username: "u2", Password: "changed"},
		{ID: "c3", Username: "u3", Password: "p3"},
	})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Inserted: 1, Updated: 1, Unchanged: 1}, result)

	c1, err := db.GetCredential(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c1.Synced, "unchanged credentials keep their synced flag")

	c2, err := db.GetCredential(ctx, "c2")
	require.NoError(t, err)
	assert.False(t, c2.Synced, "changed credentials must be synced again")
	assert.Equal(t, "changed", c2.Password)

	assert.ErrorIs(t, db.SetSynced(ctx, "nobody", true), ErrNotFound)
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	b, c, err := db.Lookup(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Nil(t, c)

	_, err = db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:ff", "c1"), false)
	require.NoError(t, err)
	b, c, err = db.Lookup(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Nil(t, c)

	_, err = db.ImportCredentials(ctx, []ContestantCredential{{ID: "c1", Username: "u1", Password: "p1"}})
	require.NoError(t, err)
	_, c, err = db.Lookup(ctx, "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, &ContestantCredential{ID: "c1", Username: "u1", Password: "p1"}, c)
}

func TestStatusOuterJoin(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ImportCredentials(ctx, []ContestantCredential{
		{ID: "c1", Username: "u1", Password: "p1"},
		{ID: "c3", Username: "u3", Password: "p3"},
	})
	require.NoError(t, err)
	_, err = db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:01", "c1"), false)
	require.NoError(t, err)
	_, err = db.UpsertBinding(ctx, binding("aa:bb:cc:dd:ee:02", "c2"), false)
	require.NoError(t, err)
	_, err = db.TouchBinding(ctx, binding("aa:bb:cc:dd:ee:01", "UNKNOWN"), true)
	require.NoError(t, err)

	counts, rows, err := db.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Bindings: 2, Credentials: 2, Synced: 1}, counts)
	require.Len(t, rows, 3)

	assert.Equal(t, "c1", rows[0].ID)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", rows[0].MAC.String)
	assert.True(t, rows[0].Synced.Valid && rows[0].Synced.Bool)

	assert.Equal(t, "c2", rows[1].ID)
	assert.True(t, rows[1].MAC.Valid)
	assert.False(t, rows[1].Username.Valid, "binding without credential")

	assert.Equal(t, "c3", rows[2].ID)
	assert.False(t, rows[2].MAC.Valid, "credential without binding")
	assert.Equal(t, "u3", rows[2].Username.String)
	assert.False(t, rows[2].Synced.Bool)
}

func TestCountStale(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	old := binding("aa:bb:cc:dd:ee:01", "c1")
	fresh := binding("aa:bb:cc:dd:ee:02", "c2")
	fresh.LastSeen = seen.Add(10 * time.Minute)
	_, err := db.UpsertBinding(ctx, old, false)
	require.NoError(t, err)
	_, err = db.UpsertBinding(ctx, fresh, false)
	require.NoError(t, err)

	n, err := db.CountStale(ctx, seen.Add(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRebindPlaceholders(t *testing.T) {
	pg := &DB{driver: config.DriverPostgres}
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", pg.q("UPDATE t SET a = ? WHERE b = ?"))

	lite := &DB{driver: config.DriverSQLite}
	assert.Equal(t, "SELECT ?", lite.q("SELECT ?"))
}
