package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// testSchema creates all tables needed for testing
const testSchema = `
CREATE TABLE analytics_volatility (cache_key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE analytics_correlation (cache_key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE analytics_sectors (cache_key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE entity_graph (cache_key TEXT PRIMARY KEY, data BLOB NOT NULL, expires_at INTEGER NOT NULL);

CREATE INDEX idx_analytics_volatility_expires ON analytics_volatility(expires_at);
CREATE INDEX idx_analytics_correlation_expires ON analytics_correlation(expires_at);
CREATE INDEX idx_analytics_sectors_expires ON analytics_sectors(expires_at);
CREATE INDEX idx_entity_graph_expires ON entity_graph(expires_at);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

// mustPack marshals a value to msgpack for direct test inserts.
func mustPack(t *testing.T, v interface{}) []byte {
	blob, err := msgpack.Marshal(v)
	require.NoError(t, err)
	return blob
}

func TestNewRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	assert.NotNil(t, repo)
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Test storing a simple struct
	data := map[string]interface{}{
		"ticker":     "AAPL",
		"volatility": 0.021,
	}

	err := repo.Store("analytics_volatility", "AAPL:30", data, time.Hour)
	require.NoError(t, err)

	// Verify data was stored
	var blob []byte
	var expiresAt int64
	err = db.QueryRow("SELECT data, expires_at FROM analytics_volatility WHERE cache_key = ?", "AAPL:30").Scan(&blob, &expiresAt)
	require.NoError(t, err)

	// Verify msgpack was stored correctly
	var parsed map[string]interface{}
	err = msgpack.Unmarshal(blob, &parsed)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", parsed["ticker"])

	// Verify expiration is roughly 1 hour from now
	expectedExpires := time.Now().Add(time.Hour).Unix()
	assert.InDelta(t, expectedExpires, expiresAt, 5) // Allow 5 second tolerance
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Store initial data
	data1 := map[string]string{"version": "1"}
	err := repo.Store("analytics_sectors", "30", data1, time.Hour)
	require.NoError(t, err)

	// Store updated data with same key
	data2 := map[string]string{"version": "2"}
	err = repo.Store("analytics_sectors", "30", data2, time.Hour)
	require.NoError(t, err)

	// Verify only one row exists with updated data
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM analytics_sectors WHERE cache_key = ?", "30").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Verify data was updated
	var parsed map[string]string
	found, err := repo.GetIfFresh("analytics_sectors", "30", &parsed)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", parsed["version"])
}

func TestGetIfFresh_Fresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Store data with 1 hour TTL (fresh)
	data := map[string]string{"status": "fresh"}
	err := repo.Store("entity_graph", "AAPL:2", data, time.Hour)
	require.NoError(t, err)

	// Should return data
	var parsed map[string]string
	found, err := repo.GetIfFresh("entity_graph", "AAPL:2", &parsed)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "fresh", parsed["status"])
}

func TestGetIfFresh_Expired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Insert expired data directly (expired 1 hour ago)
	expiredAt := time.Now().Add(-time.Hour).Unix()
	_, err := db.Exec(
		"INSERT INTO entity_graph (cache_key, data, expires_at) VALUES (?, ?, ?)",
		"AAPL:2",
		mustPack(t, map[string]string{"status": "expired"}),
		expiredAt,
	)
	require.NoError(t, err)

	// Should report not found for expired data
	var parsed map[string]string
	found, err := repo.GetIfFresh("entity_graph", "AAPL:2", &parsed)
	require.NoError(t, err)
	assert.False(t, found, "Expected miss for expired data")
}

func TestGet_ReturnsStaleData(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Insert expired data directly (expired 1 hour ago)
	expiredAt := time.Now().Add(-time.Hour).Unix()
	_, err := db.Exec(
		"INSERT INTO entity_graph (cache_key, data, expires_at) VALUES (?, ?, ?)",
		"AAPL:2",
		mustPack(t, map[string]string{"status": "stale_but_useful"}),
		expiredAt,
	)
	require.NoError(t, err)

	// GetIfFresh should miss
	var parsed map[string]string
	found, err := repo.GetIfFresh("entity_graph", "AAPL:2", &parsed)
	require.NoError(t, err)
	assert.False(t, found, "GetIfFresh should miss for expired data")

	// Get should return the stale data (useful when the graph store is down)
	found, err = repo.Get("entity_graph", "AAPL:2", &parsed)
	require.NoError(t, err)
	require.True(t, found, "Get should return stale data")
	assert.Equal(t, "stale_but_useful", parsed["status"])
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Get should miss for non-existent key
	var parsed map[string]string
	found, err := repo.Get("entity_graph", "NONEXISTENT", &parsed)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Store data
	data := map[string]string{"to_delete": "true"}
	err := repo.Store("analytics_correlation", "AAPL,MSFT:90", data, time.Hour)
	require.NoError(t, err)

	// Verify it exists
	var parsed map[string]string
	found, err := repo.GetIfFresh("analytics_correlation", "AAPL,MSFT:90", &parsed)
	require.NoError(t, err)
	require.True(t, found)

	// Delete it
	err = repo.Delete("analytics_correlation", "AAPL,MSFT:90")
	require.NoError(t, err)

	// Verify it's gone
	found, err = repo.GetIfFresh("analytics_correlation", "AAPL,MSFT:90", &parsed)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	now := time.Now()

	// Insert 3 expired entries and 2 fresh entries
	expiredAt := now.Add(-time.Hour).Unix()
	freshAt := now.Add(time.Hour).Unix()

	blob := mustPack(t, map[string]string{})
	_, err := db.Exec("INSERT INTO analytics_volatility (cache_key, data, expires_at) VALUES (?, ?, ?)", "AAPL:30", blob, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO analytics_volatility (cache_key, data, expires_at) VALUES (?, ?, ?)", "MSFT:30", blob, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO analytics_volatility (cache_key, data, expires_at) VALUES (?, ?, ?)", "GOOGL:30", blob, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO analytics_volatility (cache_key, data, expires_at) VALUES (?, ?, ?)", "AMZN:30", blob, freshAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO analytics_volatility (cache_key, data, expires_at) VALUES (?, ?, ?)", "TSLA:30", blob, freshAt)
	require.NoError(t, err)

	// Delete expired
	deleted, err := repo.DeleteExpired("analytics_volatility")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	// Verify only 2 remain
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM analytics_volatility").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteAllExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	now := time.Now()
	expiredAt := now.Add(-time.Hour).Unix()
	freshAt := now.Add(time.Hour).Unix()

	blob := mustPack(t, map[string]string{})

	// Insert expired entries in multiple tables
	_, err := db.Exec("INSERT INTO analytics_volatility (cache_key, data, expires_at) VALUES (?, ?, ?)", "AAPL:30", blob, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO analytics_volatility (cache_key, data, expires_at) VALUES (?, ?, ?)", "MSFT:30", blob, freshAt)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO analytics_correlation (cache_key, data, expires_at) VALUES (?, ?, ?)", "a", blob, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO analytics_correlation (cache_key, data, expires_at) VALUES (?, ?, ?)", "b", blob, expiredAt)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO entity_graph (cache_key, data, expires_at) VALUES (?, ?, ?)", "AAPL:2", blob, freshAt)
	require.NoError(t, err)

	// Delete all expired
	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)

	// Verify counts
	assert.Equal(t, int64(1), results["analytics_volatility"])
	assert.Equal(t, int64(2), results["analytics_correlation"])
	assert.Equal(t, int64(0), results["entity_graph"])

	// Verify remaining rows
	var count int
	db.QueryRow("SELECT COUNT(*) FROM analytics_volatility").Scan(&count)
	assert.Equal(t, 1, count)

	db.QueryRow("SELECT COUNT(*) FROM analytics_correlation").Scan(&count)
	assert.Equal(t, 0, count)

	db.QueryRow("SELECT COUNT(*) FROM entity_graph").Scan(&count)
	assert.Equal(t, 1, count)
}

func TestStoreComplexPayload(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Nested structure like a correlation matrix response
	data := map[string]interface{}{
		"tickers": []string{"AAPL", "MSFT"},
		"matrix":  [][]float64{{1.0, 0.82}, {0.82, 1.0}},
		"days":    90,
	}

	err := repo.Store("analytics_correlation", "AAPL,MSFT:90", data, time.Hour)
	require.NoError(t, err)

	var parsed struct {
		Tickers []string    `msgpack:"tickers"`
		Matrix  [][]float64 `msgpack:"matrix"`
		Days    int         `msgpack:"days"`
	}
	found, err := repo.GetIfFresh("analytics_correlation", "AAPL,MSFT:90", &parsed)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, []string{"AAPL", "MSFT"}, parsed.Tickers)
	assert.Equal(t, 90, parsed.Days)
	require.Len(t, parsed.Matrix, 2)
	assert.InDelta(t, 0.82, parsed.Matrix[0][1], 1e-9)
	assert.Equal(t, 1.0, parsed.Matrix[0][0])
}

func TestInvalidTableName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// All methods should reject invalid table names
	t.Run("Store", func(t *testing.T) {
		err := repo.Store("invalid_table; DROP TABLE entity_graph;--", "key", map[string]string{}, time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("GetIfFresh", func(t *testing.T) {
		var out map[string]string
		_, err := repo.GetIfFresh("users", "key", &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("Get", func(t *testing.T) {
		var out map[string]string
		_, err := repo.Get("passwords", "key", &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("Delete", func(t *testing.T) {
		err := repo.Delete("secrets", "key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		_, err := repo.DeleteExpired("nonexistent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})
}

func TestValidateTable(t *testing.T) {
	// All tables in AllTables should be valid
	for _, table := range AllTables {
		t.Run(table, func(t *testing.T) {
			err := validateTable(table)
			assert.NoError(t, err)
		})
	}
}
