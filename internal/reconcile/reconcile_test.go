package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"treasuryagent/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	st, err := store.New(db)
	require.NoError(t, err)
	return st
}

func TestRunOnceFlagsMissingAndOrphanTrades(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-1", "Treasury")
	require.NoError(t, err)

	_, err = st.InsertCommand("cmd-filled", "doc-1", "BUY 1 ETH LIMIT 3000", nil, "LIMIT_BUY", store.StatusExecuted)
	require.NoError(t, err)
	_, err = st.InsertCommand("cmd-unfilled", "doc-1", "SELL 1 ETH MARKET", nil, "MARKET_SELL", store.StatusExecuted)
	require.NoError(t, err)

	_, err = st.InsertTrade("trade-1", "doc-1", "cmd-filled", store.TradeBuy, 1, 3000, 1.5, "0xaaa")
	require.NoError(t, err)
	_, err = st.InsertTrade("trade-orphan", "doc-1", "cmd-ghost", store.TradeSell, 1, 2900, 1.0, "0xbbb")
	require.NoError(t, err)

	dir := t.TempDir()
	fixedNow := time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)
	r := New(st, func() []string { return []string{"doc-1"} },
		WithOutputDir(dir),
		WithClock(func() time.Time { return fixedNow }),
	)

	require.NoError(t, r.RunOnce(context.Background()))

	runDir := filepath.Join(dir, "20260731")
	csvPath := filepath.Join(runDir, "doc-1.csv")
	parquetPath := filepath.Join(runDir, "doc-1.parquet")

	csvInfo, err := os.Stat(csvPath)
	require.NoError(t, err)
	require.Greater(t, csvInfo.Size(), int64(0))

	parquetInfo, err := os.Stat(parquetPath)
	require.NoError(t, err)
	require.Greater(t, parquetInfo.Size(), int64(0))

	contents, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "trade-orphan")
}

func TestRunOnceSkipsDocumentsWithNoTrades(t *testing.T) {
	st := newTestStore(t)
	_, err := st.UpsertDocument("doc-empty", "Empty")
	require.NoError(t, err)

	dir := t.TempDir()
	r := New(st, func() []string { return []string{"doc-empty"} }, WithOutputDir(dir))
	require.NoError(t, r.RunOnce(context.Background()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	runDir := filepath.Join(dir, entries[0].Name())
	files, err := os.ReadDir(runDir)
	require.NoError(t, err)
	require.Empty(t, files)
}
