package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostore/config"
	"github.com/sushant-115/gojostore/core/engine"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	"go.uber.org/zap/zaptest"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.BufferPool.LockTimeout = 40 * time.Millisecond
	cfg.BufferPool.LockRetryMax = 5 * time.Millisecond
	cfg.Statistics.Buckets = 10
	e, err := engine.Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestShell_Session(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	sh := newShell(testEngine(t), &out)

	run := func(line string) string {
		t.Helper()
		out.Reset()
		quit, err := sh.exec(ctx, line)
		require.NoError(t, err, line)
		require.False(t, quit)
		return out.String()
	}

	run("create users id:int name:string")
	run("insert users 1 ada")
	run("insert users 2 grace")
	assert.Contains(t, run("scan users"), "2 rows")
	assert.Contains(t, run("scan users id > 1"), "(2, grace)")

	run("begin")
	run("insert users 3 linus")
	run("abort")
	assert.Contains(t, run("scan users"), "2 rows")

	run("begin")
	run("delete users name = ada")
	run("commit")
	assert.Contains(t, run("scan users"), "1 rows")

	assert.Contains(t, run("analyze"), "analyzed 1 tables")
	assert.Contains(t, run("stats users"), "table users: 1 tuples")
	assert.Contains(t, run("stats users id = 2"), "selectivity")
	assert.Contains(t, run("pool"), "locked pages 0")

	quit, err := sh.exec(ctx, "exit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestShell_Errors(t *testing.T) {
	ctx := context.Background()
	sh := newShell(testEngine(t), &bytes.Buffer{})

	for _, line := range []string{
		"frobnicate",
		"commit",
		"create t",
		"create t id:float",
		"insert missing 1",
		"stats missing",
	} {
		_, err := sh.exec(ctx, line)
		assert.Error(t, err, line)
	}

	_, err := sh.exec(ctx, "create t id:int")
	require.NoError(t, err)
	_, err = sh.exec(ctx, "insert t notanumber")
	assert.Error(t, err)
	_, err = sh.exec(ctx, "insert t 1 2")
	assert.Error(t, err)

	_, err = sh.exec(ctx, "begin")
	require.NoError(t, err)
	_, err = sh.exec(ctx, "begin")
	assert.Error(t, err)
	require.NoError(t, sh.close(ctx))
	assert.Nil(t, sh.txn)
}

func TestAnalyze_LoadAndEstimate(t *testing.T) {
	ctx := context.Background()
	e := testEngine(t)
	_, err := e.CreateTable(peopleTable, peopleDesc)
	require.NoError(t, err)
	require.NoError(t, loadPeople(ctx, e, 300, 100, 1))
	require.NoError(t, e.Analyze(ctx))

	ts, ok := e.Stats().Get(peopleTable)
	require.True(t, ok)
	assert.Equal(t, 300, ts.NumTuples)

	var out bytes.Buffer
	require.NoError(t, printStats(&out, ts))
	assert.Contains(t, out.String(), "table people: 300 tuples")
	require.NoError(t, printEstimate(&out, ts, "age >= 18"))
	assert.Contains(t, out.String(), "selectivity 1.0000")
	assert.Error(t, printEstimate(&out, ts, "height > 3"))
	assert.Error(t, printEstimate(&out, ts, "age"))
}

func TestWorkload_CommittedRowsSurvive(t *testing.T) {
	e := testEngine(t)
	cmd := &WorkloadCmd{Workers: 3, Txns: 5, RowsPerTxn: 4, AbortRatio: 0.3, Readers: 1, Seed: 3}
	res, err := cmd.run(context.Background(), e)
	require.NoError(t, err)

	assert.Equal(t, int64(15), res.Committed+res.RolledBack+res.Conflicts)
	assert.Equal(t, int(res.Committed)*4, res.VisibleRows)
	assert.Zero(t, e.Locks().LockedPages())
}

func TestGlobals_LoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gojostore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer_pool:\n  capacity: 8\n"), 0o600))

	g := &Globals{Config: path, LogLevel: "debug", Metrics: 9464}
	cfg, err := g.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.BufferPool.Capacity)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 9464, cfg.Telemetry.PrometheusPort)

	g = &Globals{}
	cfg, err = g.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestShell_FailedCommitReleasesLocks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shell.db")
	cfg := config.Default()
	cfg.BufferPool.LockTimeout = 40 * time.Millisecond
	cfg.BufferPool.LockRetryMax = 5 * time.Millisecond
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.Path = path
	e, err := engine.Open(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer e.Close(ctx)

	var out bytes.Buffer
	sh := newShell(e, &out)
	exec := func(line string) error {
		_, err := sh.exec(ctx, line)
		return err
	}
	require.NoError(t, exec("create t id:int"))
	require.NoError(t, exec("insert t 1"))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TRIGGER fail_writes BEFORE UPDATE ON pages BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	err = exec("insert t 2")
	require.ErrorIs(t, err, flushmanager.ErrIO)
	assert.Zero(t, e.Locks().LockedPages(), "a failed commit must not keep its locks")

	_, err = db.Exec(`DROP TRIGGER fail_writes`)
	require.NoError(t, err)

	require.NoError(t, exec("insert t 3"))
	out.Reset()
	require.NoError(t, exec("scan t"))
	assert.Contains(t, out.String(), "2 rows")
	assert.NotContains(t, out.String(), "(2)")

	// Same through an explicit transaction.
	require.NoError(t, exec("begin"))
	require.NoError(t, exec("insert t 4"))
	_, err = db.Exec(`CREATE TRIGGER fail_writes BEFORE UPDATE ON pages BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)
	assert.ErrorIs(t, exec("commit"), flushmanager.ErrIO)
	assert.Nil(t, sh.txn)
	assert.Zero(t, e.Locks().LockedPages())
}
