package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	id, err := db.BeginRun(ctx, "proj", "/data/shots.csv", false, Counts{GroupsCreated: 1, ProductsCreated: 2, ProductsUnchanged: 3})
	require.NoError(t, err)
	require.Len(t, id, 36)

	require.NoError(t, db.RecordOperation(ctx, OperationRecord{RunID: id, Seq: 1, Kind: "create-group", Path: "A", Handle: 1, RemoteID: "g1"}))
	require.NoError(t, db.RecordOperation(ctx, OperationRecord{RunID: id, Seq: 2, Kind: "create-product", Path: "A/x", Handle: 2, ParentID: "g1", Error: "boom"}))
	require.NoError(t, db.FinishRun(ctx, id, 1, errors.New("boom")))

	run, err := db.GetRun(ctx, id[:8])
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, "boom", run.Error)
	assert.Equal(t, 1, run.Executed)
	assert.Equal(t, 2, run.Counts.ProductsCreated)
	assert.False(t, run.StartedAt.IsZero())
	assert.False(t, run.FinishedAt.IsZero())

	ops, err := db.ListRunOperations(ctx, id)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "g1", ops[0].RemoteID)
	assert.Equal(t, "", ops[0].ParentID)
	assert.Equal(t, "boom", ops[1].Error)
	assert.Equal(t, 2, ops[1].Handle)
}

func TestRecordOperation_RejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	id, err := db.BeginRun(ctx, "proj", "f.csv", true, Counts{})
	require.NoError(t, err)
	assert.Error(t, db.RecordOperation(ctx, OperationRecord{RunID: id, Seq: 1, Kind: "delete", Path: "A"}))
}

func TestFinishRun_Unknown(t *testing.T) {
	db := openTemp(t)
	assert.ErrorIs(t, db.FinishRun(context.Background(), "nope", 0, nil), ErrRunNotFound)
	_, err := db.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRecentRunsAndStats(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)

	for i, dry := range []bool{false, false, true} {
		id, err := db.BeginRun(ctx, "proj", "f.csv", dry, Counts{GroupsCreated: 1, ProductsCreated: i + 1})
		require.NoError(t, err)
		var runErr error
		if i == 1 {
			runErr = errors.New("failed")
		}
		require.NoError(t, db.FinishRun(ctx, id, 1, runErr))
	}
	other, err := db.BeginRun(ctx, "other", "g.csv", false, Counts{ProductsUpdated: 4})
	require.NoError(t, err)
	require.NoError(t, db.FinishRun(ctx, other, 4, nil))

	runs, err := db.ListRecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.Equal(t, other, runs[0].ID)
	assert.True(t, runs[1].DryRun)

	limited, err := db.ListRecentRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "other", stats[0].ProjectID)
	assert.Equal(t, 4, stats[0].ProductsUpdated)
	assert.Equal(t, "proj", stats[1].ProjectID)
	assert.Equal(t, 2, stats[1].Runs)
	assert.Equal(t, 1, stats[1].FailedRuns)
	assert.Equal(t, 3, stats[1].ProductsCreated)
	assert.False(t, stats[1].LastRunAt.IsZero())
}

func TestGetRun_PrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	db := openTemp(t)
	id, err := db.BeginRun(ctx, "proj", "f.csv", false, Counts{})
	require.NoError(t, err)

	for _, pattern := range []string{"%", "_", "________", id[:4] + "%"} {
		_, err := db.GetRun(ctx, pattern)
		assert.ErrorIs(t, err, ErrRunNotFound, pattern)
	}
	run, err := db.GetRun(ctx, id[:4])
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)

	assert.Equal(t, `a\%b\_c\\%`, likePrefix(`a%b_c\`))
}
