package repository_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dag-consensus-sim/db"
	"dag-consensus-sim/models"
	"dag-consensus-sim/repository"
)

func newRepo(t *testing.T) *repository.RunRepository {
	t.Helper()
	conn, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return repository.NewRunRepository(conn)
}

func sampleRun(id string) (*models.Run, []*models.Transaction, []models.MinerView) {
	genesis := models.NewGenesis()
	txs := []*models.Transaction{genesis}
	parent := genesis
	for i := 1; i <= 11; i++ {
		tx := models.NewTransaction(i%2, i, i, []models.Hash{parent.Hash})
		tx.AddEvent(i+1, 0, models.Consensus)
		txs = append(txs, tx)
		parent = tx
	}
	views := []models.MinerView{
		{Miner: 0, Root: genesis.Hash, Frontier: []models.Hash{parent.Hash}, Seen: 12},
		{Miner: 1, Root: genesis.Hash, Frontier: []models.Hash{parent.Hash}, Seen: 12},
	}
	run := &models.Run{ID: id, Protocol: "CHAIN", Seed: 3, Miners: 2, Ticks: 14, TriggeredAt: 11,
		Transactions: len(txs), DistinctIDs: 11}
	return run, txs, views
}

func TestPutAndGetRun(t *testing.T) {
	repo := newRepo(t)
	run, txs, views := sampleRun("run-0001")
	require.NoError(t, repo.PutRun(run, txs, views))

	got, err := repo.GetRun("run-0001")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	stored, err := repo.GetTransactions("run-0001")
	require.NoError(t, err)
	require.Len(t, stored, len(txs))
	for i := range txs {
		assert.Equal(t, txs[i].Hash, stored[i].Hash, "position %d", i)
	}
	assert.Equal(t, models.Consensus, stored[5].History[1].State)

	tx, err := repo.GetTransaction("run-0001", txs[3].Hash)
	require.NoError(t, err)
	assert.Equal(t, 3, tx.ID)

	v, err := repo.GetView("run-0001", 1)
	require.NoError(t, err)
	assert.Equal(t, views[1], *v)

	all, err := repo.GetViews("run-0001")
	require.NoError(t, err)
	assert.Equal(t, views, all)
}

func TestRunsAreIsolated(t *testing.T) {
	repo := newRepo(t)
	for _, id := range []string{"run-0001", "run-0002"} {
		run, txs, views := sampleRun(id)
		require.NoError(t, repo.PutRun(run, txs, views))
	}

	runs, err := repo.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-0001", runs[0].ID)
	assert.Equal(t, "run-0002", runs[1].ID)

	txs, err := repo.GetTransactions("run-0002")
	require.NoError(t, err)
	assert.Len(t, txs, 12)
}

func TestNotFound(t *testing.T) {
	repo := newRepo(t)
	run, txs, views := sampleRun("run-0001")
	require.NoError(t, repo.PutRun(run, txs, views))

	_, err := repo.GetRun("missing")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	_, err = repo.GetTransactions("missing")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	_, err = repo.GetTransaction("run-0001", "nope")
	assert.True(t, errors.Is(err, repository.ErrNotFound))

	_, err = repo.GetView("run-0001", 7)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}
