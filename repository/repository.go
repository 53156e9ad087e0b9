package repository

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"dag-consensus-sim/db"
	"dag-consensus-sim/models"
)

// ErrNotFound is returned when a run, transaction or view is not stored
var ErrNotFound = errors.New("not found")

const (
	runPrefix  = "run:"
	txPrefix   = "tx:"
	viewPrefix = "view:"
)

// It abstracts the storage layer from the handlers and the batch runner
type RunRepositoryInterface interface {
	PutRun(run *models.Run, txs []*models.Transaction, views []models.MinerView) error
	GetRun(id string) (*models.Run, error)
	GetAllRuns() ([]*models.Run, error)
	GetTransactions(runID string) ([]*models.Transaction, error)
	GetTransaction(runID string, hash models.Hash) (*models.Transaction, error)
	GetView(runID string, miner int) (*models.MinerView, error)
	GetViews(runID string) ([]models.MinerView, error)
}

// RunRepository implements the RunRepositoryInterface using LevelDB as the storage backend
type RunRepository struct {
	db *db.LevelDB
}

// NewRunRepository creates and returns a new RunRepository instance
func NewRunRepository(db *db.LevelDB) *RunRepository {
	return &RunRepository{db: db}
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

// Transactions are keyed by log position so a prefix scan returns them in
// creation order.
func txKey(runID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", txPrefix, runID, seq))
}

func viewKey(runID string, miner int) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", viewPrefix, runID, miner))
}

// PutRun stores a finished run with its transaction log and miner views in one batch
func (r *RunRepository) PutRun(run *models.Run, txs []*models.Transaction, views []models.MinerView) error {
	batch := new(leveldb.Batch)

	data, err := json.Marshal(run)
	if err != nil {
		return errors.Wrapf(err, "encode run %s", run.ID)
	}
	batch.Put(runKey(run.ID), data)

	for i, tx := range txs {
		data, err := json.Marshal(tx)
		if err != nil {
			return errors.Wrapf(err, "encode transaction %s of run %s", tx.Hash, run.ID)
		}
		batch.Put(txKey(run.ID, i), data)
	}
	for _, v := range views {
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Wrapf(err, "encode view of miner %d in run %s", v.Miner, run.ID)
		}
		batch.Put(viewKey(run.ID, v.Miner), data)
	}

	return errors.Wrapf(r.db.Write(batch), "store run %s", run.ID)
}

func (r *RunRepository) get(key []byte, out interface{}) error {
	data, err := r.db.Get(key)
	if errors.Is(err, db.ErrNotFound) {
		return errors.Wrapf(ErrNotFound, "%s", key)
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", key)
	}
	return json.Unmarshal(data, out)
}

// GetRun retrieves a run summary by its ID
func (r *RunRepository) GetRun(id string) (*models.Run, error) {
	var run models.Run
	if err := r.get(runKey(id), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetAllRuns retrieves every stored run summary
func (r *RunRepository) GetAllRuns() ([]*models.Run, error) {
	iter := r.db.NewPrefixIterator([]byte(runPrefix))
	defer iter.Release()

	var runs []*models.Run
	for iter.Next() {
		var run models.Run
		if err := json.Unmarshal(iter.Value(), &run); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, iter.Error()
}

// GetTransactions retrieves the full transaction log of a run, reissues included
func (r *RunRepository) GetTransactions(runID string) ([]*models.Transaction, error) {
	if _, err := r.GetRun(runID); err != nil {
		return nil, err
	}
	iter := r.db.NewPrefixIterator([]byte(txPrefix + runID + ":"))
	defer iter.Release()

	var txs []*models.Transaction
	for iter.Next() {
		var tx models.Transaction
		if err := json.Unmarshal(iter.Value(), &tx); err != nil {
			return nil, err
		}
		txs = append(txs, &tx)
	}
	return txs, iter.Error()
}

// GetTransaction retrieves one transaction of a run by hash
func (r *RunRepository) GetTransaction(runID string, hash models.Hash) (*models.Transaction, error) {
	txs, err := r.GetTransactions(runID)
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if tx.Hash == hash {
			return tx, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "transaction %s in run %s", hash, runID)
}

// GetView retrieves the final view of one miner
func (r *RunRepository) GetView(runID string, miner int) (*models.MinerView, error) {
	var v models.MinerView
	if err := r.get(viewKey(runID, miner), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// GetViews retrieves the final views of every miner, ordered by miner id
func (r *RunRepository) GetViews(runID string) ([]models.MinerView, error) {
	iter := r.db.NewPrefixIterator([]byte(viewPrefix + runID + ":"))
	defer iter.Release()

	var views []models.MinerView
	for iter.Next() {
		var v models.MinerView
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, iter.Error()
}
