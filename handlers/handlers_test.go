package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dag-consensus-sim/handlers"
	"dag-consensus-sim/logger"
	"dag-consensus-sim/models"
	"dag-consensus-sim/report"
	"dag-consensus-sim/repository"
	"dag-consensus-sim/routers"
)

type storedRun struct {
	run   models.Run
	txs   []*models.Transaction
	views []models.MinerView
}

type mockRepo struct {
	mu   sync.Mutex
	runs map[string]*storedRun
}

func newMockRepo() *mockRepo {
	return &mockRepo{runs: make(map[string]*storedRun)}
}

func (m *mockRepo) PutRun(run *models.Run, txs []*models.Transaction, views []models.MinerView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = &storedRun{run: *run, txs: txs, views: views}
	return nil
}

func (m *mockRepo) lookup(id string) (*storedRun, error) {
	s, ok := m.runs[id]
	if !ok {
		return nil, errors.Wrapf(repository.ErrNotFound, "run %s", id)
	}
	return s, nil
}

func (m *mockRepo) GetRun(id string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	// return a copy to simulate DB retrieval
	copy := s.run
	return &copy, nil
}

func (m *mockRepo) GetAllRuns() ([]*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]*models.Run, 0, len(m.runs))
	for _, s := range m.runs {
		copy := s.run
		res = append(res, &copy)
	}
	return res, nil
}

func (m *mockRepo) GetTransactions(runID string) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(runID)
	if err != nil {
		return nil, err
	}
	return append([]*models.Transaction(nil), s.txs...), nil
}

func (m *mockRepo) GetTransaction(runID string, hash models.Hash) (*models.Transaction, error) {
	txs, err := m.GetTransactions(runID)
	if err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if tx.Hash == hash {
			return tx, nil
		}
	}
	return nil, errors.Wrapf(repository.ErrNotFound, "transaction %s", hash)
}

func (m *mockRepo) GetView(runID string, miner int) (*models.MinerView, error) {
	views, err := m.GetViews(runID)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.Miner == miner {
			return &v, nil
		}
	}
	return nil, errors.Wrapf(repository.ErrNotFound, "miner %d", miner)
}

func (m *mockRepo) GetViews(runID string) ([]models.MinerView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(runID)
	if err != nil {
		return nil, err
	}
	return s.views, nil
}

func testServer(t *testing.T) (*mux.Router, []*models.Transaction) {
	logger.Logger = zap.NewNop()

	genesis := models.NewGenesis()
	a := models.NewTransaction(0, 0, 1, []models.Hash{genesis.Hash})
	a.AddEvent(1, 0, models.Consensus)
	a.AddEvent(2, 1, models.Consensus)
	b := models.NewTransaction(1, 2, 2, []models.Hash{a.Hash})
	b2 := models.NewTransaction(1, 5, 2, []models.Hash{a.Hash})
	txs := []*models.Transaction{genesis, a, b, b2}

	mockRepo := newMockRepo()
	var repoInterface repository.RunRepositoryInterface = mockRepo
	err := repoInterface.PutRun(
		&models.Run{ID: "run-0001", Protocol: "CHAIN", Miners: 2, Ticks: 8, Transactions: 4, DistinctIDs: 2},
		txs,
		[]models.MinerView{{Miner: 0, Root: genesis.Hash, Seen: 4}, {Miner: 1, Root: genesis.Hash, Seen: 3}},
	)
	if err != nil {
		t.Fatalf("seeding repo failed: %v", err)
	}

	handler := handlers.NewHandler(repoInterface)
	router := mux.NewRouter()
	routers.RegisterRoutes(router, handler)
	return router, txs
}

func get(router *mux.Router, path string) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	return res
}

func TestListRuns(t *testing.T) {
	router, _ := testServer(t)

	res := get(router, "/runs")
	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d, body: %s", res.Code, res.Body.String())
	}
	var runs []models.Run
	if err := json.Unmarshal(res.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-0001" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	router, _ := testServer(t)

	res := get(router, "/runs/nope")
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body: %s", res.Code, res.Body.String())
	}
	for _, path := range []string{"/runs/nope/transactions", "/runs/nope/report", "/runs/nope/views", "/runs/run-0001/views/9"} {
		if res := get(router, path); res.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, res.Code)
		}
	}
}

func TestGetTransactions_FilterByID(t *testing.T) {
	router, txs := testServer(t)

	res := get(router, "/runs/run-0001/transactions")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var all []models.Transaction
	if err := json.Unmarshal(res.Body.Bytes(), &all); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(all) != len(txs) {
		t.Fatalf("expected %d transactions, got %d", len(txs), len(all))
	}

	res = get(router, "/runs/run-0001/transactions?id=2")
	var attempts []models.Transaction
	if err := json.Unmarshal(res.Body.Bytes(), &attempts); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(attempts) != 2 || attempts[0].Hash != txs[2].Hash || attempts[1].Hash != txs[3].Hash {
		t.Fatalf("expected both attempts of id 2, got %+v", attempts)
	}

	if res := get(router, "/runs/run-0001/transactions?id=x"); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetTransaction(t *testing.T) {
	router, txs := testServer(t)

	res := get(router, "/runs/run-0001/transactions/"+string(txs[1].Hash))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", res.Code, res.Body.String())
	}
	var tx models.Transaction
	if err := json.Unmarshal(res.Body.Bytes(), &tx); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if tx.ID != 1 || len(tx.History) != 3 {
		t.Fatalf("unexpected transaction: %+v", tx)
	}

	if res := get(router, "/runs/run-0001/transactions/unknown"); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestGetReport(t *testing.T) {
	router, _ := testServer(t)

	res := get(router, "/runs/run-0001/report")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", res.Code, res.Body.String())
	}
	var body struct {
		Summary report.Summary `json:"summary"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Summary.Transactions != 3 || body.Summary.Consensed != 1 || body.Summary.Unaccepted != 2 {
		t.Fatalf("unexpected summary: %+v", body.Summary)
	}
	if !strings.Contains(res.Body.String(), `"status":"CONSENSED"`) {
		t.Fatalf("expected textual status, body: %s", res.Body.String())
	}
}

func TestGetViews(t *testing.T) {
	router, _ := testServer(t)

	res := get(router, "/runs/run-0001/views/1")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var view models.MinerView
	if err := json.Unmarshal(res.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if view.Miner != 1 || view.Seen != 3 {
		t.Fatalf("unexpected view: %+v", view)
	}

	res = get(router, "/runs/run-0001/views")
	var views []models.MinerView
	if err := json.Unmarshal(res.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}

	// non-numeric miner ids do not match the route
	if res := get(router, "/runs/run-0001/views/abc"); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := testServer(t)

	res := get(router, "/metrics")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
