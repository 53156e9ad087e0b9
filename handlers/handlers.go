package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dag-consensus-sim/logger"
	"dag-consensus-sim/models"
	"dag-consensus-sim/report"
	"dag-consensus-sim/repository"
)

// Handler contains the HTTP handlers for the stored simulation runs
type Handler struct {
	Repo repository.RunRepositoryInterface
}

// NewHandler creates and returns a new Handler instance
func NewHandler(repo repository.RunRepositoryInterface) *Handler {
	return &Handler{Repo: repo}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// fail maps a repository error to a status and logs it
func fail(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, repository.ErrNotFound) {
		status = http.StatusNotFound
		logger.Logger.Debug(msg, zap.Error(err))
	} else {
		logger.Logger.Error(msg, zap.Error(err))
	}
	respond(w, status, map[string]string{"error": err.Error()})
}

// ListRuns handles GET requests for every stored run summary
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Repo.GetAllRuns()
	if err != nil {
		fail(w, "Failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	respond(w, http.StatusOK, runs)
}

// GetRun handles GET requests for one run summary
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Repo.GetRun(mux.Vars(r)["id"])
	if err != nil {
		fail(w, "Failed to get run", err)
		return
	}
	respond(w, http.StatusOK, run)
}

// GetTransactions returns the transaction log of a run. With ?id= it keeps
// only the attempts carrying that logical id.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Repo.GetTransactions(mux.Vars(r)["id"])
	if err != nil {
		fail(w, "Failed to get transactions", err)
		return
	}

	if raw := r.URL.Query().Get("id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"error": "Invalid transaction id"})
			return
		}
		kept := txs[:0]
		for _, tx := range txs {
			if tx.ID == id {
				kept = append(kept, tx)
			}
		}
		txs = kept
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	respond(w, http.StatusOK, txs)
}

// GetTransaction handles GET requests for one transaction by hash
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tx, err := h.Repo.GetTransaction(vars["id"], models.Hash(vars["hash"]))
	if err != nil {
		fail(w, "Failed to get transaction", err)
		return
	}
	respond(w, http.StatusOK, tx)
}

// GetReport classifies the run's transactions and times consensus
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.Repo.GetRun(id)
	if err != nil {
		fail(w, "Failed to get run", err)
		return
	}
	txs, err := h.Repo.GetTransactions(id)
	if err != nil {
		fail(w, "Failed to get transactions", err)
		return
	}

	rep := report.Build(run.Miners, txs)
	logger.Logger.Debug("Built report", zap.String("run", id), zap.Int("transactions", rep.Summary.Transactions))
	respond(w, http.StatusOK, rep)
}

// GetViews handles GET requests for the final views of every miner
func (h *Handler) GetViews(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.Repo.GetRun(id); err != nil {
		fail(w, "Failed to get run", err)
		return
	}
	views, err := h.Repo.GetViews(id)
	if err != nil {
		fail(w, "Failed to get views", err)
		return
	}
	if views == nil {
		views = []models.MinerView{}
	}
	respond(w, http.StatusOK, views)
}

// GetView handles GET requests for the final view of one miner
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	miner, err := strconv.Atoi(vars["miner"])
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "Invalid miner id"})
		return
	}
	view, err := h.Repo.GetView(vars["id"], miner)
	if err != nil {
		fail(w, "Failed to get view", err)
		return
	}
	respond(w, http.StatusOK, view)
}
