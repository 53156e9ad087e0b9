package routers

import (
	"github.com/gorilla/mux"

	"dag-consensus-sim/handlers"
	"dag-consensus-sim/metrics"
)

// RegisterRoutes sets up all the HTTP routes for the stored runs
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {

	// Summaries of every stored run
	r.HandleFunc("/runs", h.ListRuns).Methods("GET")

	r.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")

	// Full transaction log, reissues included; ?id= filters by logical id
	r.HandleFunc("/runs/{id}/transactions", h.GetTransactions).Methods("GET")

	r.HandleFunc("/runs/{id}/transactions/{hash}", h.GetTransaction).Methods("GET")

	// Consensus classification and timing per transaction
	r.HandleFunc("/runs/{id}/report", h.GetReport).Methods("GET")

	// Final local views, for inspecting forks and orphans
	r.HandleFunc("/runs/{id}/views", h.GetViews).Methods("GET")
	r.HandleFunc("/runs/{id}/views/{miner:[0-9]+}", h.GetView).Methods("GET")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")
}
