package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrewwormald/stepflow"
)

// newRouter serves the operational endpoints of a running host.
func newRouter(w *stepflow.Workflow) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	r.Get("/states", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(rw).Encode(w.States())
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
