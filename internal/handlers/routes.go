package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(r *mux.Router, ph *ProxyHandler) {
	r.HandleFunc("/", ph.HandleGet).Methods(http.MethodGet)
	r.HandleFunc("/", ph.HandlePost).Methods(http.MethodPost)
	r.HandleFunc("/healthz", HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}
