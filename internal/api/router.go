package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(h *Handler, reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("POST /v1/messages", h.SendMessages)
	mux.HandleFunc("GET /v1/messages", h.QueryMessages)
	mux.HandleFunc("GET /v1/messages/scheduled/sent", h.ScheduledSent)
	mux.HandleFunc("POST /v1/messages/outbound", h.SaveOutbound)
	mux.HandleFunc("GET /v1/messages/{uid}", h.GetMessage)
	mux.HandleFunc("PUT /v1/messages/{uid}", h.UpdateMessage)
	mux.HandleFunc("DELETE /v1/messages/{uid}", h.DeleteMessage)

	mux.HandleFunc("GET /v1/gateways", h.ListGateways)
	mux.HandleFunc("POST /v1/gateways", h.SaveGateway)
	mux.HandleFunc("POST /v1/gateways/{id}/default", h.SetDefaultGateway)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	if reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("program-messaging"))
	})

	return mux
}
