package mcpserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riandyrn/otelchi"

	"github.com/longregen/mcptrace/pkg/mcp"
)

// Handler returns an HTTP handler exposing the server: POST /mcp for
// JSON-RPC, GET /healthz, and GET /metrics when a registry is given. The
// router is wrapped in otelchi so every request gets an HTTP server span; the
// tool span opened by the tracing middleware re-parents itself from _meta
// when the client sent one.
func (s *Server) Handler(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(otelchi.Middleware(s.name, otelchi.WithChiRoutes(r)))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	r.Post("/mcp", s.serveJSONRPC)

	return r
}

func (s *Server) serveJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req mcp.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, mcp.NewErrorResponse(nil, mcp.ErrCodeParseError, "parse error: "+err.Error()))
		return
	}

	resp := s.HandleRequest(r.Context(), &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
