package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ncoder/npgsql/pool"
)

// RESTHandler exposes read-only pool observability endpoints.
type RESTHandler struct {
	registry *pool.Registry
}

func NewRESTHandler(registry *pool.Registry) *RESTHandler {
	return &RESTHandler{registry: registry}
}

func (h *RESTHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Route("/api/pools", func(r chi.Router) {
		r.Get("/", h.ListPools)
		r.Get("/{name}", h.GetPool)
	})
}

type HealthResponse struct {
	Status string `json:"status"`
	Pools  int    `json:"pools"`
}

type PoolResponse struct {
	Name     string     `json:"name"`
	Endpoint string     `json:"endpoint"`
	Database string     `json:"database"`
	User     string     `json:"user"`
	Busy     int        `json:"busy"`
	Idle     int        `json:"idle"`
	Waiting  int        `json:"waiting"`
	Stats    pool.Stats `json:"stats"`
}

type ListPoolsResponse struct {
	Pools []PoolResponse `json:"pools"`
	Count int            `json:"count"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *RESTHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Pools:  len(h.registry.Pools()),
	})
}

func (h *RESTHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools := h.registry.Pools()
	out := make([]PoolResponse, 0, len(pools))
	for _, p := range pools {
		out = append(out, poolResponse(p))
	}
	writeJSON(w, http.StatusOK, ListPoolsResponse{Pools: out, Count: len(out)})
}

func (h *RESTHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	// Pool names contain "/", so clients escape them in the path.
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	for _, p := range h.registry.Pools() {
		if p.Name() == name {
			writeJSON(w, http.StatusOK, poolResponse(p))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "pool not found: " + name})
}

func poolResponse(p *pool.Pool) PoolResponse {
	st := p.Status()
	return PoolResponse{
		Name:     p.Name(),
		Endpoint: st.Endpoint,
		Database: st.Database,
		User:     st.User,
		Busy:     st.Busy,
		Idle:     st.Idle,
		Waiting:  st.Waiting,
		Stats:    p.Stats(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
