package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/patchbay"
	"github.com/aretw0/patchbay/internal/runtime"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Catalog lists the node types a client may add.
type Catalog interface {
	KnownTypes() []string
	Describe(identifier string) (domain.NodeDescription, error)
}

// StatsSource is satisfied by *runtime.Engine.
type StatsSource interface {
	Stats() runtime.Stats
}

// Server exposes one patch over HTTP.
type Server struct {
	Editor  ports.Editor
	Catalog Catalog
	Stats   StatsSource
	Events  *graph.EventBus

	autoCommit bool
	secret     []byte
	metrics    http.Handler
	logger     *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithCatalog enables GET /types.
func WithCatalog(c Catalog) Option {
	return func(s *Server) { s.Catalog = c }
}

// WithStats enables GET /stats.
func WithStats(src StatsSource) Option {
	return func(s *Server) { s.Stats = src }
}

// WithEvents enables GET /events.
func WithEvents(b *graph.EventBus) Option {
	return func(s *Server) { s.Events = b }
}

// WithAutoCommit controls whether every successful edit is committed to the
// engine right away. Defaults to true.
func WithAutoCommit(on bool) Option {
	return func(s *Server) { s.autoCommit = on }
}

// WithAuth requires an HS256 bearer token signed with secret on every
// route except /health.
func WithAuth(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler creates the HTTP handler for ed.
func NewHandler(ed ports.Editor, opts ...Option) http.Handler {
	s := &Server{
		Editor:     ed,
		autoCommit: true,
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)
	r.Get("/swagger", s.GetSwagger)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		if len(s.secret) > 0 {
			r.Use(BearerAuth(s.secret))
		}
		r.Get("/info", s.GetInfo)
		r.Get("/types", s.ListTypes)
		r.Get("/stats", s.GetStats)
		r.Get("/events", s.SubscribeEvents)

		r.Get("/nodes", s.ListNodes)
		r.Post("/nodes", s.AddNode)
		r.Route("/nodes/{id}", func(r chi.Router) {
			r.Get("/", s.GetNode)
			r.Delete("/", s.RemoveNode)
			r.Patch("/properties", s.SetProperty)
		})

		r.Get("/arcs", s.ListArcs)
		r.Post("/arcs", s.Connect)
		r.Delete("/arcs", s.Disconnect)

		r.Get("/graph", s.GetGraph)
		r.Put("/graph", s.PutGraph)
		r.Post("/commit", s.Commit)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "patchbay-http",
		"version": strings.TrimSpace(patchbay.Version),
	})
}

// ListTypes handles GET /types.
func (s *Server) ListTypes(w http.ResponseWriter, r *http.Request) {
	if s.Catalog == nil {
		http.Error(w, "type catalog not available", http.StatusNotImplemented)
		return
	}
	descs := []domain.NodeDescription{}
	for _, id := range s.Catalog.KnownTypes() {
		if d, err := s.Catalog.Describe(id); err == nil {
			descs = append(descs, d)
		}
	}
	writeJSON(w, http.StatusOK, descs)
}

// GetStats handles GET /stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	if s.Stats == nil {
		http.Error(w, "engine stats not available", http.StatusNotImplemented)
		return
	}
	writeJSON(w, http.StatusOK, s.Stats.Stats())
}

// ListNodes handles GET /nodes?parent=.
func (s *Server) ListNodes(w http.ResponseWriter, r *http.Request) {
	parent, err := parentParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	nodes, err := s.Editor.Nodes(parent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// GetNode handles GET /nodes/{id}.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, err := s.Editor.Node(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// AddNode handles POST /nodes. A node whose type cannot be instantiated is
// still created as a placeholder; the response then carries a warning.
func (s *Server) AddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !s.decode(w, r, &req) {
		return
	}

	desc := domain.NodeDescription{
		Identifier: req.Identifier,
		Ports:      req.Ports,
		Properties: domain.Properties{Name: req.Name, Custom: req.Custom},
	}
	n, err := s.Editor.AddNode(desc, req.Parent)
	resp := NodeResponse{Node: n}
	var ierr *domain.InstantiationError
	switch {
	case errors.As(err, &ierr):
		resp.Warning = ierr.Error()
	case err != nil:
		s.writeError(w, err)
		return
	}
	if !s.commit(w) {
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// RemoveNode handles DELETE /nodes/{id}.
func (s *Server) RemoveNode(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Editor.RemoveNode(id); err != nil {
		s.writeError(w, err)
		return
	}
	if !s.commit(w) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetProperty handles PATCH /nodes/{id}/properties.
func (s *Server) SetProperty(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req PropertyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.Editor.SetProperty(id, req.Key, req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	n, err := s.Editor.Node(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ListArcs handles GET /arcs?parent=.
func (s *Server) ListArcs(w http.ResponseWriter, r *http.Request) {
	parent, err := parentParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	arcs, err := s.Editor.Arcs(parent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, arcs)
}

// Connect handles POST /arcs.
func (s *Server) Connect(w http.ResponseWriter, r *http.Request) {
	var req ArcRequest
	if !s.decode(w, r, &req) {
		return
	}
	arc, err := s.Editor.Connect(req.SrcNode, req.SrcPort, req.DstNode, req.DstPort)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !s.commit(w) {
		return
	}
	writeJSON(w, http.StatusCreated, arc)
}

// Disconnect handles DELETE /arcs.
func (s *Server) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req ArcRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.Editor.Disconnect(req.Arc()); err != nil {
		s.writeError(w, err)
		return
	}
	if !s.commit(w) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetGraph handles GET /graph. Transient properties are stripped.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Editor.Snapshot(domain.SanitizeProperties))
}

// PutGraph handles PUT /graph, replacing the whole patch. Arcs the graph
// rejects are listed in the response; the rest is applied.
func (s *Server) PutGraph(w http.ResponseWriter, r *http.Request) {
	var snap domain.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	err := s.Editor.ApplySnapshot(&snap)
	if errors.Is(err, graph.ErrInvalidSnapshot) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	resp := ApplyResponse{Nodes: snap.CountNodes()}
	if err != nil {
		resp.Rejected = strings.Split(err.Error(), "\n")
	}
	if !s.commit(w) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Commit handles POST /commit.
func (s *Server) Commit(w http.ResponseWriter, r *http.Request) {
	if err := s.Editor.Commit(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) commit(w http.ResponseWriter) bool {
	if !s.autoCommit {
		return true
	}
	if err := s.Editor.Commit(); err != nil {
		s.writeError(w, fmt.Errorf("commit: %w", err))
		return false
	}
	return true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		return false
	}
	if err := Validate(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: err.Error()}
	switch {
	case errors.Is(err, domain.ErrNodeNotFound),
		errors.Is(err, domain.ErrPortNotFound),
		errors.Is(err, domain.ErrArcNotFound),
		errors.Is(err, domain.ErrNotAGraph),
		errors.Is(err, domain.ErrSnapshotNotFound):
		status = http.StatusNotFound
	case domain.ReasonOf(err) != domain.ReasonNone:
		status = http.StatusConflict
		resp.Reason = string(domain.ReasonOf(err))
	case errors.Is(err, graph.ErrInvalidProperty):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func idParam(r *http.Request) (domain.NodeID, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid node id %q", chi.URLParam(r, "id"))
	}
	return domain.NodeID(v), nil
}

func parentParam(r *http.Request) (domain.NodeID, error) {
	p := r.URL.Query().Get("parent")
	if p == "" {
		return domain.RootID, nil
	}
	v, err := strconv.ParseUint(p, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid parent id %q", p)
	}
	return domain.NodeID(v), nil
}
