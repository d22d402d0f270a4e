package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	patchhttp "github.com/aretw0/patchbay/pkg/adapters/http"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/aretw0/patchbay/pkg/nodes"
	"github.com/aretw0/patchbay/pkg/registry"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const secret = "0123456789abcdef0123456789abcdef"

func newManager(t *testing.T) (*graph.Manager, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterProvider(nodes.NewProvider()))
	return graph.New(reg), reg
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func addNode(t *testing.T, h http.Handler, identifier string) domain.Node {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/nodes", patchhttp.AddNodeRequest{Identifier: identifier})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp patchhttp.NodeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Node
}

func TestServer_Health(t *testing.T) {
	m, _ := newManager(t)
	h := patchhttp.NewHandler(m)

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestServer_EditPatch(t *testing.T) {
	m, reg := newManager(t)
	h := patchhttp.NewHandler(m, patchhttp.WithCatalog(reg))

	in := addNode(t, h, domain.TypeAudioInput)
	out := addNode(t, h, domain.TypeAudioOutput)

	t.Run("Connect", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/arcs", patchhttp.ArcRequest{SrcNode: in.ID, SrcPort: 0, DstNode: out.ID, DstPort: 0})
		assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		rr = do(t, h, http.MethodGet, "/arcs", nil)
		var arcs []domain.Arc
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &arcs))
		assert.Equal(t, []domain.Arc{domain.NewArc(in.ID, 0, out.ID, 0)}, arcs)
		assert.False(t, m.Dirty(), "edits are committed right away")
	})

	t.Run("Duplicate Arc Conflicts", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/arcs", patchhttp.ArcRequest{SrcNode: in.ID, SrcPort: 0, DstNode: out.ID, DstPort: 0})
		assert.Equal(t, http.StatusConflict, rr.Code)
		var resp patchhttp.ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, string(domain.ReasonDuplicate), resp.Reason)
	})

	t.Run("Unknown Node", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/nodes/999", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Invalid Request", func(t *testing.T) {
		rr := do(t, h, http.MethodPost, "/arcs", patchhttp.ArcRequest{SrcNode: in.ID})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "DstNode")
	})

	t.Run("Disconnect", func(t *testing.T) {
		rr := do(t, h, http.MethodDelete, "/arcs", patchhttp.ArcRequest{SrcNode: in.ID, SrcPort: 0, DstNode: out.ID, DstPort: 0})
		assert.Equal(t, http.StatusNoContent, rr.Code)
		rr = do(t, h, http.MethodDelete, "/arcs", patchhttp.ArcRequest{SrcNode: in.ID, SrcPort: 0, DstNode: out.ID, DstPort: 0})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Types", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/types", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var descs []domain.NodeDescription
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &descs))
		assert.Len(t, descs, len(reg.KnownTypes()))
	})

	t.Run("Remove Node", func(t *testing.T) {
		rr := do(t, h, http.MethodDelete, "/nodes/"+out.ID.String(), nil)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		_, err := m.Node(out.ID)
		assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	})
}

func TestServer_RejectsCycle(t *testing.T) {
	m, _ := newManager(t)
	h := patchhttp.NewHandler(m)

	a := addNode(t, h, domain.TypeAudioRouter)
	b := addNode(t, h, domain.TypeAudioRouter)

	// Router ports are four inputs followed by four outputs.
	rr := do(t, h, http.MethodPost, "/arcs", patchhttp.ArcRequest{SrcNode: a.ID, SrcPort: 4, DstNode: b.ID, DstPort: 0})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPost, "/arcs", patchhttp.ArcRequest{SrcNode: b.ID, SrcPort: 4, DstNode: a.ID, DstPort: 0})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), string(domain.ReasonWouldCycle))
}

func TestServer_UnknownTypeIsPlaceholder(t *testing.T) {
	m, _ := newManager(t)
	h := patchhttp.NewHandler(m)

	rr := do(t, h, http.MethodPost, "/nodes", patchhttp.AddNodeRequest{Identifier: "vendor.unknown", Name: "Ghost"})
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp patchhttp.NodeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Warning)
	assert.True(t, resp.Properties.Missing)
	assert.Equal(t, "Ghost", resp.Properties.Name)
}

func TestServer_ReplaceGraph(t *testing.T) {
	m, _ := newManager(t)
	h := patchhttp.NewHandler(m)

	snap := &domain.Snapshot{
		Version: domain.SnapshotVersion,
		Nodes: []domain.NodeSnapshot{
			{ID: 1, Identifier: domain.TypeAudioInput},
			{ID: 2, Identifier: domain.TypeAudioOutput},
		},
		Arcs: []domain.Arc{domain.NewArc(1, 0, 2, 0), domain.NewArc(1, 0, 7, 0)},
	}

	rr := do(t, h, http.MethodPut, "/graph", snap)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp patchhttp.ApplyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Nodes)
	assert.Len(t, resp.Rejected, 1)
	assert.Equal(t, 2, m.Len())

	rr = do(t, h, http.MethodPut, "/graph", &domain.Snapshot{Version: 99})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 2, m.Len(), "an invalid snapshot changes nothing")

	rr = do(t, h, http.MethodGet, "/graph", nil)
	var got domain.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 2, got.CountNodes())
}

func TestServer_Auth(t *testing.T) {
	m, _ := newManager(t)
	h := patchhttp.NewHandler(m, patchhttp.WithAuth([]byte(secret)))

	t.Run("Health Is Public", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)
	})

	t.Run("Missing Token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/nodes", nil).Code)
	})

	t.Run("Valid Token", func(t *testing.T) {
		tok, err := patchhttp.IssueToken([]byte(secret), "tester", time.Minute)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		tok, err := patchhttp.IssueToken([]byte(strings.Repeat("x", 32)), "tester", time.Minute)
		require.NoError(t, err)
		rr := do(t, h, http.MethodGet, "/nodes?token="+tok, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("Expired Token", func(t *testing.T) {
		tok, err := patchhttp.IssueToken([]byte(secret), "tester", -time.Minute)
		require.NoError(t, err)
		_, err = patchhttp.ParseToken([]byte(secret), tok)
		assert.ErrorIs(t, err, patchhttp.ErrInvalidToken)
	})

	t.Run("Short Secret", func(t *testing.T) {
		_, err := patchhttp.IssueToken([]byte("short"), "tester", time.Minute)
		assert.ErrorIs(t, err, patchhttp.ErrShortSecret)
	})
}

func TestServer_Events(t *testing.T) {
	m, _ := newManager(t)
	srv := httptest.NewServer(patchhttp.NewHandler(m, patchhttp.WithEvents(m.Events())))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?types=topology_changed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)
	_, _ = reader.ReadString('\n') // data: connected
	_, _ = reader.ReadString('\n')

	n, err := m.AddNode(domain.NodeDescription{Identifier: domain.TypeMidiMonitor}, domain.RootID)
	require.NoError(t, err)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: topology_changed\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var ev domain.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
	assert.Equal(t, domain.ChangeNodeAdded, ev.Change)
	assert.Equal(t, n.ID, ev.Node)
}

func TestServer_OpenAPI(t *testing.T) {
	m, reg := newManager(t)
	h := patchhttp.NewHandler(m,
		patchhttp.WithCatalog(reg),
		patchhttp.WithAuth([]byte(secret)),
		patchhttp.WithMetrics(http.NotFoundHandler()))

	rr := do(t, h, http.MethodGet, "/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, rr.Code, "docs need no token")
	assert.Equal(t, "text/yaml", rr.Header().Get("Content-Type"))

	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(rr.Body.Bytes(), &doc))
	assert.True(t, strings.HasPrefix(doc.OpenAPI, "3."))

	t.Run("Every Route Is Documented", func(t *testing.T) {
		routes, ok := h.(chi.Routes)
		require.True(t, ok)
		err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			if route != "/" {
				route = strings.TrimSuffix(route, "/")
			}
			ops, ok := doc.Paths[route]
			if assert.True(t, ok, "path %s missing", route) {
				assert.Contains(t, ops, strings.ToLower(method), "%s %s missing", method, route)
			}
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Swagger UI", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/swagger", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "/openapi.yaml")
	})
}
