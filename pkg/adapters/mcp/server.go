package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/patchbay"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/aretw0/patchbay/pkg/graph"
	"github.com/aretw0/patchbay/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI is the resource holding the current patch.
const GraphURI = "patchbay://graph"

// Catalog lists the node types an agent may add.
type Catalog interface {
	KnownTypes() []string
	Describe(identifier string) (domain.NodeDescription, error)
}

// Server exposes a patch editor as an MCP server.
type Server struct {
	editor     ports.Editor
	catalog    Catalog
	autoCommit bool
	logger     *slog.Logger
	mcpServer  *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithCatalog enables the list_types tool.
func WithCatalog(c Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithAutoCommit controls whether edits are committed right away.
// Defaults to true.
func WithAutoCommit(on bool) Option {
	return func(s *Server) { s.autoCommit = on }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new MCP Server instance.
func NewServer(ed ports.Editor, opts ...Option) *Server {
	s := &Server{
		editor:     ed,
		autoCommit: true,
		logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
		mcpServer:  server.NewMCPServer("patchbay-mcp", strings.TrimSpace(patchbay.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for custom transports.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+hostPort(addr)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func hostPort(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NodeArgs addresses one node.
type NodeArgs struct {
	ID uint32 `json:"id"`
}

type ListNodesArgs struct {
	Parent uint32 `json:"parent"`
}

type AddNodeArgs struct {
	Identifier string `json:"identifier"`
	Parent     uint32 `json:"parent"`
	Name       string `json:"name"`
}

type ArcArgs struct {
	SrcNode uint32 `json:"src_node"`
	SrcPort uint32 `json:"src_port"`
	DstNode uint32 `json:"dst_node"`
	DstPort uint32 `json:"dst_port"`
}

type PropertyArgs struct {
	ID  uint32 `json:"id"`
	Key string `json:"key"`
	// Value is JSON; an empty string removes a custom key.
	Value string `json:"value"`
}

type FlagArgs struct {
	ID uint32 `json:"id"`
	On bool   `json:"on"`
}

type ApplyArgs struct {
	Snapshot string `json:"snapshot"`
}

// NodeResult is returned by node edits. Warning is set when the node was
// inserted as a placeholder.
type NodeResult struct {
	Node    domain.Node `json:"node" jsonschema_description:"The node as stored in the patch"`
	Warning string      `json:"warning,omitempty" jsonschema_description:"Why the node is a placeholder, if it is one"`
}

// EditResult acknowledges edits that return nothing else.
type EditResult struct {
	OK       bool     `json:"ok"`
	Rejected []string `json:"rejected,omitempty" jsonschema_description:"Arcs the patch refused"`
}

type NodeList struct {
	Nodes []domain.Node `json:"nodes"`
}

type ArcList struct {
	Arcs []domain.Arc `json:"arcs"`
}

type TypeList struct {
	Types []domain.NodeDescription `json:"types"`
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_nodes",
		mcp.WithDescription("List the nodes of a graph. Parent 0 is the root graph."),
		mcp.WithNumber("parent", mcp.Description("Id of the graph node to list (default 0)")),
		mcp.WithOutputSchema[NodeList](),
	), mcp.NewStructuredToolHandler(s.handleListNodes))

	s.mcpServer.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Get one node with its ports and properties."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithOutputSchema[NodeResult](),
	), mcp.NewStructuredToolHandler(s.handleGetNode))

	s.mcpServer.AddTool(mcp.NewTool("list_arcs",
		mcp.WithDescription("List the connections of a graph. Parent 0 is the root graph."),
		mcp.WithNumber("parent", mcp.Description("Id of the graph node to list (default 0)")),
		mcp.WithOutputSchema[ArcList](),
	), mcp.NewStructuredToolHandler(s.handleListArcs))

	s.mcpServer.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a node of the given type. Unknown types become placeholders that keep their connections."),
		mcp.WithString("identifier", mcp.Required(), mcp.Description("Type identifier, see list_types")),
		mcp.WithNumber("parent", mcp.Description("Graph node to add into (default 0, the root graph)")),
		mcp.WithString("name", mcp.Description("Display name")),
		mcp.WithOutputSchema[NodeResult](),
	), mcp.NewStructuredToolHandler(s.handleAddNode))

	s.mcpServer.AddTool(mcp.NewTool("remove_node",
		mcp.WithDescription("Remove a node and every connection touching it."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Node id")),
		mcp.WithOutputSchema[EditResult](),
	), mcp.NewStructuredToolHandler(s.handleRemoveNode))

	s.mcpServer.AddTool(mcp.NewTool("connect",
		mcp.WithDescription("Connect an output port to an input port of a node in the same graph."),
		mcp.WithNumber("src_node", mcp.Required()),
		mcp.WithNumber("src_port", mcp.Required(), mcp.Description("Port index on the source node")),
		mcp.WithNumber("dst_node", mcp.Required()),
		mcp.WithNumber("dst_port", mcp.Required(), mcp.Description("Port index on the destination node")),
		mcp.WithOutputSchema[EditResult](),
	), mcp.NewStructuredToolHandler(s.handleConnect))

	s.mcpServer.AddTool(mcp.NewTool("disconnect",
		mcp.WithDescription("Remove a connection."),
		mcp.WithNumber("src_node", mcp.Required()),
		mcp.WithNumber("src_port", mcp.Required()),
		mcp.WithNumber("dst_node", mcp.Required()),
		mcp.WithNumber("dst_port", mcp.Required()),
		mcp.WithOutputSchema[EditResult](),
	), mcp.NewStructuredToolHandler(s.handleDisconnect))

	s.mcpServer.AddTool(mcp.NewTool("set_property",
		mcp.WithDescription("Set a node property. Well-known keys are name, bypass, mute and position; anything else is custom."),
		mcp.WithNumber("id", mcp.Required()),
		mcp.WithString("key", mcp.Required()),
		mcp.WithString("value", mcp.Description("JSON encoded value; empty removes a custom key")),
		mcp.WithOutputSchema[NodeResult](),
	), mcp.NewStructuredToolHandler(s.handleSetProperty))

	s.mcpServer.AddTool(mcp.NewTool("set_bypass",
		mcp.WithDescription("Bypass a node: its inputs pass through unchanged."),
		mcp.WithNumber("id", mcp.Required()),
		mcp.WithBoolean("on", mcp.Required()),
		mcp.WithOutputSchema[EditResult](),
	), mcp.NewStructuredToolHandler(s.handleSetBypass))

	s.mcpServer.AddTool(mcp.NewTool("set_mute",
		mcp.WithDescription("Mute a node: it is skipped and its outputs are silent."),
		mcp.WithNumber("id", mcp.Required()),
		mcp.WithBoolean("on", mcp.Required()),
		mcp.WithOutputSchema[EditResult](),
	), mcp.NewStructuredToolHandler(s.handleSetMute))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the full patch as a snapshot."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, err := s.graphJSON()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("snapshot failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("apply_graph",
		mcp.WithDescription("Replace the whole patch with a snapshot."),
		mcp.WithString("snapshot", mcp.Required(), mcp.Description("JSON snapshot, as returned by get_graph")),
		mcp.WithOutputSchema[EditResult](),
	), mcp.NewStructuredToolHandler(s.handleApplyGraph))

	s.mcpServer.AddTool(mcp.NewTool("commit",
		mcp.WithDescription("Publish pending edits to the audio engine."),
		mcp.WithOutputSchema[EditResult](),
	), mcp.NewStructuredToolHandler(s.handleCommit))

	if s.catalog != nil {
		s.mcpServer.AddTool(mcp.NewTool("list_types",
			mcp.WithDescription("List the node types that can be added."),
			mcp.WithOutputSchema[TypeList](),
		), mcp.NewStructuredToolHandler(s.handleListTypes))
	}
}

func (s *Server) handleListNodes(ctx context.Context, request mcp.CallToolRequest, args ListNodesArgs) (NodeList, error) {
	nodes, err := s.editor.Nodes(domain.NodeID(args.Parent))
	if err != nil {
		return NodeList{}, err
	}
	return NodeList{Nodes: nodes}, nil
}

func (s *Server) handleGetNode(ctx context.Context, request mcp.CallToolRequest, args NodeArgs) (NodeResult, error) {
	n, err := s.editor.Node(domain.NodeID(args.ID))
	if err != nil {
		return NodeResult{}, err
	}
	return NodeResult{Node: n}, nil
}

func (s *Server) handleListArcs(ctx context.Context, request mcp.CallToolRequest, args ListNodesArgs) (ArcList, error) {
	arcs, err := s.editor.Arcs(domain.NodeID(args.Parent))
	if err != nil {
		return ArcList{}, err
	}
	return ArcList{Arcs: arcs}, nil
}

func (s *Server) handleAddNode(ctx context.Context, request mcp.CallToolRequest, args AddNodeArgs) (NodeResult, error) {
	if args.Identifier == "" {
		return NodeResult{}, errors.New("identifier is required")
	}
	desc := domain.NodeDescription{
		Identifier: args.Identifier,
		Properties: domain.Properties{Name: args.Name},
	}
	n, err := s.editor.AddNode(desc, domain.NodeID(args.Parent))
	res := NodeResult{Node: n}
	var ierr *domain.InstantiationError
	switch {
	case errors.As(err, &ierr):
		res.Warning = ierr.Error()
	case err != nil:
		return NodeResult{}, err
	}
	return res, s.commit()
}

func (s *Server) handleRemoveNode(ctx context.Context, request mcp.CallToolRequest, args NodeArgs) (EditResult, error) {
	if err := s.editor.RemoveNode(domain.NodeID(args.ID)); err != nil {
		return EditResult{}, err
	}
	return EditResult{OK: true}, s.commit()
}

func (s *Server) handleConnect(ctx context.Context, request mcp.CallToolRequest, args ArcArgs) (EditResult, error) {
	_, err := s.editor.Connect(domain.NodeID(args.SrcNode), args.SrcPort, domain.NodeID(args.DstNode), args.DstPort)
	if err != nil {
		return EditResult{}, describeRejection(err)
	}
	return EditResult{OK: true}, s.commit()
}

func (s *Server) handleDisconnect(ctx context.Context, request mcp.CallToolRequest, args ArcArgs) (EditResult, error) {
	arc := domain.NewArc(domain.NodeID(args.SrcNode), args.SrcPort, domain.NodeID(args.DstNode), args.DstPort)
	if err := s.editor.Disconnect(arc); err != nil {
		return EditResult{}, err
	}
	return EditResult{OK: true}, s.commit()
}

func (s *Server) handleSetProperty(ctx context.Context, request mcp.CallToolRequest, args PropertyArgs) (NodeResult, error) {
	var value any
	if args.Value != "" {
		if err := json.Unmarshal([]byte(args.Value), &value); err != nil {
			return NodeResult{}, fmt.Errorf("value is not valid JSON: %w", err)
		}
	}
	id := domain.NodeID(args.ID)
	if err := s.editor.SetProperty(id, args.Key, value); err != nil {
		return NodeResult{}, err
	}
	n, err := s.editor.Node(id)
	if err != nil {
		return NodeResult{}, err
	}
	return NodeResult{Node: n}, nil
}

func (s *Server) handleSetBypass(ctx context.Context, request mcp.CallToolRequest, args FlagArgs) (EditResult, error) {
	if err := s.editor.SetBypass(domain.NodeID(args.ID), args.On); err != nil {
		return EditResult{}, err
	}
	return EditResult{OK: true}, nil
}

func (s *Server) handleSetMute(ctx context.Context, request mcp.CallToolRequest, args FlagArgs) (EditResult, error) {
	if err := s.editor.SetMute(domain.NodeID(args.ID), args.On); err != nil {
		return EditResult{}, err
	}
	return EditResult{OK: true}, nil
}

func (s *Server) handleApplyGraph(ctx context.Context, request mcp.CallToolRequest, args ApplyArgs) (EditResult, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(args.Snapshot), &snap); err != nil {
		return EditResult{}, fmt.Errorf("snapshot is not valid JSON: %w", err)
	}
	res := EditResult{OK: true}
	if err := s.editor.ApplySnapshot(&snap); err != nil {
		if errors.Is(err, graph.ErrInvalidSnapshot) {
			return EditResult{}, err
		}
		res.Rejected = strings.Split(err.Error(), "\n")
	}
	return res, s.commit()
}

func (s *Server) handleCommit(ctx context.Context, request mcp.CallToolRequest, args struct{}) (EditResult, error) {
	if err := s.editor.Commit(); err != nil {
		return EditResult{}, err
	}
	return EditResult{OK: true}, nil
}

func (s *Server) handleListTypes(ctx context.Context, request mcp.CallToolRequest, args struct{}) (TypeList, error) {
	out := TypeList{Types: []domain.NodeDescription{}}
	for _, id := range s.catalog.KnownTypes() {
		if d, err := s.catalog.Describe(id); err == nil {
			out.Types = append(out.Types, d)
		}
	}
	return out, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Current Patch",
		mcp.WithResourceDescription("The patch as a snapshot, transient properties removed"),
		mcp.WithMIMEType("application/json"),
	), s.readGraph)
}

func (s *Server) readGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := s.graphJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot patch: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GraphURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) graphJSON() ([]byte, error) {
	return json.Marshal(s.editor.Snapshot(domain.SanitizeProperties))
}

func (s *Server) commit() error {
	if !s.autoCommit {
		return nil
	}
	if err := s.editor.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// describeRejection prefixes a rejected arc with its reason code so agents
// can tell a cycle from a type mismatch.
func describeRejection(err error) error {
	if r := domain.ReasonOf(err); r != domain.ReasonNone {
		return fmt.Errorf("%s: %w", r, err)
	}
	return err
}
