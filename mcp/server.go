package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/gorilla/websocket"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/umbra-intel/shrike/pkg/logging"
	"github.com/umbra-intel/shrike/tool"
)

// Server exposes a tool registry to external MCP clients. The same registry
// the in-process pipeline executes against backs every transport: streamable
// HTTP at /mcp, the websocket wire protocol at /ws, and in-memory transports
// for inproc:// connections.
type Server struct {
	registry *tool.Registry

	// snapshot is the tool set taken at construction. Every transport
	// advertises this same list, so discovery stays consistent even when
	// the live registry changes underneath.
	snapshot []*tool.Tool

	host   string
	port   int
	logger *slog.Logger

	mcpServer  *sdkmcp.Server
	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// NewServer builds a tool server around registry. The advertised tool set is
// snapshotted here, so build the server only after the registry is fully
// populated; tools registered later are executable but not advertised.
// The server is not listening until Start is called; ConnectTransport works
// immediately.
func NewServer(registry *tool.Registry, host string, port int) *Server {
	s := &Server{
		registry: registry,
		snapshot: registry.List(),
		host:     host,
		port:     port,
		logger:   logging.WithComponent("mcp-server"),
	}
	s.mcpServer = sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "shrike-tools",
		Version: "0.1.0",
	}, nil)
	s.registerTools()
	return s
}

// registerTools mirrors the snapshot onto the MCP server. Remote callers see
// the same names and schemas the local pipeline uses.
func (s *Server) registerTools() {
	for _, t := range s.snapshot {
		localName := t.Name
		s.mcpServer.AddTool(&sdkmcp.Tool{
			Name:        localName,
			Description: t.Description,
			InputSchema: schemaFromMap(t.InputSchema()),
		}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			args := toMap(req.Params.Arguments)
			res := s.registry.Execute(ctx, localName, args)
			if !res.Success {
				return &sdkmcp.CallToolResult{
					IsError: true,
					Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: res.Error}},
				}, nil
			}
			payload, err := json.Marshal(res.Payload)
			if err != nil {
				return nil, fmt.Errorf("encode payload for %s: %w", localName, err)
			}
			return &sdkmcp.CallToolResult{
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(payload)}},
			}, nil
		})
	}
}

func schemaFromMap(m map[string]any) *jsonschema.Schema {
	data, err := json.Marshal(m)
	if err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return &jsonschema.Schema{Type: "object"}
	}
	return &schema
}

// ConnectTransport runs an MCP session for the given transport, used by
// inproc:// connections and tests.
func (s *Server) ConnectTransport(ctx context.Context, transport sdkmcp.Transport) error {
	_, err := s.mcpServer.Connect(ctx, transport, nil)
	return err
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
}

// Start begins serving HTTP transports. Calling Start on a running server is
// a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return s.mcpServer
	}, nil))
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running = true

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("tool server failed", "error", err)
		}
	}()

	s.logger.Info("tool server listening", "addr", s.Addr(), "tools", len(s.snapshot))
	return nil
}

// Stop shuts the server down, waiting for in-flight requests. Calling Stop
// on a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	return s.httpServer.Shutdown(ctx)
}

// Running reports whether the HTTP listener is up.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// serveWS speaks the websocket wire protocol documented in ws.go.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(frame wsFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
		}
	}

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "discover":
			write(wsFrame{Type: "manifest", Tools: s.manifest()})
		case "call":
			go func(frame wsFrame) {
				res := s.registry.Execute(r.Context(), frame.Tool, frame.Args)
				write(wsFrame{
					Type:    "result",
					ID:      frame.ID,
					Success: res.Success,
					Payload: res.Payload,
					Error:   res.Error,
				})
			}(frame)
		}
	}
}

func (s *Server) manifest() []wsToolDef {
	defs := make([]wsToolDef, 0, len(s.snapshot))
	for _, t := range s.snapshot {
		defs = append(defs, wsToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}
