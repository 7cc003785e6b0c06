// Package mcp connects shrike to external tool providers over the Model
// Context Protocol and exposes the local registry as a tool server. Provider
// URLs select the transport by scheme: stdio:// launches a subprocess,
// http:// and https:// use the streamable HTTP transport, ws:// and wss://
// speak the websocket wire protocol, and inproc:// binds to an in-process
// server for tests and embedded use.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	shrikeerrors "github.com/umbra-intel/shrike/errors"
	"github.com/umbra-intel/shrike/pkg/logging"
	"github.com/umbra-intel/shrike/tool"
)

// Kind names the transport behind a provider connection.
type Kind string

const (
	KindStdio  Kind = "stdio"
	KindHTTP   Kind = "http"
	KindWS     Kind = "ws"
	KindInProc Kind = "inproc"
)

// Options tunes a provider connection.
type Options struct {
	// Timeout bounds individual discovery and call operations.
	Timeout time.Duration
	// MaxRetries is passed to the streamable HTTP transport.
	MaxRetries int
	HTTPClient *http.Client
	// InProc backs inproc:// URLs with a local server.
	InProc *Server
	Logger *slog.Logger
}

// Conn is a live connection to one tool provider. It implements
// tool.Provider.
type Conn struct {
	name    string
	rawURL  string
	kind    Kind
	timeout time.Duration
	logger  *slog.Logger

	session *sdkmcp.ClientSession
	ws      *wsConn

	connected atomic.Bool
}

// Connect dials the provider named name at rawURL. The scheme picks the
// transport; an unrecognized scheme fails with ErrUnsupportedTransport.
func Connect(ctx context.Context, name, rawURL string, opts Options) (*Conn, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("mcp").With("provider", name)
	}

	kind, err := transportKind(rawURL)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		name:    name,
		rawURL:  rawURL,
		kind:    kind,
		timeout: opts.Timeout,
		logger:  logger,
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	switch kind {
	case KindStdio:
		err = c.connectStdio(dialCtx, rawURL)
	case KindHTTP:
		err = c.connectStreamable(dialCtx, rawURL, opts)
	case KindWS:
		c.ws, err = dialWS(dialCtx, rawURL, opts.Timeout)
	case KindInProc:
		err = c.connectInProc(dialCtx, opts.InProc)
	}
	if err != nil {
		return nil, fmt.Errorf("connect provider %s: %w", name, err)
	}

	c.connected.Store(true)
	logger.Info("provider connected", "url", rawURL, "transport", kind)
	return c, nil
}

func transportKind(rawURL string) (Kind, error) {
	scheme, _, ok := strings.Cut(rawURL, "://")
	if !ok {
		return "", fmt.Errorf("provider url %q: %w", rawURL, shrikeerrors.ErrUnsupportedTransport)
	}
	switch scheme {
	case "stdio":
		return KindStdio, nil
	case "http", "https":
		return KindHTTP, nil
	case "ws", "wss":
		return KindWS, nil
	case "inproc":
		return KindInProc, nil
	default:
		return "", fmt.Errorf("scheme %q: %w", scheme, shrikeerrors.ErrUnsupportedTransport)
	}
}

func clientImplementation() *sdkmcp.Implementation {
	return &sdkmcp.Implementation{Name: "shrike", Version: "0.1.0"}
}

func (c *Conn) connectStdio(ctx context.Context, rawURL string) error {
	command := strings.TrimPrefix(rawURL, "stdio://")
	if command == "" {
		return fmt.Errorf("stdio url has no command")
	}
	parts := strings.Fields(command)
	cmd := exec.Command(parts[0], parts[1:]...)

	client := sdkmcp.NewClient(clientImplementation(), nil)
	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return err
	}
	c.session = session
	return nil
}

func (c *Conn) connectStreamable(ctx context.Context, rawURL string, opts Options) error {
	transport := &sdkmcp.StreamableClientTransport{Endpoint: rawURL}
	if opts.HTTPClient != nil {
		transport.HTTPClient = opts.HTTPClient
	}
	if opts.MaxRetries > 0 {
		transport.MaxRetries = opts.MaxRetries
	}

	client := sdkmcp.NewClient(clientImplementation(), nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	c.session = session
	return nil
}

func (c *Conn) connectInProc(ctx context.Context, server *Server) error {
	if server == nil {
		return fmt.Errorf("inproc url requires a local server")
	}
	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	if err := server.ConnectTransport(ctx, serverTransport); err != nil {
		return err
	}

	client := sdkmcp.NewClient(clientImplementation(), nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return err
	}
	c.session = session
	return nil
}

// Name returns the configured provider name.
func (c *Conn) Name() string { return c.name }

// URL returns the provider endpoint as configured.
func (c *Conn) URL() string { return c.rawURL }

// Transport reports which transport the connection uses.
func (c *Conn) Transport() Kind { return c.kind }

// Connected reports whether the connection is usable.
func (c *Conn) Connected() bool { return c.connected.Load() }

// Tools discovers the provider's tools. Each returned tool carries a handler
// that forwards calls over this connection, and Origin set to the provider
// name so the registry can evict them on reconnect.
func (c *Conn) Tools(ctx context.Context) ([]*tool.Tool, error) {
	if !c.Connected() {
		return nil, fmt.Errorf("provider %s: %w", c.name, shrikeerrors.ErrNotConnected)
	}
	if c.kind == KindWS {
		return c.wsTools(ctx)
	}
	return c.sessionTools(ctx)
}

func (c *Conn) sessionTools(ctx context.Context) ([]*tool.Tool, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		defs   []*sdkmcp.Tool
		cursor string
	)
	for {
		res, err := c.session.ListTools(opCtx, &sdkmcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		defs = append(defs, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	tools := make([]*tool.Tool, 0, len(defs))
	for _, def := range defs {
		if def == nil {
			continue
		}
		remoteName := def.Name
		tools = append(tools, &tool.Tool{
			Name:        remoteName,
			Description: def.Description,
			Parameters:  parametersFromSchema(def.InputSchema),
			Origin:      c.name,
			Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return c.call(ctx, remoteName, args)
			},
		})
	}
	return tools, nil
}

// call invokes a remote tool and decodes its reply into a payload map.
func (c *Conn) call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if args == nil {
		args = make(map[string]any)
	}
	result, err := c.session.CallTool(opCtx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", name, c.name, err)
	}

	text := normalizeContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool returned error without message"
		}
		return nil, fmt.Errorf("remote tool %s: %s", name, text)
	}
	return payloadFromText(text), nil
}

// payloadFromText best-effort decodes a tool reply. JSON objects pass
// through; anything else is wrapped under "content".
func payloadFromText(text string) map[string]any {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			return payload
		}
	}
	return map[string]any{"content": text}
}

func normalizeContent(content []sdkmcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, item := range content {
		switch v := item.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := item.MarshalJSON(); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	if !c.connected.Swap(false) {
		return nil
	}
	if c.ws != nil {
		return c.ws.close()
	}
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
