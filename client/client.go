// Package client aggregates built-in tools and external provider tools
// behind one registry-backed execution surface. Provider failures never fail
// initialization: unreachable providers are logged, skipped, and retried via
// Reconnect.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/umbra-intel/shrike/mcp"
	"github.com/umbra-intel/shrike/osint"
	"github.com/umbra-intel/shrike/pkg/logging"
	"github.com/umbra-intel/shrike/pkg/telemetry"
	"github.com/umbra-intel/shrike/store"
	"github.com/umbra-intel/shrike/tool"
)

// Provider names one external tool provider and its endpoint.
type Provider struct {
	Name string
	URL  string
}

// Options configures the tool client.
type Options struct {
	// Builtins are registered before any provider connects so local names
	// win collisions.
	Builtins []*tool.Tool
	// Timeout and MaxRetries apply per provider connection.
	Timeout    time.Duration
	MaxRetries int
	// Cache, when set, serves repeated successful calls within its TTL.
	Cache *store.ResultCache
	// InProc backs inproc:// provider URLs.
	InProc *mcp.Server
	Logger *slog.Logger
}

// ToolClient owns the tool registry and the provider connections feeding it.
type ToolClient struct {
	registry  *tool.Registry
	providers []Provider
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer

	mu    sync.RWMutex
	conns map[string]*mcp.Conn
}

// New creates a tool client around registry. Call Initialize before
// executing tools.
func New(registry *tool.Registry, providers []Provider, opts Options) *ToolClient {
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("client")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &ToolClient{
		registry:  registry,
		providers: providers,
		opts:      opts,
		logger:    logger,
		tracer:    telemetry.Tracer("shrike/client"),
		conns:     make(map[string]*mcp.Conn),
	}
}

// Registry exposes the underlying registry, for serving the same tool set.
func (c *ToolClient) Registry() *tool.Registry {
	return c.registry
}

// Initialize registers built-in tools and then connects each configured
// provider in order. A provider that fails to connect or discover is skipped
// with a warning; the client stays usable with whatever connected.
func (c *ToolClient) Initialize(ctx context.Context) error {
	for _, t := range c.opts.Builtins {
		if err := c.registry.Register(t); err != nil {
			return fmt.Errorf("register builtin %s: %w", t.Name, err)
		}
	}

	for _, p := range c.providers {
		if err := c.connectProvider(ctx, p); err != nil {
			c.logger.Warn("provider unavailable, continuing without it",
				"provider", p.Name, "url", p.URL, "error", err)
		}
	}

	c.logger.Info("tool client initialized",
		"total_tools", c.registry.Len(),
		"providers", len(c.providers),
		"active_providers", c.activeCount())
	return nil
}

func (c *ToolClient) connectProvider(ctx context.Context, p Provider) error {
	conn, err := mcp.Connect(ctx, p.Name, p.URL, mcp.Options{
		Timeout:    c.opts.Timeout,
		MaxRetries: c.opts.MaxRetries,
		InProc:     c.opts.InProc,
	})
	if err != nil {
		return err
	}

	tools, err := conn.Tools(ctx)
	if err != nil {
		conn.Close()
		return fmt.Errorf("discover tools: %w", err)
	}

	registered := 0
	for _, t := range tools {
		if err := c.registry.Register(t); err != nil {
			// Collision with an earlier registration; first one wins.
			c.logger.Warn("skipping colliding tool", "provider", p.Name, "tool", t.Name)
			continue
		}
		registered++
	}

	c.mu.Lock()
	c.conns[p.Name] = conn
	c.mu.Unlock()

	c.logger.Info("provider tools registered", "provider", p.Name, "tools", registered)
	return nil
}

// Execute runs a tool by name and always returns the uniform envelope.
// Unknown tools produce a failure envelope, not an error. The failure string,
// if any, is recorded on the span.
func (c *ToolClient) Execute(ctx context.Context, name string, args map[string]any) *tool.Result {
	ctx, span := c.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", name)))
	var execErr error
	defer func() { telemetry.End(span, execErr) }()

	var cacheKey string
	if c.opts.Cache != nil {
		cacheKey = store.CacheKey(name, args)
		if cached := c.opts.Cache.Get(ctx, cacheKey); cached != nil {
			span.SetAttributes(attribute.Bool("tool.cached", true))
			return cached
		}
	}

	res := c.registry.Execute(ctx, name, args)
	span.SetAttributes(attribute.Bool("tool.success", res.Success))
	if !res.Success {
		execErr = errors.New(res.Error)
	}

	if c.opts.Cache != nil && res.Success {
		c.opts.Cache.Set(ctx, cacheKey, res)
	}
	return res
}

// ExecuteSync runs a tool without a caller-supplied context, bounded by
// timeout. Useful for synchronous call sites like CLI handlers.
func (c *ToolClient) ExecuteSync(name string, args map[string]any, timeout time.Duration) *tool.Result {
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan *tool.Result, 1)
	go func() {
		done <- c.Execute(ctx, name, args)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return &tool.Result{
			Tool:  name,
			Args:  args,
			Error: fmt.Sprintf("tool %s timed out after %s", name, timeout),
		}
	}
}

// Status describes the client's connections and tool inventory.
type Status struct {
	Connections       int                       `json:"connections"`
	ActiveConnections int                       `json:"active_connections"`
	TotalTools        int                       `json:"total_tools"`
	BuiltinTools      int                       `json:"builtin_tools"`
	ExternalTools     int                       `json:"external_tools"`
	Providers         map[string]ProviderStatus `json:"providers"`
}

// ProviderStatus is the per-provider slice of Status.
type ProviderStatus struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	Tools     int    `json:"tools"`
}

// GetStatus reports connection and tool counts. Configured but unreachable
// providers appear with Connected=false.
func (c *ToolClient) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	builtin := c.registry.CountByOrigin(osint.OriginBuiltin)
	status := Status{
		Connections:   len(c.providers),
		TotalTools:    c.registry.Len(),
		BuiltinTools:  builtin,
		ExternalTools: c.registry.Len() - builtin,
		Providers:     make(map[string]ProviderStatus, len(c.providers)),
	}
	for _, p := range c.providers {
		ps := ProviderStatus{URL: p.URL}
		if conn, ok := c.conns[p.Name]; ok && conn.Connected() {
			ps.Connected = true
			ps.Tools = c.registry.CountByOrigin(p.Name)
			status.ActiveConnections++
		}
		status.Providers[p.Name] = ps
	}
	return status
}

// ListTools returns the registry contents in registration order.
func (c *ToolClient) ListTools() []*tool.Tool {
	return c.registry.List()
}

// Reconnect retries every provider that is not currently connected. Already
// connected providers are left alone, so repeated calls are safe. Returns
// the names of providers that came back.
func (c *ToolClient) Reconnect(ctx context.Context) []string {
	var recovered []string
	for _, p := range c.providers {
		c.mu.RLock()
		conn, ok := c.conns[p.Name]
		c.mu.RUnlock()
		if ok && conn.Connected() {
			continue
		}

		// Drop any stale registrations from the previous session.
		if removed := c.registry.Deregister(p.Name); removed > 0 {
			c.logger.Debug("evicted stale tools", "provider", p.Name, "count", removed)
		}
		if err := c.connectProvider(ctx, p); err != nil {
			c.logger.Warn("reconnect failed", "provider", p.Name, "error", err)
			continue
		}
		recovered = append(recovered, p.Name)
	}
	sort.Strings(recovered)
	return recovered
}

func (c *ToolClient) activeCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, conn := range c.conns {
		if conn.Connected() {
			n++
		}
	}
	return n
}

// Close tears down every provider connection. The registry keeps its
// built-in tools; external tools are deregistered.
func (c *ToolClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.registry.Deregister(name)
		delete(c.conns, name)
	}
	return firstErr
}
