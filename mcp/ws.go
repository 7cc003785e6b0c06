package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/umbra-intel/shrike/tool"
)

// Websocket wire protocol. Each frame is one JSON message:
//
//	client -> server  {"type":"discover"}
//	server -> client  {"type":"manifest","tools":[{name,description,input_schema}]}
//	client -> server  {"type":"call","id":"7","tool":"x","args":{...}}
//	server -> client  {"type":"result","id":"7","success":true,"payload":{...}}
//
// Results may arrive out of order; the id correlates them.
type wsFrame struct {
	Type    string         `json:"type"`
	ID      string         `json:"id,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Tools   []wsToolDef    `json:"tools,omitempty"`
	Success bool           `json:"success,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type wsToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan wsFrame
	manifest chan wsFrame

	nextID    atomic.Int64
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func dialWS(ctx context.Context, rawURL string, timeout time.Duration) (*wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	c := &wsConn{
		conn:     conn,
		timeout:  timeout,
		pending:  make(map[string]chan wsFrame),
		manifest: make(chan wsFrame, 1),
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *wsConn) readLoop() {
	defer c.close()
	for {
		var frame wsFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "manifest":
			select {
			case c.manifest <- frame:
			default:
			}
		case "result":
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			if ok {
				delete(c.pending, frame.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- frame
			}
		}
	}
}

func (c *wsConn) writeFrame(frame wsFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

func (c *wsConn) discover(ctx context.Context) ([]wsToolDef, error) {
	if err := c.writeFrame(wsFrame{Type: "discover"}); err != nil {
		return nil, fmt.Errorf("send discover: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case frame := <-c.manifest:
		return frame.Tools, nil
	case <-c.closed:
		return nil, errors.New("connection closed during discovery")
	case <-opCtx.Done():
		return nil, opCtx.Err()
	}
}

func (c *wsConn) call(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	reply := make(chan wsFrame, 1)

	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()

	if err := c.writeFrame(wsFrame{Type: "call", ID: id, Tool: toolName, Args: args}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("send call: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	select {
	case frame := <-reply:
		if !frame.Success {
			msg := frame.Error
			if msg == "" {
				msg = "remote tool failed without message"
			}
			return nil, errors.New(msg)
		}
		return frame.Payload, nil
	case <-c.closed:
		return nil, errors.New("connection closed during call")
	case <-opCtx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, opCtx.Err()
	}
}

func (c *wsConn) close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// wsTools discovers tools over the websocket transport and wraps them in
// forwarding handlers.
func (c *Conn) wsTools(ctx context.Context) ([]*tool.Tool, error) {
	defs, err := c.ws.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover on %s: %w", c.name, err)
	}

	tools := make([]*tool.Tool, 0, len(defs))
	for _, def := range defs {
		remoteName := def.Name
		tools = append(tools, &tool.Tool{
			Name:        remoteName,
			Description: def.Description,
			Parameters:  parametersFromSchema(def.InputSchema),
			Origin:      c.name,
			Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
				return c.ws.call(ctx, remoteName, args)
			},
		})
	}
	return tools, nil
}
