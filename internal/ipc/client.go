// Package ipc speaks the i3-ipc protocol to a sway or scroll
// compositor over its unix socket.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/mecattaf/smart-tiling/internal/util"
)

// SocketPath resolves the compositor socket from the environment.
func SocketPath() (string, error) {
	if p := os.Getenv("SWAYSOCK"); p != "" {
		return p, nil
	}
	if p := os.Getenv("I3SOCK"); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("ipc: neither SWAYSOCK nor I3SOCK is set")
}

// CommandResult is one entry of a RUN_COMMAND reply.
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Client is a synchronous request-reply connection to the compositor.
// Event subscriptions use their own connection; see Subscribe.
type Client struct {
	path   string
	logger *util.Logger

	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the compositor socket.
func Dial(path string, logger *util.Logger) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", path, err)
	}
	return &Client{path: path, logger: logger, conn: conn}, nil
}

// Close closes the request connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) roundTrip(ctx context.Context, msgType uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		conn, err := net.Dial("unix", c.path)
		if err != nil {
			return nil, fmt.Errorf("ipc: redial %s: %w", c.path, err)
		}
		c.conn = conn
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if err := writeFrame(c.conn, msgType, payload); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("ipc: write: %w", err)
	}
	for {
		f, err := readFrame(c.conn)
		if err != nil {
			c.dropLocked()
			return nil, fmt.Errorf("ipc: read: %w", err)
		}
		// Events never arrive on this connection unless the peer is
		// confused; skip them rather than misparse a reply.
		if f.isEvent() {
			continue
		}
		if f.Type != msgType {
			c.dropLocked()
			return nil, fmt.Errorf("ipc: reply type %d for request %d", f.Type, msgType)
		}
		return f.Payload, nil
	}
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Command runs a compositor command and returns the per-command
// results. A failed command is reported in the results, not as an
// error; errors mean the transport itself failed.
func (c *Client) Command(ctx context.Context, command string) ([]CommandResult, error) {
	c.logger.Tracef("ipc: command %q", command)
	payload, err := c.roundTrip(ctx, MessageRunCommand, []byte(command))
	if err != nil {
		return nil, err
	}
	var results []CommandResult
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("ipc: decode command reply: %w", err)
	}
	return results, nil
}

// Tree fetches the full container tree.
func (c *Client) Tree(ctx context.Context) (*Node, error) {
	payload, err := c.roundTrip(ctx, MessageGetTree, nil)
	if err != nil {
		return nil, err
	}
	var root Node
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, fmt.Errorf("ipc: decode tree: %w", err)
	}
	return &root, nil
}

// Workspaces fetches the workspace list.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	payload, err := c.roundTrip(ctx, MessageGetWorkspaces, nil)
	if err != nil {
		return nil, err
	}
	var workspaces []Workspace
	if err := json.Unmarshal(payload, &workspaces); err != nil {
		return nil, fmt.Errorf("ipc: decode workspaces: %w", err)
	}
	return workspaces, nil
}

// FocusedWorkspaceName returns the name of the focused workspace.
func (c *Client) FocusedWorkspaceName(ctx context.Context) (string, error) {
	workspaces, err := c.Workspaces(ctx)
	if err != nil {
		return "", err
	}
	for _, ws := range workspaces {
		if ws.Focused {
			return ws.Name, nil
		}
	}
	return "", fmt.Errorf("ipc: no focused workspace")
}
