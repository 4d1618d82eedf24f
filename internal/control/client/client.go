// Package client talks to a running smart-tiling daemon over its
// control socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mecattaf/smart-tiling/internal/control"
	"github.com/mecattaf/smart-tiling/internal/metrics"
)

// defaultTimeout is used when the caller does not provide a context
// deadline.
const defaultTimeout = 3 * time.Second

// Client talks to the daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// StatusInfo describes the daemon's current shape.
	StatusInfo = control.StatusInfo
	// RuleInfo summarizes one loaded rule.
	RuleInfo = control.RuleInfo
	// RulesInfo aggregates the loaded rule set.
	RulesInfo = control.RulesInfo
	// RelationshipInfo is one live parent-child pairing.
	RelationshipInfo = control.RelationshipInfo
	// RelationshipsInfo aggregates live relationships.
	RelationshipsInfo = control.RelationshipsInfo
	// MetricsSnapshot mirrors the daemon's counter snapshot.
	MetricsSnapshot = metrics.Snapshot
)

// New creates a client for the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Status retrieves the daemon's status summary.
func (c *Client) Status(ctx context.Context) (StatusInfo, error) {
	var status StatusInfo
	if err := c.do(ctx, control.Request{Action: control.ActionStatus}, &status); err != nil {
		return StatusInfo{}, err
	}
	return status, nil
}

// Rules retrieves the loaded rule set.
func (c *Client) Rules(ctx context.Context) (RulesInfo, error) {
	var info RulesInfo
	if err := c.do(ctx, control.Request{Action: control.ActionRules}, &info); err != nil {
		return RulesInfo{}, err
	}
	return info, nil
}

// Relationships retrieves the live parent-child pairings.
func (c *Client) Relationships(ctx context.Context) (RelationshipsInfo, error) {
	var info RelationshipsInfo
	if err := c.do(ctx, control.Request{Action: control.ActionRelationships}, &info); err != nil {
		return RelationshipsInfo{}, err
	}
	return info, nil
}

// Metrics retrieves the daemon's counter snapshot.
func (c *Client) Metrics(ctx context.Context) (MetricsSnapshot, error) {
	var snap MetricsSnapshot
	if err := c.do(ctx, control.Request{Action: control.ActionMetrics}, &snap); err != nil {
		return MetricsSnapshot{}, err
	}
	return snap, nil
}

// Reload asks the daemon to reload its configuration.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
