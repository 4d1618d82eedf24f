package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/mecattaf/smart-tiling/internal/util"
)

// Event is one compositor event with its raw payload.
type Event struct {
	Type    uint32
	Payload []byte
}

// WindowEvent is the decoded payload of a window event.
type WindowEvent struct {
	Change    string `json:"change"`
	Container Node   `json:"container"`
}

// DecodeWindowEvent parses a window event payload.
func DecodeWindowEvent(payload []byte) (WindowEvent, error) {
	var ev WindowEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return WindowEvent{}, fmt.Errorf("ipc: decode window event: %w", err)
	}
	return ev, nil
}

// WorkspaceEvent is the decoded payload of a workspace event.
type WorkspaceEvent struct {
	Change  string `json:"change"`
	Current *Node  `json:"current"`
}

// DecodeWorkspaceEvent parses a workspace event payload.
func DecodeWorkspaceEvent(payload []byte) (WorkspaceEvent, error) {
	var ev WorkspaceEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return WorkspaceEvent{}, fmt.Errorf("ipc: decode workspace event: %w", err)
	}
	return ev, nil
}

// Subscribe opens a dedicated event connection, subscribes to the named
// event classes and streams events until the context is cancelled or
// the connection breaks. The channel is closed on exit.
func Subscribe(ctx context.Context, path string, logger *util.Logger, events ...string) (<-chan Event, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", path, err)
	}
	payload, err := json.Marshal(events)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := writeFrame(conn, MessageSubscribe, payload); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ipc: subscribe: %w", err)
	}
	reply, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ipc: subscribe reply: %w", err)
	}
	var ack struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(reply.Payload, &ack); err != nil || !ack.Success {
		conn.Close()
		return nil, fmt.Errorf("ipc: subscription to %v refused", events)
	}

	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			f, err := readFrame(conn)
			if err != nil {
				if ctx.Err() == nil {
					logger.Errorf("ipc: event stream: %v", err)
				}
				return
			}
			if !f.isEvent() {
				continue
			}
			select {
			case ch <- Event{Type: f.eventType(), Payload: f.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		// Unblock the reader when the context ends.
		<-ctx.Done()
		conn.Close()
	}()
	return ch, nil
}
