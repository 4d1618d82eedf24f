package ipc

import (
	"encoding/json"

	"github.com/mecattaf/smart-tiling/internal/layout"
	"github.com/mecattaf/smart-tiling/internal/state"
)

// Rect is a window or container rectangle as reported by the
// compositor.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowProperties carries the X11 class hints for XWayland windows.
type WindowProperties struct {
	Class    string `json:"class"`
	Instance string `json:"instance"`
	Title    string `json:"title"`
}

// UnmarshalJSON tolerates class reported as a two element
// [instance, class] pair, which some compositors emit for legacy hints.
func (p *WindowProperties) UnmarshalJSON(data []byte) error {
	type plain WindowProperties
	var v struct {
		plain
		RawClass json.RawMessage `json:"class"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = WindowProperties(v.plain)
	if len(v.RawClass) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(v.RawClass, &s); err == nil {
		p.Class = s
		return nil
	}
	var pair []string
	if err := json.Unmarshal(v.RawClass, &pair); err == nil {
		if len(pair) > 0 {
			p.Instance = pair[0]
		}
		if len(pair) > 1 {
			p.Class = pair[1]
		}
		return nil
	}
	return nil
}

// Node is one container in the compositor tree.
type Node struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Layout           string            `json:"layout"`
	Percent          float64           `json:"percent"`
	Rect             Rect              `json:"rect"`
	WindowRect       Rect              `json:"window_rect"`
	AppID            string            `json:"app_id"`
	PID              int               `json:"pid"`
	Focused          bool              `json:"focused"`
	FullscreenMode   int               `json:"fullscreen_mode"`
	WindowProperties *WindowProperties `json:"window_properties"`
	Nodes            []*Node           `json:"nodes"`
	FloatingNodes    []*Node           `json:"floating_nodes"`
}

// Walk visits every node depth-first, tiled before floating, until the
// visitor returns false.
func (n *Node) Walk(visit func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}
	for _, child := range n.Nodes {
		if !child.Walk(visit) {
			return false
		}
	}
	for _, child := range n.FloatingNodes {
		if !child.Walk(visit) {
			return false
		}
	}
	return true
}

// FindByID returns the node with the given container id, or nil.
func (n *Node) FindByID(id int64) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if c.ID == id {
			found = c
			return false
		}
		return true
	})
	return found
}

// FocusedNode returns the focused container, or nil.
func (n *Node) FocusedNode() *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if c.Focused {
			found = c
			return false
		}
		return true
	})
	return found
}

// IsFloating reports whether the node sits in a floating list of any
// workspace on its subtree. Only meaningful when called on a workspace
// or root node with the target id.
func (n *Node) IsFloating(id int64) bool {
	floating := false
	n.Walk(func(c *Node) bool {
		for _, f := range c.FloatingNodes {
			in := false
			f.Walk(func(d *Node) bool {
				if d.ID == id {
					in = true
					return false
				}
				return true
			})
			if in {
				floating = true
				return false
			}
		}
		return true
	})
	return floating
}

// WorkspaceOf returns the workspace node containing the container id,
// or nil.
func (n *Node) WorkspaceOf(id int64) *Node {
	var ws, found *Node
	n.Walk(func(c *Node) bool {
		if c.Type == "workspace" {
			ws = c
		}
		if c.ID == id {
			found = ws
			return false
		}
		return true
	})
	return found
}

// Window converts a tree node into the engine's window model.
func (n *Node) Window() *state.Window {
	w := &state.Window{
		ID:             n.ID,
		AppID:          n.AppID,
		Title:          n.Name,
		PID:            n.PID,
		FullscreenMode: n.FullscreenMode,
		Layout:         n.Layout,
		Percent:        n.Percent,
		Geometry: layout.Rect{
			X:      n.Rect.X,
			Y:      n.Rect.Y,
			Width:  n.Rect.Width,
			Height: n.Rect.Height,
		},
	}
	if n.WindowProperties != nil {
		w.Class = n.WindowProperties.Class
		w.Instance = n.WindowProperties.Instance
		if w.Title == "" {
			w.Title = n.WindowProperties.Title
		}
	}
	return w
}

// Workspace is one entry of a GET_WORKSPACES reply.
type Workspace struct {
	Num     int    `json:"num"`
	Name    string `json:"name"`
	Focused bool   `json:"focused"`
	Visible bool   `json:"visible"`
	Output  string `json:"output"`
}
