package state

import "github.com/mecattaf/smart-tiling/internal/layout"

// Window describes a single node in the window manager tree. Instances are
// built by the IPC layer from event payloads and are treated as read-only
// snapshots afterwards.
type Window struct {
	ID             int64
	AppID          string
	Class          string
	Instance       string
	Title          string
	PID            int
	Floating       bool
	FullscreenMode int
	Layout         string
	Percent        float64
	Geometry       layout.Rect
	Parent         *Window
}

// Descriptor is the normalized identity tuple derived from a window. It is
// immutable and never persisted; matching and correlation operate on it
// instead of on live window handles.
type Descriptor struct {
	AppID    string
	Class    string
	Instance string
	Title    string
	PID      int
}

// DescriptorOf derives a descriptor from a window handle. Wayland-native
// windows carry an app id, X11 windows a class/instance pair; either side
// may be empty.
func DescriptorOf(w *Window) Descriptor {
	if w == nil {
		return Descriptor{}
	}
	return Descriptor{
		AppID:    w.AppID,
		Class:    w.Class,
		Instance: w.Instance,
		Title:    w.Title,
		PID:      w.PID,
	}
}

// Empty reports whether the descriptor carries no identifying information.
func (d Descriptor) Empty() bool {
	return d.AppID == "" && d.Class == "" && d.Instance == "" && d.Title == "" && d.PID == 0
}
