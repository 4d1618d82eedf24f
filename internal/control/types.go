package control

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

const (
	// SocketFileName is the filename of the control socket within the
	// runtime dir.
	SocketFileName = "control.sock"

	// Action names supported by the control protocol.
	ActionStatus        = "status"
	ActionRules         = "rules"
	ActionRelationships = "relationships"
	ActionMetrics       = "metrics"
	ActionReload        = "reload"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// StatusInfo describes the daemon's current shape.
type StatusInfo struct {
	Rules              int     `json:"rules"`
	Pending            int     `json:"pending"`
	Relationships      int     `json:"relationships"`
	DryRun             bool    `json:"dryRun"`
	Fallback           bool    `json:"fallback"`
	RuleTimeoutSeconds float64 `json:"ruleTimeoutSeconds"`
}

// RuleInfo summarizes one loaded rule.
type RuleInfo struct {
	Name          string   `json:"name"`
	ParentAppIDs  []string `json:"parentAppIds,omitempty"`
	ParentClasses []string `json:"parentClasses,omitempty"`
	ParentTitles  []string `json:"parentTitles,omitempty"`
	ChildAppIDs   []string `json:"childAppIds,omitempty"`
	ChildClasses  []string `json:"childClasses,omitempty"`
	ChildTitles   []string `json:"childTitles,omitempty"`
	ChildAny      bool     `json:"childAny"`
	Actions       []string `json:"actions"`
}

// RulesInfo aggregates the loaded rule set in load order.
type RulesInfo struct {
	Rules []RuleInfo `json:"rules"`
}

// RelationshipInfo is one live parent-child pairing.
type RelationshipInfo struct {
	Rule      string    `json:"rule"`
	Workspace string    `json:"workspace"`
	ParentID  int64     `json:"parentId"`
	ChildID   int64     `json:"childId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RelationshipsInfo aggregates live relationships.
type RelationshipsInfo struct {
	Relationships []RelationshipInfo `json:"relationships"`
}

// DefaultSocketPath returns the expected location of the control
// socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv("SMART_TILING_CONTROL_SOCKET"); env != "" {
		return env, nil
	}
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
		if base == "" {
			return "", errors.New("no runtime directory available")
		}
	}
	return filepath.Join(base, "smart-tiling", SocketFileName), nil
}
