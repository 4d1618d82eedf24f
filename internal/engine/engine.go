// Package engine ties the event stream, rule engine and command
// sequencer together into the daemon loop.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mecattaf/smart-tiling/internal/config"
	"github.com/mecattaf/smart-tiling/internal/ipc"
	"github.com/mecattaf/smart-tiling/internal/layout"
	"github.com/mecattaf/smart-tiling/internal/metrics"
	"github.com/mecattaf/smart-tiling/internal/rules"
	"github.com/mecattaf/smart-tiling/internal/scroll"
	"github.com/mecattaf/smart-tiling/internal/state"
	"github.com/mecattaf/smart-tiling/internal/util"
)

// compositorClient is the slice of the IPC client the engine needs.
type compositorClient interface {
	scroll.Commander
	Tree(ctx context.Context) (*ipc.Node, error)
	FocusedWorkspaceName(ctx context.Context) (string, error)
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time {
	return t.Ticker.C
}

type subscribeFunc func(ctx context.Context, path string, logger *util.Logger, events ...string) (<-chan ipc.Event, error)

const defaultSweepInterval = 30 * time.Second

// golden ratio, the threshold the fallback uses to decide whether a
// window is tall enough to split vertically.
const defaultFallbackRatio = 1.618

// Options control engine behavior beyond the rule set. The width and
// height factors scale a freshly split window; 0 or 1 leaves it alone.
type Options struct {
	DryRun               bool
	Fallback             bool
	FallbackRatio        float64
	FallbackWidthFactor  float64
	FallbackHeightFactor float64
}

// Engine consumes window events and drives rule execution.
type Engine struct {
	client  compositorClient
	logger  *util.Logger
	rules   *rules.Engine
	seq     *scroll.Sequencer
	stores  *state.Stores
	metrics *metrics.Collector

	mu            sync.Mutex
	ruleTimeout   time.Duration
	dryRun        bool
	fallback      bool
	fallbackRatio float64
	widthFactor   float64
	heightFactor  float64

	socketPath    string
	subscribe     subscribeFunc
	tickerFactory func() ticker
}

// New creates an engine from a loaded configuration.
func New(client compositorClient, socketPath string, cfg *config.Config, seq *scroll.Sequencer, ruleEngine *rules.Engine, stores *state.Stores, collector *metrics.Collector, logger *util.Logger, opts Options) *Engine {
	ratio := opts.FallbackRatio
	if ratio <= 0 {
		ratio = defaultFallbackRatio
	}
	e := &Engine{
		client:        client,
		logger:        logger,
		rules:         ruleEngine,
		seq:           seq,
		stores:        stores,
		metrics:       collector,
		ruleTimeout:   cfg.Settings.RuleTimeout,
		dryRun:        opts.DryRun,
		fallback:      opts.Fallback,
		fallbackRatio: ratio,
		widthFactor:   opts.FallbackWidthFactor,
		heightFactor:  opts.FallbackHeightFactor,
		socketPath:    socketPath,
		subscribe:     ipc.Subscribe,
		tickerFactory: func() ticker {
			return realTicker{time.NewTicker(defaultSweepInterval)}
		},
	}
	return e
}

// Reload installs a new configuration. The rule set is swapped; live
// pending matches and relationships are kept.
func (e *Engine) Reload(cfg *config.Config) int {
	n := e.rules.Load(cfg.Rules)
	e.rules.SetRetention(cfg.Settings.RelationshipRetention)
	e.mu.Lock()
	e.ruleTimeout = cfg.Settings.RuleTimeout
	e.mu.Unlock()
	e.logger.Infof("loaded %d rules (timeout %s)", n, cfg.Settings.RuleTimeout)
	return n
}

// Status summarizes the running engine for the control surface.
type Status struct {
	Rules         int           `json:"rules"`
	Pending       int           `json:"pending"`
	Relationships int           `json:"relationships"`
	DryRun        bool          `json:"dryRun"`
	Fallback      bool          `json:"fallback"`
	RuleTimeout   time.Duration `json:"ruleTimeout"`
}

// Status reports the engine's current shape.
func (e *Engine) Status() Status {
	e.mu.Lock()
	dryRun := e.dryRun
	fallback := e.fallback
	timeout := e.ruleTimeout
	e.mu.Unlock()
	return Status{
		Rules:         len(e.rules.Rules()),
		Pending:       e.rules.PendingCount(),
		Relationships: len(e.rules.Relationships()),
		DryRun:        dryRun,
		Fallback:      fallback,
		RuleTimeout:   timeout,
	}
}

// DryRun reports whether commands are being suppressed.
func (e *Engine) DryRun() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dryRun
}

// Rules exposes the rule engine for the control surface.
func (e *Engine) Rules() *rules.Engine {
	return e.rules
}

// Metrics exposes the collector for the control surface.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

func (e *Engine) timeout() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ruleTimeout > 0 {
		return e.ruleTimeout
	}
	return config.DefaultRuleTimeout
}

// Run consumes window events until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	events, err := e.subscribe(ctx, e.socketPath, e.logger, "window")
	if err != nil {
		return err
	}
	tick := e.tickerFactory()
	defer tick.Stop()
	e.logger.Infof("engine running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C():
			e.sweep()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("engine: event stream closed")
			}
			e.metrics.RecordEvent()
			if ev.Type != ipc.EventWindow {
				continue
			}
			wev, err := ipc.DecodeWindowEvent(ev.Payload)
			if err != nil {
				e.logger.Warnf("engine: %v", err)
				continue
			}
			e.handleWindowEvent(ctx, wev)
		}
	}
}

func (e *Engine) handleWindowEvent(ctx context.Context, ev ipc.WindowEvent) {
	switch ev.Change {
	case "focus":
		e.onParentCandidate(ctx, ev.Container)
	case "title":
		// A title change can turn the focused window into a rule
		// parent, e.g. a terminal whose title gains an editor name.
		if ev.Container.Focused {
			e.onParentCandidate(ctx, ev.Container)
		}
	case "new":
		e.onChildCandidate(ctx, ev.Container)
	case "close":
		e.onClose(ev.Container.ID)
	}
}

// onParentCandidate checks a focused window against the parent side of
// the rule set and opens the correlation window on a match.
func (e *Engine) onParentCandidate(ctx context.Context, node ipc.Node) {
	w := node.Window()
	desc := state.DescriptorOf(w)
	rule := e.rules.MatchParent(desc)
	if rule == nil {
		return
	}
	workspace, err := e.client.FocusedWorkspaceName(ctx)
	if err != nil {
		e.logger.Warnf("engine: workspace lookup: %v", err)
		return
	}
	// A refocus of the same parent just refreshes the deadline; the
	// previous pending match for the workspace is discarded either way.
	mark, err := e.seq.MarkParent(ctx, w.ID)
	if err != nil {
		e.logger.Warnf("engine: mark parent %d: %v", w.ID, err)
		e.metrics.RecordCommandError(rule.Name)
	}
	e.rules.RecordParentMatch(workspace, rule, w.ID, desc, mark, e.timeout())
	e.metrics.RecordParentMatch(rule.Name)
	report := e.seq.ExecuteParentPhase(ctx, rule, w, workspace)
	for _, f := range report.Failed {
		e.logger.Warnf("engine: rule %q parent action %s: %s", rule.Name, f.Kind, f.Reason)
		e.metrics.RecordCommandError(rule.Name)
	}
	e.logger.Infof("rule %q armed on workspace %q by window %d", rule.Name, workspace, w.ID)
}

// onChildCandidate resolves a new window against the workspace's
// pending match, falling back to geometry-based splitting when no rule
// claims it.
func (e *Engine) onChildCandidate(ctx context.Context, node ipc.Node) {
	child := node.Window()
	workspace, err := e.client.FocusedWorkspaceName(ctx)
	if err != nil {
		e.logger.Warnf("engine: workspace lookup: %v", err)
		return
	}
	pm, ok := e.rules.ResolveChild(workspace, child.ID, state.DescriptorOf(child))
	if !ok {
		e.applyFallback(ctx, child.ID)
		return
	}
	e.metrics.RecordChildResolved(pm.Rule.Name)
	parent := e.lookupParent(ctx, pm)
	report := e.seq.ExecuteChildPhase(ctx, pm.Rule, parent, child, workspace)
	for _, f := range report.Failed {
		e.logger.Warnf("engine: rule %q child action %s: %s", pm.Rule.Name, f.Kind, f.Reason)
		e.metrics.RecordCommandError(pm.Rule.Name)
	}
	if !report.Handled() {
		e.logger.Warnf("engine: rule %q executed nothing for window %d", pm.Rule.Name, child.ID)
		e.applyFallback(ctx, child.ID)
		return
	}
	e.logger.Infof("rule %q placed window %d under parent %d on workspace %q", pm.Rule.Name, child.ID, pm.ParentID, workspace)
}

// lookupParent refreshes the parent window from the live tree so the
// child phase sees current geometry. Falls back to the descriptor
// captured at match time if the parent is already gone.
func (e *Engine) lookupParent(ctx context.Context, pm rules.PendingMatch) *state.Window {
	if tree, err := e.client.Tree(ctx); err == nil {
		if node := tree.FindByID(pm.ParentID); node != nil {
			return node.Window()
		}
	}
	return &state.Window{
		ID:       pm.ParentID,
		AppID:    pm.Parent.AppID,
		Class:    pm.Parent.Class,
		Instance: pm.Parent.Instance,
		Title:    pm.Parent.Title,
		PID:      pm.Parent.PID,
	}
}

// applyFallback splits an unmatched window along its longer dimension.
// Floating, fullscreen and stacked or tabbed containers are left alone.
func (e *Engine) applyFallback(ctx context.Context, id int64) {
	e.mu.Lock()
	enabled := e.fallback
	ratio := e.fallbackRatio
	widthFactor := e.widthFactor
	heightFactor := e.heightFactor
	e.mu.Unlock()
	if !enabled {
		return
	}
	tree, err := e.client.Tree(ctx)
	if err != nil {
		e.logger.Warnf("engine: fallback tree fetch: %v", err)
		return
	}
	node := tree.FindByID(id)
	if node == nil {
		return
	}
	if node.FullscreenMode != 0 || tree.IsFloating(id) {
		return
	}
	if node.Layout == "stacked" || node.Layout == "tabbed" {
		return
	}
	orientation := layout.SplitOrientation(layout.Rect{
		X:      node.Rect.X,
		Y:      node.Rect.Y,
		Width:  node.Rect.Width,
		Height: node.Rect.Height,
	}, ratio)
	if err := e.seq.Run(ctx, scroll.SplitCommand(id, orientation)); err != nil {
		e.logger.Warnf("engine: fallback split %d: %v", id, err)
		return
	}
	e.resizeAfterSplit(ctx, node, orientation, widthFactor, heightFactor)
	e.metrics.RecordFallback()
	e.logger.Debugf("engine: fallback %s on window %d", orientation, id)
}

// resizeAfterSplit applies the configured split factor to the window
// that was just split, so the next window opens with the remainder.
func (e *Engine) resizeAfterSplit(ctx context.Context, node *ipc.Node, orientation layout.Orientation, widthFactor, heightFactor float64) {
	factor := widthFactor
	dimension := "width"
	if orientation == layout.SplitVertical {
		factor = heightFactor
		dimension = "height"
	}
	if factor <= 0 || factor == 1 {
		return
	}
	percent := node.Percent
	if percent <= 0 {
		percent = 1
	}
	ppt := layout.ResizePercentPoints(percent, factor)
	if err := e.seq.Run(ctx, scroll.ResizeCommand(dimension, ppt)); err != nil {
		e.logger.Warnf("engine: fallback resize %d: %v", node.ID, err)
	}
}

// onClose drops state owned by a closed window.
func (e *Engine) onClose(id int64) {
	e.rules.DropRelationship(id)
	for ws, entry := range e.stores.Cwd.Snapshot() {
		if entry.OwnerID == id {
			e.stores.Cwd.Delete(ws)
		}
	}
	for ws, entry := range e.stores.Dimensions.Snapshot() {
		if entry.OwnerID == id {
			e.stores.Dimensions.Delete(ws)
		}
	}
}

func (e *Engine) sweep() {
	n := e.rules.Sweep(func(pm rules.PendingMatch) {
		e.metrics.RecordExpired(pm.Rule.Name)
		e.logger.Debugf("engine: pending match %q on workspace %q expired", pm.Rule.Name, pm.Workspace)
	})
	n += e.stores.Sweep()
	e.metrics.RecordSwept(n)
}
