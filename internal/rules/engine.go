package rules

import (
	"sync"
	"time"

	"github.com/mecattaf/smart-tiling/internal/config"
	"github.com/mecattaf/smart-tiling/internal/state"
	"github.com/mecattaf/smart-tiling/internal/util"
)

// PendingMatch records that a parent window on a workspace matched a
// rule and a qualifying child is awaited until the deadline.
type PendingMatch struct {
	Rule      *Rule
	Workspace string
	ParentID  int64
	Parent    state.Descriptor
	Mark      string
	MatchedAt time.Time
	Deadline  time.Time
}

// Relationship is a resolved parent-child pairing, kept for layout
// restoration after the child closes.
type Relationship struct {
	RuleName  string
	Workspace string
	ParentID  int64
	ChildID   int64
	CreatedAt time.Time
}

// Engine holds the compiled rule set and the per-workspace pending
// matches that bridge the parent phase to the child phase.
type Engine struct {
	logger *util.Logger

	mu    sync.RWMutex
	rules []*Rule

	pending       *state.ExpiringMap[string, PendingMatch]
	relationships *state.ExpiringMap[int64, Relationship]
	retention     time.Duration
	now           func() time.Time
}

// NewEngine returns an engine with no rules loaded. retention bounds
// how long resolved relationships are kept; zero keeps them until the
// child closes.
func NewEngine(logger *util.Logger, retention time.Duration) *Engine {
	return &Engine{
		logger:        logger,
		pending:       state.NewExpiringMap[string, PendingMatch](),
		relationships: state.NewExpiringMap[int64, Relationship](),
		retention:     retention,
		now:           time.Now,
	}
}

// SetClock overrides the time source, including for the pending and
// relationship tables. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
	e.pending.SetClock(now)
	e.relationships.SetClock(now)
}

// Load compiles and installs a new rule set, replacing the previous
// one. Pending matches and relationships survive a reload. Returns the
// number of rules that compiled.
func (e *Engine) Load(cfgs []config.RuleConfig) int {
	compiled := Compile(cfgs, e.logger)
	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return len(compiled)
}

// SetRetention updates the relationship retention applied to future
// resolutions.
func (e *Engine) SetRetention(retention time.Duration) {
	e.mu.Lock()
	e.retention = retention
	e.mu.Unlock()
}

// Rules returns the current rule set in load order.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]*Rule(nil), e.rules...)
}

// MatchParent returns the first rule in load order whose parent
// criteria match the descriptor, or nil.
func (e *Engine) MatchParent(d state.Descriptor) *Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.rules {
		if r.Parent.Matches(d) {
			return r
		}
	}
	return nil
}

// RecordParentMatch installs a pending match for the workspace,
// replacing any previous one. ttl bounds how long a child may follow.
func (e *Engine) RecordParentMatch(workspace string, r *Rule, parentID int64, d state.Descriptor, mark string, ttl time.Duration) {
	now := e.clock()
	e.pending.Put(workspace, PendingMatch{
		Rule:      r,
		Workspace: workspace,
		ParentID:  parentID,
		Parent:    d,
		Mark:      mark,
		MatchedAt: now,
		Deadline:  now.Add(ttl),
	}, ttl)
	e.logger.Debugf("rules: pending match %q on workspace %q (parent %d, ttl %s)", r.Name, workspace, parentID, ttl)
}

// PendingFor returns the live pending match for a workspace, if any.
func (e *Engine) PendingFor(workspace string) (PendingMatch, bool) {
	return e.pending.Get(workspace)
}

// ClearPending drops the pending match for a workspace.
func (e *Engine) ClearPending(workspace string) {
	e.pending.Delete(workspace)
}

// ResolveChild checks a new window on a workspace against the pending
// match there. On a match it records the relationship and returns the
// pending match; the pending entry itself stays live until its deadline
// so further children of the same parent can match too.
func (e *Engine) ResolveChild(workspace string, childID int64, d state.Descriptor) (PendingMatch, bool) {
	pm, ok := e.pending.Get(workspace)
	if !ok {
		return PendingMatch{}, false
	}
	if childID != 0 && childID == pm.ParentID {
		return PendingMatch{}, false
	}
	if !pm.Rule.ChildMatches(d) {
		return PendingMatch{}, false
	}
	if pm.ParentID != 0 && childID != 0 {
		e.mu.RLock()
		retention := e.retention
		e.mu.RUnlock()
		e.relationships.Put(childID, Relationship{
			RuleName:  pm.Rule.Name,
			Workspace: workspace,
			ParentID:  pm.ParentID,
			ChildID:   childID,
			CreatedAt: e.clock(),
		}, retention)
	}
	e.logger.Debugf("rules: resolved child %d against %q on workspace %q", childID, pm.Rule.Name, workspace)
	return pm, true
}

// RelationshipFor returns the recorded relationship for a child window.
func (e *Engine) RelationshipFor(childID int64) (Relationship, bool) {
	return e.relationships.Get(childID)
}

// DropRelationship removes the relationship for a closed child.
func (e *Engine) DropRelationship(childID int64) {
	e.relationships.Delete(childID)
}

// Relationships returns a snapshot of all live relationships.
func (e *Engine) Relationships() []Relationship {
	snap := e.relationships.Snapshot()
	out := make([]Relationship, 0, len(snap))
	for _, rel := range snap {
		out = append(out, rel)
	}
	return out
}

// PendingCount reports the number of live pending matches.
func (e *Engine) PendingCount() int {
	return e.pending.Len()
}

// Sweep drops expired pending matches and relationships and reports how
// many entries were removed. onExpired, when non-nil, is called with
// each pending match that lapsed without a child.
func (e *Engine) Sweep(onExpired func(PendingMatch)) int {
	n := e.pending.SweepFunc(func(_ string, pm PendingMatch) {
		if onExpired != nil {
			onExpired(pm)
		}
	})
	return n + e.relationships.Sweep()
}

func (e *Engine) clock() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now()
}
