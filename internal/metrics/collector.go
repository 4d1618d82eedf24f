package metrics

import (
	"sort"
	"sync"
	"time"
)

// Collector aggregates anonymous counters for rule correlation and
// execution.
type Collector struct {
	mu      sync.RWMutex
	enabled bool
	started time.Time
	rules   map[string]*RuleMetrics
	global  GlobalMetrics
}

// RuleMetrics captures per-rule counters tracked by the collector.
type RuleMetrics struct {
	Rule          string    `json:"rule"`
	ParentMatches uint64    `json:"parentMatches"`
	ChildResolved uint64    `json:"childResolved"`
	Expired       uint64    `json:"expired"`
	CommandErrors uint64    `json:"commandErrors"`
	LastMatched   time.Time `json:"lastMatched,omitempty"`
	LastResolved  time.Time `json:"lastResolved,omitempty"`
	LastErrored   time.Time `json:"lastErrored,omitempty"`
}

// GlobalMetrics counts events not attributable to a single rule.
type GlobalMetrics struct {
	Fallbacks      uint64 `json:"fallbacks"`
	SweptEntries   uint64 `json:"sweptEntries"`
	EventsConsumed uint64 `json:"eventsConsumed"`
}

// Totals aggregates counters across all rules in a snapshot.
type Totals struct {
	ParentMatches uint64 `json:"parentMatches"`
	ChildResolved uint64 `json:"childResolved"`
	Expired       uint64 `json:"expired"`
	CommandErrors uint64 `json:"commandErrors"`
}

// Snapshot is the serializable view of the current metrics state.
type Snapshot struct {
	Enabled bool          `json:"enabled"`
	Started time.Time     `json:"started,omitempty"`
	Totals  Totals        `json:"totals"`
	Global  GlobalMetrics `json:"global"`
	Rules   []RuleMetrics `json:"rules,omitempty"`
}

// NewCollector returns a collector with the provided opt-in state.
func NewCollector(enabled bool) *Collector {
	c := &Collector{}
	c.SetEnabled(enabled)
	return c
}

// Enabled reports whether collection is currently active.
func (c *Collector) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles collection, resetting counters when enabling.
func (c *Collector) SetEnabled(enabled bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	if !enabled {
		c.rules = nil
		c.global = GlobalMetrics{}
		c.started = time.Time{}
		return
	}
	c.started = time.Now()
	c.rules = make(map[string]*RuleMetrics)
}

// RecordParentMatch counts a parent window matching a rule.
func (c *Collector) RecordParentMatch(rule string) {
	c.updateRule(rule, func(m *RuleMetrics, now time.Time) {
		m.ParentMatches++
		m.LastMatched = now
	})
}

// RecordChildResolved counts a child window resolving against a rule.
func (c *Collector) RecordChildResolved(rule string) {
	c.updateRule(rule, func(m *RuleMetrics, now time.Time) {
		m.ChildResolved++
		m.LastResolved = now
	})
}

// RecordExpired counts a pending match lapsing without a child.
func (c *Collector) RecordExpired(rule string) {
	c.updateRule(rule, func(m *RuleMetrics, now time.Time) {
		m.Expired++
	})
}

// RecordCommandError counts a compositor command failing for a rule.
func (c *Collector) RecordCommandError(rule string) {
	c.updateRule(rule, func(m *RuleMetrics, now time.Time) {
		m.CommandErrors++
		m.LastErrored = now
	})
}

// RecordFallback counts a window handled by the geometry fallback.
func (c *Collector) RecordFallback() {
	c.updateGlobal(func(g *GlobalMetrics) { g.Fallbacks++ })
}

// RecordSwept counts entries removed by a sweep pass.
func (c *Collector) RecordSwept(n int) {
	if n <= 0 {
		return
	}
	c.updateGlobal(func(g *GlobalMetrics) { g.SweptEntries += uint64(n) })
}

// RecordEvent counts one compositor event consumed.
func (c *Collector) RecordEvent() {
	c.updateGlobal(func(g *GlobalMetrics) { g.EventsConsumed++ })
}

func (c *Collector) updateGlobal(mutate func(*GlobalMetrics)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	mutate(&c.global)
}

func (c *Collector) updateRule(rule string, mutate func(*RuleMetrics, time.Time)) {
	if c == nil || mutate == nil {
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if c.rules == nil {
		c.rules = make(map[string]*RuleMetrics)
	}
	m, exists := c.rules[rule]
	if !exists {
		m = &RuleMetrics{Rule: rule}
		c.rules[rule] = m
	}
	mutate(m, now)
}

// Snapshot returns the current counters for serialization or display.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := Snapshot{Enabled: c.enabled}
	if !c.enabled {
		return snap
	}
	snap.Started = c.started
	snap.Global = c.global
	if len(c.rules) == 0 {
		return snap
	}
	snap.Rules = make([]RuleMetrics, 0, len(c.rules))
	for _, m := range c.rules {
		if m == nil {
			continue
		}
		clone := *m
		snap.Rules = append(snap.Rules, clone)
		snap.Totals.ParentMatches += clone.ParentMatches
		snap.Totals.ChildResolved += clone.ChildResolved
		snap.Totals.Expired += clone.Expired
		snap.Totals.CommandErrors += clone.CommandErrors
	}
	sort.Slice(snap.Rules, func(i, j int) bool {
		return snap.Rules[i].Rule < snap.Rules[j].Rule
	})
	return snap
}
